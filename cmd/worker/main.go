package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"thirdcoast.systems/mediaqueue/internal/application"
	"thirdcoast.systems/mediaqueue/internal/config"
	"thirdcoast.systems/mediaqueue/internal/db"
	"thirdcoast.systems/mediaqueue/internal/queue"
)

// shutdownGrace is how long in-flight jobs get after a signal before the pool
// is closed underneath them.
const shutdownGrace = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() (code int) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("media worker panicked", "panic", r, "stack", string(debug.Stack()))
			code = 1
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conf, err := config.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	if err := conf.ValidateWorker(); err != nil {
		slog.Error("invalid worker config", "error", err)
		return 1
	}
	application.SetupLogging(conf.LogLevel, conf.LogFormat)
	slog.Info("Starting media worker", "worker_id", conf.WorkerID, "workers", conf.MediaWorkers)

	pool, err := application.OpenDBPoolWithRetry(ctx, *conf)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		return 1
	}
	defer pool.Close()

	dbc, err := db.NewDatabaseConnection(ctx, pool)
	if err != nil {
		slog.Error("failed to create database connection", "error", err)
		return 1
	}
	store := db.NewStore(dbc)

	pipelines, err := application.NewPipelines(ctx, *conf, store)
	if err != nil {
		slog.Error("failed to build pipelines", "error", err)
		return 1
	}
	dispatcher := queue.NewDispatcher(store, nil)
	dispatcher.HeartbeatInterval = queue.HeartbeatFor(conf.StaleLockAfter)
	pipelines.Register(dispatcher)

	go queue.SweepStale(ctx, store, conf.StaleLockAfter)

	wake := make(chan struct{}, 1)
	go db.ListenAndSignal(ctx, conf.DatabaseDSN, wake)

	var wg sync.WaitGroup
	for i := 0; i < conf.MediaWorkers; i++ {
		w := &queue.Worker{
			ID:           workerID(conf.WorkerID, i, conf.MediaWorkers),
			Store:        store,
			Dispatcher:   dispatcher,
			PollInterval: conf.PollInterval,
			Wake:         wake,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}
	slog.Info("Media workers started", "workers", conf.MediaWorkers)

	<-ctx.Done()
	slog.Info("Media worker stopping")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		slog.Warn("in-flight media jobs did not finish before shutdown; they will be recovered as stale")
	}
	return 0
}

// workerID is the locked_by value for the i-th loop of this process.
func workerID(base string, i, total int) string {
	if total <= 1 {
		return base
	}
	return fmt.Sprintf("%s/%d", base, i+1)
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"thirdcoast.systems/mediaqueue/internal/db"
)

// memStore is an in-memory media_jobs table.
type memStore struct {
	mu        sync.Mutex
	jobs      []*db.MediaJob
	claimErr  error
	writeErr  error
	claims    int
	touches   int
	recovered []time.Time
}

func (s *memStore) add(typ db.MediaJobType, input any) *db.MediaJob {
	raw, _ := json.Marshal(input)
	s.mu.Lock()
	defer s.mu.Unlock()
	var id [16]byte
	id[15] = byte(len(s.jobs) + 1)
	j := &db.MediaJob{
		ID:       pgtype.UUID{Bytes: id, Valid: true},
		Type:     typ,
		Status:   db.MediaJobStatusQueued,
		Input:    raw,
		RunAfter: time.Now().Add(-time.Second),
	}
	s.jobs = append(s.jobs, j)
	return j
}

func (s *memStore) find(id pgtype.UUID) (*db.MediaJob, error) {
	for _, j := range s.jobs {
		if j.ID == id {
			return j, nil
		}
	}
	return nil, errors.New("no rows")
}

func (s *memStore) ClaimNextJob(_ context.Context, workerID string) (*db.MediaJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims++
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	now := time.Now()
	for _, j := range s.jobs {
		if j.Status == db.MediaJobStatusQueued && !j.RunAfter.After(now) {
			j.Status = db.MediaJobStatusRunning
			j.Attempts++
			w := workerID
			j.LockedBy = &w
			j.LockedAt = pgtype.Timestamptz{Time: now, Valid: true}
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

// owned returns the job if workerID still holds its lock.
func (s *memStore) owned(id pgtype.UUID, workerID string) (*db.MediaJob, error) {
	if s.writeErr != nil {
		return nil, s.writeErr
	}
	j, err := s.find(id)
	if err != nil {
		return nil, err
	}
	if j.Status != db.MediaJobStatusRunning || j.LockedBy == nil || *j.LockedBy != workerID {
		return nil, db.ErrLeaseLost
	}
	return j, nil
}

func (s *memStore) CompleteJob(_ context.Context, id pgtype.UUID, workerID string, output json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.owned(id, workerID)
	if err != nil {
		return err
	}
	j.Status = db.MediaJobStatusCompleted
	j.Output = output
	j.LockedBy = nil
	return nil
}

func (s *memStore) RetryJob(_ context.Context, id pgtype.UUID, workerID string, runAfter time.Time, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.owned(id, workerID)
	if err != nil {
		return err
	}
	j.Status = db.MediaJobStatusQueued
	j.RunAfter = runAfter
	j.LockedBy = nil
	j.LockedAt = pgtype.Timestamptz{}
	j.ErrorMessage = &msg
	return nil
}

func (s *memStore) FailJob(_ context.Context, id pgtype.UUID, workerID string, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.owned(id, workerID)
	if err != nil {
		return err
	}
	j.Status = db.MediaJobStatusFailed
	j.LockedBy = nil
	j.ErrorMessage = &msg
	return nil
}

func (s *memStore) ReleaseJob(_ context.Context, id pgtype.UUID, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.owned(id, workerID)
	if err != nil {
		return err
	}
	j.Status = db.MediaJobStatusQueued
	j.RunAfter = time.Now()
	j.LockedBy = nil
	j.LockedAt = pgtype.Timestamptz{}
	if j.Attempts > 0 {
		j.Attempts--
	}
	return nil
}

func (s *memStore) TouchJob(_ context.Context, id pgtype.UUID, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touches++
	j, err := s.owned(id, workerID)
	if err != nil {
		return err
	}
	j.LockedAt = pgtype.Timestamptz{Time: time.Now(), Valid: true}
	return nil
}

func (s *memStore) RecoverStaleJobs(_ context.Context, lockedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recovered = append(s.recovered, lockedBefore)
	var n int64
	for _, j := range s.jobs {
		if j.Status == db.MediaJobStatusRunning && j.LockedAt.Time.Before(lockedBefore) {
			j.Status = db.MediaJobStatusQueued
			j.LockedBy = nil
			n++
		}
	}
	return n, nil
}

func (s *memStore) get(id pgtype.UUID) db.MediaJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, _ := s.find(id)
	return *j
}

// stubPipeline records mirror calls.
type stubPipeline struct {
	mu       sync.Mutex
	run      func(ctx context.Context, job *db.MediaJob) (json.RawMessage, error)
	retrying []error
	failed   []error
	mirror   error
}

func (p *stubPipeline) Run(ctx context.Context, job *db.MediaJob) (json.RawMessage, error) {
	return p.run(ctx, job)
}

func (p *stubPipeline) MarkRetrying(_ context.Context, _ *db.MediaJob, cause error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retrying = append(p.retrying, cause)
	return p.mirror
}

func (p *stubPipeline) MarkFailed(_ context.Context, _ *db.MediaJob, cause error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, cause)
	return p.mirror
}

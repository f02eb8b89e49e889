package db

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestDB connects to TEST_DATABASE_DSN, migrates it and empties
// media_jobs. Tests using it are skipped when the variable is unset.
func openTestDB(t *testing.T) *DatabaseConnection {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	dbc, err := NewDatabaseConnection(ctx, pool)
	require.NoError(t, err)
	require.NoError(t, dbc.Migrate(ctx))
	_, err = pool.Exec(ctx, "DELETE FROM media_jobs")
	require.NoError(t, err)
	return dbc
}

func TestClaimNextMediaJobConcurrent(t *testing.T) {
	dbc := openTestDB(t)
	ctx := context.Background()

	job, err := dbc.Queries(ctx).EnqueueMediaJob(ctx, &EnqueueMediaJobParams{
		Type:  MediaJobTypeMetaAdIngest,
		Input: json.RawMessage(`{"swipe_id":"s1","product_id":"p1","url":"https://example/ads/library/123"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, int32(0), job.Attempts)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("test-worker/%d", i)
			got, err := dbc.ClaimNextMediaJob(ctx, id)
			assert.NoError(t, err)
			if got != nil {
				mu.Lock()
				winners = append(winners, id)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	require.Len(t, winners, 1, "exactly one worker claims the job")

	claimed, err := dbc.Queries(ctx).GetMediaJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, MediaJobStatusRunning, claimed.Status)
	assert.Equal(t, int32(1), claimed.Attempts)
	require.NotNil(t, claimed.LockedBy)
	assert.Equal(t, winners[0], *claimed.LockedBy)
}

func TestMediaJobRetryLifecycle(t *testing.T) {
	dbc := openTestDB(t)
	ctx := context.Background()
	store := NewStore(dbc)
	q := dbc.Queries(ctx)

	job, err := q.EnqueueMediaJob(ctx, &EnqueueMediaJobParams{Type: MediaJobTypeResearchFileIngest, Input: json.RawMessage(`{}`)})
	require.NoError(t, err)

	claimed, err := store.ClaimNextJob(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, job.ID, claimed.ID)

	runAfter := time.Now().Add(time.Minute)
	require.NoError(t, store.RetryJob(ctx, job.ID, "w1", runAfter, "No extractable text found"))

	again, err := store.ClaimNextJob(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, again, "backed-off job is not eligible yet")

	got, err := q.GetMediaJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, MediaJobStatusQueued, got.Status)
	assert.Nil(t, got.LockedBy)
	assert.WithinDuration(t, runAfter, got.RunAfter, time.Second)

	_, err = dbc.Exec(ctx, "UPDATE media_jobs SET run_after = now() - interval '1 second' WHERE id = $1", job.ID)
	require.NoError(t, err)
	claimed, err = store.ClaimNextJob(ctx, "w2")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, int32(2), claimed.Attempts)

	_, err = dbc.Exec(ctx, "UPDATE media_jobs SET locked_at = now() - interval '2 hours' WHERE id = $1", job.ID)
	require.NoError(t, err)
	n, err := store.RecoverStaleJobs(ctx, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err = q.GetMediaJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, MediaJobStatusQueued, got.Status)
	assert.Equal(t, int32(2), got.Attempts)

	claimed, err = store.ClaimNextJob(ctx, "w3")
	require.NoError(t, err)
	require.NoError(t, store.FailJob(ctx, claimed.ID, "w3", "gave up"))
	got, err = q.GetMediaJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, MediaJobStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "gave up", *got.ErrorMessage)
}

func TestLateWriteCannotTouchNewClaim(t *testing.T) {
	dbc := openTestDB(t)
	ctx := context.Background()
	store := NewStore(dbc)
	q := dbc.Queries(ctx)

	job, err := q.EnqueueMediaJob(ctx, &EnqueueMediaJobParams{Type: MediaJobTypeMetaAdIngest, Input: json.RawMessage(`{}`)})
	require.NoError(t, err)

	_, err = store.ClaimNextJob(ctx, "w1")
	require.NoError(t, err)
	_, err = dbc.Exec(ctx, "UPDATE media_jobs SET locked_at = now() - interval '2 hours' WHERE id = $1", job.ID)
	require.NoError(t, err)
	n, err := store.RecoverStaleJobs(ctx, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	second, err := store.ClaimNextJob(ctx, "w2")
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.ErrorIs(t, store.TouchJob(ctx, job.ID, "w1"), ErrLeaseLost)
	assert.ErrorIs(t, store.CompleteJob(ctx, job.ID, "w1", json.RawMessage(`{"from":"w1"}`)), ErrLeaseLost)
	assert.ErrorIs(t, store.RetryJob(ctx, job.ID, "w1", time.Now(), "late"), ErrLeaseLost)
	assert.ErrorIs(t, store.FailJob(ctx, job.ID, "w1", "late"), ErrLeaseLost)
	assert.ErrorIs(t, store.ReleaseJob(ctx, job.ID, "w1"), ErrLeaseLost)

	got, err := q.GetMediaJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, MediaJobStatusRunning, got.Status)
	require.NotNil(t, got.LockedBy)
	assert.Equal(t, "w2", *got.LockedBy)
	assert.Equal(t, int32(2), got.Attempts)

	require.NoError(t, store.TouchJob(ctx, job.ID, "w2"))
	require.NoError(t, store.CompleteJob(ctx, job.ID, "w2", json.RawMessage(`{"from":"w2"}`)))
	got, err = q.GetMediaJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, MediaJobStatusCompleted, got.Status)
	assert.JSONEq(t, `{"from":"w2"}`, string(got.Output))
}

func TestReleaseMediaJobDoesNotCountAttempt(t *testing.T) {
	dbc := openTestDB(t)
	ctx := context.Background()
	store := NewStore(dbc)
	q := dbc.Queries(ctx)

	job, err := q.EnqueueMediaJob(ctx, &EnqueueMediaJobParams{Type: MediaJobTypeMetaAdIngest, Input: json.RawMessage(`{}`)})
	require.NoError(t, err)
	claimed, err := store.ClaimNextJob(ctx, "w1")
	require.NoError(t, err)
	require.Equal(t, int32(1), claimed.Attempts)

	require.NoError(t, store.ReleaseJob(ctx, job.ID, "w1"))

	got, err := q.GetMediaJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, MediaJobStatusQueued, got.Status)
	assert.Equal(t, int32(0), got.Attempts)
	assert.Nil(t, got.LockedBy)

	again, err := store.ClaimNextJob(ctx, "w2")
	require.NoError(t, err)
	require.NotNil(t, again, "released job is eligible immediately")
	assert.Equal(t, int32(1), again.Attempts)
}

package repo

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/shaiso/engagement-workflow/internal/domain"
)

// testPool подключается к БД из DB_URL или пропускает тест.
func testPool(t *testing.T) *RunRepo {
	t.Helper()

	dsn := os.Getenv("DB_URL")
	if dsn == "" {
		t.Skip("DB_URL not set")
	}

	ctx := context.Background()
	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, EnsureSchema(ctx, pool))
	return NewRunRepo(pool)
}

func TestNewPool_EmptyDSN(t *testing.T) {
	_, err := NewPool(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoDSN)
}

func TestNullString(t *testing.T) {
	assert.Nil(t, nullString(""))
	require.NotNil(t, nullString("x"))
	assert.Equal(t, "x", *nullString("x"))
}

func TestMarshalRun_EmptySteps(t *testing.T) {
	run := domain.NewRun("20250915_060000", "./work", time.Now())

	steps, outcome, err := marshalRun(run)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(steps))
	assert.JSONEq(t, `{
		"artifact_delivered": false,
		"notification_sent": false,
		"notification_skipped": false,
		"work_dir_removed": false
	}`, string(outcome))
}

func TestRunRepo_CreateUpdateGet(t *testing.T) {
	r := testPool(t)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Millisecond)
	run := domain.NewRun("20250915_060000", "./work", start)
	require.NoError(t, r.Create(ctx, run))

	run.StartStep(domain.StepAuthenticate, start)
	run.FinishStep(domain.StepAuthenticate, domain.StepStatusSucceeded, "", start.Add(time.Second))
	run.Outcome.ArtifactDelivered = true
	run.Outcome.ShareLink = "https://share/x"
	run.MarkSucceeded(start.Add(2 * time.Second))
	require.NoError(t, r.Update(ctx, run))

	got, err := r.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCleanedUp, got.Status)
	assert.Equal(t, "20250915_060000", got.Timestamp)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, domain.StepAuthenticate, got.Steps[0].Name)
	assert.Equal(t, "https://share/x", got.Outcome.ShareLink)
	require.NotNil(t, got.FinishedAt)

	runs, err := r.List(ctx, RunFilter{Status: domain.RunStatusCleanedUp, Limit: 100})
	require.NoError(t, err)
	found := false
	for _, item := range runs {
		if item.ID == run.ID {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRunRepo_NotFound(t *testing.T) {
	r := testPool(t)
	ctx := context.Background()

	_, err := r.GetByID(ctx, uuid.New())
	assert.True(t, errors.Is(err, ErrNotFound))

	run := domain.NewRun("20250915_060000", "./work", time.Now())
	assert.ErrorIs(t, r.Update(ctx, run), ErrNotFound)
}

func TestAdvisoryLock(t *testing.T) {
	r := testPool(t)
	ctx := context.Background()

	lock := NewAdvisoryLock(r.pool, WorkflowLockKey+1)
	unlock, err := lock.TryLock(ctx)
	require.NoError(t, err)

	_, err = lock.TryLock(ctx)
	assert.ErrorIs(t, err, ErrLockHeld)

	unlock()

	unlock, err = lock.TryLock(ctx)
	require.NoError(t, err)
	unlock()
}

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentryline/brandscan/internal/domain/scanning"
	"github.com/sentryline/brandscan/internal/infra/storage"
)

func setupJobTest(t *testing.T) (context.Context, *jobStore, func()) {
	t.Helper()

	db, cleanup := storage.SetupTestContainer(t)
	store := NewJobStore(db, storage.NoOpTracer())

	return context.Background(), store, cleanup
}

type mockTimeProvider struct{ current time.Time }

func (m *mockTimeProvider) Now() time.Time { return m.current }

func createTestJob(t *testing.T, tp scanning.TimeProvider) *scanning.ScanJob {
	t.Helper()
	return scanning.NewScanJob(
		uuid.New(),
		"user-1",
		scanning.PlanTierPro,
		"brand-profile-42",
		scanning.WithJobTimeProvider(tp),
	)
}

func TestJobStore_CreateAndGet(t *testing.T) {
	t.Parallel()
	ctx, store, cleanup := setupJobTest(t)
	defer cleanup()

	tp := &mockTimeProvider{current: time.Now().UTC()}
	job := createTestJob(t, tp)
	require.NoError(t, store.CreateJob(ctx, job))

	loaded, err := store.GetJob(ctx, job.QueueID())
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, job.QueueID(), loaded.QueueID())
	assert.Equal(t, job.UserID(), loaded.UserID())
	assert.Equal(t, job.PlanTier(), loaded.PlanTier())
	assert.Equal(t, job.TargetRef(), loaded.TargetRef())
	assert.Equal(t, scanning.JobStatusQueued, loaded.Status())
	assert.Equal(t, uuid.Nil, loaded.ScanID())
	assert.WithinDuration(t, job.EnqueuedAt(), loaded.EnqueuedAt(), time.Second)
	assert.True(t, loaded.Timeline().StartedAt().IsZero(), "queued jobs should not have a start time")
}

func TestJobStore_GetJob_NotFound(t *testing.T) {
	t.Parallel()
	ctx, store, cleanup := setupJobTest(t)
	defer cleanup()

	_, err := store.GetJob(ctx, uuid.New())
	require.ErrorIs(t, err, scanning.ErrJobNotFound)
}

func TestJobStore_UpdateJob_MarksRunning(t *testing.T) {
	t.Parallel()
	ctx, store, cleanup := setupJobTest(t)
	defer cleanup()

	tp := &mockTimeProvider{current: time.Now().UTC()}
	job := createTestJob(t, tp)
	require.NoError(t, store.CreateJob(ctx, job))

	tp.current = tp.current.Add(30 * time.Second)
	scanID := uuid.New()
	require.NoError(t, job.MarkRunning(scanID))
	require.NoError(t, store.UpdateJob(ctx, job))

	loaded, err := store.GetJob(ctx, job.QueueID())
	require.NoError(t, err)

	assert.Equal(t, scanning.JobStatusRunning, loaded.Status())
	assert.Equal(t, scanID, loaded.ScanID())
	assert.WithinDuration(t, tp.current, loaded.Timeline().StartedAt(), time.Second)
	_, done := loaded.EndTime()
	assert.False(t, done)
}

func TestJobStore_UpdateJob_TerminalState(t *testing.T) {
	t.Parallel()
	ctx, store, cleanup := setupJobTest(t)
	defer cleanup()

	tp := &mockTimeProvider{current: time.Now().UTC()}
	job := createTestJob(t, tp)
	require.NoError(t, store.CreateJob(ctx, job))

	require.NoError(t, job.MarkRunning(uuid.New()))
	require.NoError(t, store.UpdateJob(ctx, job))

	tp.current = tp.current.Add(2 * time.Minute)
	require.NoError(t, job.UpdateStatus(scanning.JobStatusCompleted))
	require.NoError(t, store.UpdateJob(ctx, job))

	loaded, err := store.GetJob(ctx, job.QueueID())
	require.NoError(t, err)

	assert.Equal(t, scanning.JobStatusCompleted, loaded.Status())
	endTime, done := loaded.EndTime()
	require.True(t, done)
	assert.WithinDuration(t, tp.current, endTime, time.Second)
}

func TestJobStore_UpdateJob_NotFound(t *testing.T) {
	t.Parallel()
	ctx, store, cleanup := setupJobTest(t)
	defer cleanup()

	job := createTestJob(t, &mockTimeProvider{current: time.Now().UTC()})
	err := store.UpdateJob(ctx, job)
	require.ErrorIs(t, err, scanning.ErrJobNotFound)
}

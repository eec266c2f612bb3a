package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentryline/brandscan/internal/domain/scanning"
)

func TestJobStore_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewJobStore()

	job := scanning.NewScanJob(uuid.New(), "user-1", scanning.PlanTierBasic, "target-1")
	require.NoError(t, store.CreateJob(ctx, job))

	err := store.CreateJob(ctx, job)
	require.Error(t, err, "duplicate queue IDs are rejected")

	loaded, err := store.GetJob(ctx, job.QueueID())
	require.NoError(t, err)
	assert.Equal(t, job.QueueID(), loaded.QueueID())
	assert.Equal(t, scanning.JobStatusQueued, loaded.Status())

	// Mutating the loaded copy must not leak back into the store.
	require.NoError(t, loaded.MarkRunning(uuid.New()))
	reloaded, err := store.GetJob(ctx, job.QueueID())
	require.NoError(t, err)
	assert.Equal(t, scanning.JobStatusQueued, reloaded.Status())

	scanID := uuid.New()
	require.NoError(t, job.MarkRunning(scanID))
	require.NoError(t, store.UpdateJob(ctx, job))

	updated, err := store.GetJob(ctx, job.QueueID())
	require.NoError(t, err)
	assert.Equal(t, scanning.JobStatusRunning, updated.Status())
	assert.Equal(t, scanID, updated.ScanID())
}

func TestJobStore_NotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewJobStore()

	_, err := store.GetJob(ctx, uuid.New())
	require.ErrorIs(t, err, scanning.ErrJobNotFound)

	job := scanning.NewScanJob(uuid.New(), "user-1", scanning.PlanTierFree, "target-1")
	require.ErrorIs(t, store.UpdateJob(ctx, job), scanning.ErrJobNotFound)
}

func TestDetectionStore_SaveExistsAndList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewDetectionStore()

	scanID := uuid.New()
	base := time.Now().UTC()
	cand := scanning.Candidate{URL: "https://a.example/x", Title: "listing", Confidence: 80}

	exists, err := store.ExistsByURL(ctx, "target-1", cand.URL)
	require.NoError(t, err)
	assert.False(t, exists)

	older := scanning.NewDetection(scanID, "target-1", "kw", cand, scanning.MethodSearchEngines, base)
	require.NoError(t, store.Save(ctx, older))

	exists, err = store.ExistsByURL(ctx, "target-1", cand.URL)
	require.NoError(t, err)
	assert.True(t, exists)

	newerCand := scanning.Candidate{URL: "https://b.example/y", Confidence: 90}
	newer := scanning.NewDetection(scanID, "target-1", "kw", newerCand, scanning.MethodTargetedSites, base.Add(time.Minute))
	require.NoError(t, store.Save(ctx, newer))

	// Duplicate (target_ref, url) save is silently dropped.
	dup := scanning.NewDetection(uuid.New(), "target-1", "kw", cand, scanning.MethodSearchEngines, base.Add(2*time.Minute))
	require.NoError(t, store.Save(ctx, dup))

	detections, err := store.ListByScan(ctx, scanID)
	require.NoError(t, err)
	require.Len(t, detections, 2)
	assert.Equal(t, newer.URL(), detections[0].URL())
	assert.Equal(t, older.URL(), detections[1].URL())

	other, err := store.ListByScan(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, other)
}

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentryline/brandscan/internal/domain/scanning"
	"github.com/sentryline/brandscan/internal/infra/storage"
)

func setupDetectionTest(t *testing.T) (context.Context, *detectionStore, func()) {
	t.Helper()

	db, cleanup := storage.SetupTestContainer(t)
	store := NewDetectionStore(db, storage.NoOpTracer())

	return context.Background(), store, cleanup
}

func createTestDetection(scanID uuid.UUID, targetRef, url string, foundAt time.Time) *scanning.Detection {
	cand := scanning.Candidate{
		URL:            url,
		Title:          "Suspicious listing",
		Snippet:        "Great deals on brand items",
		Confidence:     85,
		SourcePlatform: "marketplace",
	}
	return scanning.NewDetection(scanID, targetRef, "brand keyword", cand, scanning.MethodNichePlatforms, foundAt)
}

func TestDetectionStore_SaveAndList(t *testing.T) {
	t.Parallel()
	ctx, store, cleanup := setupDetectionTest(t)
	defer cleanup()

	scanID := uuid.New()
	base := time.Now().UTC().Truncate(time.Millisecond)

	older := createTestDetection(scanID, "target-1", "https://a.example/listing", base)
	newer := createTestDetection(scanID, "target-1", "https://b.example/listing", base.Add(time.Minute))
	require.NoError(t, store.Save(ctx, older))
	require.NoError(t, store.Save(ctx, newer))

	detections, err := store.ListByScan(ctx, scanID)
	require.NoError(t, err)
	require.Len(t, detections, 2)

	assert.Equal(t, newer.URL(), detections[0].URL(), "most recent detection should come first")
	assert.Equal(t, older.URL(), detections[1].URL())

	first := detections[0]
	assert.Equal(t, newer.ID(), first.ID())
	assert.Equal(t, scanID, first.ScanID())
	assert.Equal(t, "target-1", first.TargetRef())
	assert.Equal(t, "brand keyword", first.Keyword())
	assert.Equal(t, "Suspicious listing", first.Title())
	assert.Equal(t, 85, first.Confidence())
	assert.Equal(t, "marketplace", first.SourcePlatform())
	assert.Equal(t, scanning.MethodNichePlatforms, first.Method())
	assert.WithinDuration(t, newer.FoundAt(), first.FoundAt(), time.Second)
}

func TestDetectionStore_ListByScan_Empty(t *testing.T) {
	t.Parallel()
	ctx, store, cleanup := setupDetectionTest(t)
	defer cleanup()

	detections, err := store.ListByScan(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, detections)
}

func TestDetectionStore_ExistsByURL(t *testing.T) {
	t.Parallel()
	ctx, store, cleanup := setupDetectionTest(t)
	defer cleanup()

	scanID := uuid.New()
	url := "https://shop.example/fake-item"

	exists, err := store.ExistsByURL(ctx, "target-1", url)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Save(ctx, createTestDetection(scanID, "target-1", url, time.Now().UTC())))

	exists, err = store.ExistsByURL(ctx, "target-1", url)
	require.NoError(t, err)
	assert.True(t, exists)

	// The same URL under a different target is a separate detection space.
	exists, err = store.ExistsByURL(ctx, "target-2", url)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDetectionStore_SaveDuplicateURLIsNoOp(t *testing.T) {
	t.Parallel()
	ctx, store, cleanup := setupDetectionTest(t)
	defer cleanup()

	url := "https://shop.example/item-7"
	firstScan := uuid.New()
	secondScan := uuid.New()

	require.NoError(t, store.Save(ctx, createTestDetection(firstScan, "target-1", url, time.Now().UTC())))
	require.NoError(t, store.Save(ctx, createTestDetection(secondScan, "target-1", url, time.Now().UTC())))

	detections, err := store.ListByScan(ctx, firstScan)
	require.NoError(t, err)
	assert.Len(t, detections, 1)

	detections, err = store.ListByScan(ctx, secondScan)
	require.NoError(t, err)
	assert.Empty(t, detections, "conflicting save should not be attributed to the second scan")
}

func TestDetectionStore_SaveManyAcrossScans(t *testing.T) {
	t.Parallel()
	ctx, store, cleanup := setupDetectionTest(t)
	defer cleanup()

	scanA := uuid.New()
	scanB := uuid.New()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		url := fmt.Sprintf("https://a.example/item-%d", i)
		require.NoError(t, store.Save(ctx, createTestDetection(scanA, "target-1", url, base.Add(time.Duration(i)*time.Second))))
	}
	require.NoError(t, store.Save(ctx, createTestDetection(scanB, "target-1", "https://b.example/item", base)))

	detections, err := store.ListByScan(ctx, scanA)
	require.NoError(t, err)
	assert.Len(t, detections, 5)

	for i := 1; i < len(detections); i++ {
		assert.False(t, detections[i-1].FoundAt().Before(detections[i].FoundAt()),
			"detections should be ordered most recent first")
	}
}

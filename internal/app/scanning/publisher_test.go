package scanning

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/sentryline/brandscan/internal/domain/scanning"
	"github.com/sentryline/brandscan/pkg/common/logger"
)

func snapshotAt(scanID uuid.UUID, pct int, terminal bool) domain.RunSnapshot {
	return domain.RunSnapshot{
		ScanID:   scanID,
		Progress: domain.RunProgress{ScanID: scanID, ProgressPct: pct},
		Terminal: terminal,
	}
}

func recvSnapshot(t *testing.T, ch <-chan domain.RunSnapshot) domain.RunSnapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "stream closed unexpectedly")
		return snap
	default:
		t.Fatal("no snapshot buffered")
		return domain.RunSnapshot{}
	}
}

func TestProgressPublisher_SubscribeSeedsCurrentState(t *testing.T) {
	t.Parallel()

	p := NewProgressPublisher(16, logger.Noop())
	scanID := uuid.New()

	ch, cancel := p.Subscribe(context.Background(), scanID, func() domain.RunSnapshot {
		return snapshotAt(scanID, 40, false)
	})
	defer cancel()

	seed := recvSnapshot(t, ch)
	assert.Equal(t, 40, seed.Progress.ProgressPct)
	assert.Equal(t, 1, p.SubscriberCount(scanID))
}

func TestProgressPublisher_FanOutIsScopedToScan(t *testing.T) {
	t.Parallel()

	p := NewProgressPublisher(16, logger.Noop())
	scanID := uuid.New()
	otherID := uuid.New()
	current := func() domain.RunSnapshot { return snapshotAt(scanID, 0, false) }

	first, cancelFirst := p.Subscribe(context.Background(), scanID, current)
	defer cancelFirst()
	second, cancelSecond := p.Subscribe(context.Background(), scanID, current)
	defer cancelSecond()
	recvSnapshot(t, first)
	recvSnapshot(t, second)

	p.PublishProgress(context.Background(), snapshotAt(scanID, 25, false))
	p.PublishProgress(context.Background(), snapshotAt(otherID, 99, false))

	assert.Equal(t, 25, recvSnapshot(t, first).Progress.ProgressPct)
	assert.Equal(t, 25, recvSnapshot(t, second).Progress.ProgressPct)

	select {
	case snap := <-first:
		t.Fatalf("unexpected cross-scan delivery: %+v", snap)
	default:
	}
}

func TestProgressPublisher_DropsOldestWhenBufferFull(t *testing.T) {
	t.Parallel()

	p := NewProgressPublisher(2, logger.Noop())
	scanID := uuid.New()

	ch, cancel := p.Subscribe(context.Background(), scanID, func() domain.RunSnapshot {
		return snapshotAt(scanID, 0, false)
	})
	defer cancel()

	for pct := 1; pct <= 3; pct++ {
		p.PublishProgress(context.Background(), snapshotAt(scanID, pct*10, false))
	}

	// Buffer holds two; the seed and the first update were evicted.
	assert.Equal(t, 20, recvSnapshot(t, ch).Progress.ProgressPct)
	assert.Equal(t, 30, recvSnapshot(t, ch).Progress.ProgressPct)
	select {
	case snap := <-ch:
		t.Fatalf("unexpected extra snapshot: %+v", snap)
	default:
	}
}

func TestProgressPublisher_TerminalSnapshotClosesStream(t *testing.T) {
	t.Parallel()

	p := NewProgressPublisher(16, logger.Noop())
	scanID := uuid.New()

	ch, cancel := p.Subscribe(context.Background(), scanID, func() domain.RunSnapshot {
		return snapshotAt(scanID, 50, false)
	})
	defer cancel()
	recvSnapshot(t, ch)

	p.PublishProgress(context.Background(), snapshotAt(scanID, 100, true))

	final := recvSnapshot(t, ch)
	assert.True(t, final.Terminal)
	assert.Equal(t, 100, final.Progress.ProgressPct)

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, p.SubscriberCount(scanID))
}

func TestProgressPublisher_TerminalSeedYieldsClosedStream(t *testing.T) {
	t.Parallel()

	p := NewProgressPublisher(16, logger.Noop())
	scanID := uuid.New()

	ch, cancel := p.Subscribe(context.Background(), scanID, func() domain.RunSnapshot {
		return snapshotAt(scanID, 100, true)
	})
	defer cancel()

	seed := recvSnapshot(t, ch)
	assert.True(t, seed.Terminal)

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, p.SubscriberCount(scanID))
}

func TestProgressPublisher_CancelRemovesSubscriber(t *testing.T) {
	t.Parallel()

	p := NewProgressPublisher(16, logger.Noop())
	scanID := uuid.New()

	ch, cancel := p.Subscribe(context.Background(), scanID, func() domain.RunSnapshot {
		return snapshotAt(scanID, 10, false)
	})
	recvSnapshot(t, ch)

	cancel()
	assert.Equal(t, 0, p.SubscriberCount(scanID))

	_, open := <-ch
	assert.False(t, open)

	// Publishing after removal must not panic or deliver.
	p.PublishProgress(context.Background(), snapshotAt(scanID, 20, false))
	cancel()
}

func TestProgressPublisher_ForgetDropsAllSubscribers(t *testing.T) {
	t.Parallel()

	p := NewProgressPublisher(16, logger.Noop())
	scanID := uuid.New()
	current := func() domain.RunSnapshot { return snapshotAt(scanID, 10, false) }

	first, cancelFirst := p.Subscribe(context.Background(), scanID, current)
	defer cancelFirst()
	second, cancelSecond := p.Subscribe(context.Background(), scanID, current)
	defer cancelSecond()
	recvSnapshot(t, first)
	recvSnapshot(t, second)

	p.Forget(scanID)

	assert.Equal(t, 0, p.SubscriberCount(scanID))
	_, open := <-first
	assert.False(t, open)
	_, open = <-second
	assert.False(t, open)
}

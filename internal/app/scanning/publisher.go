// Package scanning coordinates the execution of admitted scan jobs: it runs
// the per-keyword pipeline, maintains live run state and fans progress out to
// subscribers without ever blocking the run.
package scanning

import (
	"context"
	"sync"

	"github.com/google/uuid"

	domain "github.com/sentryline/brandscan/internal/domain/scanning"
	"github.com/sentryline/brandscan/pkg/common/logger"
)

// defaultSubscriberBuffer is the per-subscriber channel depth when none is
// configured.
const defaultSubscriberBuffer = 16

var _ domain.ProgressSink = (*ProgressPublisher)(nil)

// progressSub is one subscriber's delivery channel plus its removal state.
type progressSub struct {
	ch     chan domain.RunSnapshot
	closed bool
}

// ProgressPublisher fans run snapshots out to subscribers. Delivery never
// blocks the publishing run: a subscriber that falls behind loses its oldest
// buffered update first, and every snapshot is complete so the latest one
// always tells the whole story.
type ProgressPublisher struct {
	bufferSize int

	mu   sync.Mutex
	subs map[uuid.UUID]map[*progressSub]struct{}

	logger *logger.Logger
}

// NewProgressPublisher creates a publisher with the given per-subscriber
// buffer depth.
func NewProgressPublisher(bufferSize int, log *logger.Logger) *ProgressPublisher {
	if bufferSize <= 0 {
		bufferSize = defaultSubscriberBuffer
	}
	return &ProgressPublisher{
		bufferSize: bufferSize,
		subs:       make(map[uuid.UUID]map[*progressSub]struct{}),
		logger:     log.With("component", "progress_publisher"),
	}
}

// PublishProgress delivers the snapshot to every subscriber of the scan. A
// terminal snapshot also closes the subscriptions since nothing follows it.
func (p *ProgressPublisher) PublishProgress(ctx context.Context, snapshot domain.RunSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for sub := range p.subs[snapshot.ScanID] {
		deliver(sub.ch, snapshot)
	}
	if snapshot.Terminal {
		p.dropAllLocked(snapshot.ScanID)
	}
}

// Subscribe registers a subscriber for the scan's snapshot stream. The
// current function is evaluated under the publisher lock so the seed and the
// stream can never miss an update between them. A terminal seed yields an
// immediately closed channel.
func (p *ProgressPublisher) Subscribe(ctx context.Context, scanID uuid.UUID, current func() domain.RunSnapshot) (<-chan domain.RunSnapshot, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sub := &progressSub{ch: make(chan domain.RunSnapshot, p.bufferSize)}
	seed := current()
	sub.ch <- seed

	if seed.Terminal {
		close(sub.ch)
		sub.closed = true
		return sub.ch, func() {}
	}

	if p.subs[scanID] == nil {
		p.subs[scanID] = make(map[*progressSub]struct{})
	}
	p.subs[scanID][sub] = struct{}{}

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.dropLocked(scanID, sub)
	}
	return sub.ch, cancel
}

// SubscriberCount reports the live subscribers for a scan.
func (p *ProgressPublisher) SubscriberCount(scanID uuid.UUID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs[scanID])
}

// Forget drops all subscriptions for a scan whose retention expired.
func (p *ProgressPublisher) Forget(scanID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropAllLocked(scanID)
}

func (p *ProgressPublisher) dropAllLocked(scanID uuid.UUID) {
	for sub := range p.subs[scanID] {
		p.dropLocked(scanID, sub)
	}
}

func (p *ProgressPublisher) dropLocked(scanID uuid.UUID, sub *progressSub) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
	delete(p.subs[scanID], sub)
	if len(p.subs[scanID]) == 0 {
		delete(p.subs, scanID)
	}
}

// deliver enqueues the snapshot without blocking, evicting the subscriber's
// oldest buffered update when the channel is full.
func deliver(ch chan domain.RunSnapshot, snapshot domain.RunSnapshot) {
	for {
		select {
		case ch <- snapshot:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

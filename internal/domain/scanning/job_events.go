package scanning

import (
	"time"

	"github.com/google/uuid"

	"github.com/sentryline/brandscan/internal/domain/events"
)

// Event types relevant to queue jobs:
const (
	EventTypeJobEnqueued  events.EventType = "JobEnqueued"
	EventTypeJobStarted   events.EventType = "JobStarted"
	EventTypeJobCancelled events.EventType = "JobCancelled"
)

// JobEnqueuedEvent signals that a scan request passed admission and is
// waiting in the queue.
type JobEnqueuedEvent struct {
	occurredAt time.Time
	QueueID    uuid.UUID
	UserID     string
	PlanTier   PlanTier
	TargetRef  string
}

// NewJobEnqueuedEvent creates a new job enqueued event.
func NewJobEnqueuedEvent(queueID uuid.UUID, userID string, tier PlanTier, targetRef string) JobEnqueuedEvent {
	return JobEnqueuedEvent{
		occurredAt: time.Now(),
		QueueID:    queueID,
		UserID:     userID,
		PlanTier:   tier,
		TargetRef:  targetRef,
	}
}

func (e JobEnqueuedEvent) EventType() events.EventType { return EventTypeJobEnqueued }
func (e JobEnqueuedEvent) OccurredAt() time.Time       { return e.occurredAt }

// JobStartedEvent signals that a queued job was granted a slot and its run
// began executing.
type JobStartedEvent struct {
	occurredAt time.Time
	QueueID    uuid.UUID
	ScanID     uuid.UUID
	UserID     string
	TargetRef  string
}

// NewJobStartedEvent creates a new job started event.
func NewJobStartedEvent(queueID, scanID uuid.UUID, userID, targetRef string) JobStartedEvent {
	return JobStartedEvent{
		occurredAt: time.Now(),
		QueueID:    queueID,
		ScanID:     scanID,
		UserID:     userID,
		TargetRef:  targetRef,
	}
}

func (e JobStartedEvent) EventType() events.EventType { return EventTypeJobStarted }
func (e JobStartedEvent) OccurredAt() time.Time       { return e.occurredAt }

// JobCancelledEvent signals that a waiting job was removed from the queue
// before it started running.
type JobCancelledEvent struct {
	occurredAt  time.Time
	QueueID     uuid.UUID
	UserID      string
	CancelledAt time.Time
}

// NewJobCancelledEvent creates a new job cancelled event.
func NewJobCancelledEvent(queueID uuid.UUID, userID string) JobCancelledEvent {
	now := time.Now()
	return JobCancelledEvent{
		occurredAt:  now,
		QueueID:     queueID,
		UserID:      userID,
		CancelledAt: now,
	}
}

func (e JobCancelledEvent) EventType() events.EventType { return EventTypeJobCancelled }
func (e JobCancelledEvent) OccurredAt() time.Time       { return e.occurredAt }

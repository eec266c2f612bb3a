package scanning

import "time"

// TimeProvider is an interface that provides a Now method to get the current time.
type TimeProvider interface {
	Now() time.Time
}

// Real implementation for production.
type realTimeProvider struct{}

func (r *realTimeProvider) Now() time.Time { return time.Now() }

// DefaultTimeProvider returns the wall-clock provider used outside tests.
func DefaultTimeProvider() TimeProvider { return new(realTimeProvider) }

// Timeline tracks temporal aspects of scan jobs: when they entered the queue,
// when execution began and when they reached a terminal state.
type Timeline struct {
	enqueuedAt   time.Time
	startedAt    time.Time
	completedAt  time.Time
	lastUpdate   time.Time
	timeProvider TimeProvider
}

// NewTimeline creates a new Timeline instance anchored at enqueue time.
func NewTimeline(timeProvider TimeProvider) *Timeline {
	now := timeProvider.Now()
	return &Timeline{
		enqueuedAt:   now,
		lastUpdate:   now,
		timeProvider: timeProvider,
	}
}

// ReconstructTimeline restores a Timeline from persisted timestamps.
func ReconstructTimeline(enqueuedAt, startedAt, completedAt time.Time, timeProvider TimeProvider) *Timeline {
	return &Timeline{
		enqueuedAt:   enqueuedAt,
		startedAt:    startedAt,
		completedAt:  completedAt,
		lastUpdate:   enqueuedAt,
		timeProvider: timeProvider,
	}
}

// EnqueuedAt returns the time the job entered the admission queue.
func (t *Timeline) EnqueuedAt() time.Time { return t.enqueuedAt }

// StartedAt returns the time the scan run started.
func (t *Timeline) StartedAt() time.Time { return t.startedAt }

// CompletedAt returns the time the job reached a terminal state.
func (t *Timeline) CompletedAt() time.Time { return t.completedAt }

// LastUpdate returns the time the job was last updated.
func (t *Timeline) LastUpdate() time.Time { return t.lastUpdate }

// MarkStarted records the start of execution.
func (t *Timeline) MarkStarted() {
	t.startedAt = t.timeProvider.Now()
	t.UpdateLastUpdate()
}

// MarkCompleted records completion time.
func (t *Timeline) MarkCompleted() {
	t.completedAt = t.timeProvider.Now()
	t.UpdateLastUpdate()
}

// UpdateLastUpdate updates the last update timestamp.
func (t *Timeline) UpdateLastUpdate() {
	t.lastUpdate = t.timeProvider.Now()
}

// IsCompleted checks if the timeline has been marked as completed.
func (t *Timeline) IsCompleted() bool { return !t.completedAt.IsZero() }

// WaitDuration returns how long the job sat queued before starting, or zero
// if it never started.
func (t *Timeline) WaitDuration() time.Duration {
	if t.startedAt.IsZero() {
		return 0
	}
	return t.startedAt.Sub(t.enqueuedAt)
}

// RunDuration returns how long the run executed, or zero if it never reached
// a terminal state.
func (t *Timeline) RunDuration() time.Duration {
	if t.startedAt.IsZero() || t.completedAt.IsZero() {
		return 0
	}
	return t.completedAt.Sub(t.startedAt)
}

package scanning

import (
	"time"

	"github.com/google/uuid"
)

// QueueEntryView is a caller-scoped snapshot of one live job in the queue.
// Position and the wait estimate are zero once the job is running.
type QueueEntryView struct {
	QueueID         uuid.UUID `json:"queue_id"`
	ScanID          uuid.UUID `json:"scan_id,omitempty"`
	PlanTier        PlanTier  `json:"plan_tier"`
	Status          JobStatus `json:"status"`
	EnqueuedAt      time.Time `json:"enqueued_at"`
	Position        int       `json:"position"`
	EstimatedWaitMs int64     `json:"estimated_wait_ms"`
}

// QueueMetricsSnapshot is the operator-facing aggregate computed over the
// rolling metrics window. It feeds capacity dashboards, never scheduling
// decisions.
type QueueMetricsSnapshot struct {
	AvgWaitMs        int64            `json:"avg_wait_ms"`
	CompletionRate   float64          `json:"completion_rate"`
	ErrorRate        float64          `json:"error_rate"`
	PlanDistribution map[PlanTier]int `json:"plan_distribution"`
	WindowStart      time.Time        `json:"window_start"`
	ComputedAt       time.Time        `json:"computed_at"`
}

// JobCompletion reports a finished run back to the admission queue so the
// occupied slot is released and the outcome lands in the metrics window.
type JobCompletion struct {
	QueueID    uuid.UUID
	ScanID     uuid.UUID
	Status     JobStatus
	StartedAt  time.Time
	FinishedAt time.Time
}

package scanning

import (
	"time"

	"github.com/google/uuid"
)

// RunProgress is the pull view polling clients read.
type RunProgress struct {
	ScanID            uuid.UUID `json:"scan_id"`
	Phase             RunPhase  `json:"phase"`
	ProgressPct       int       `json:"progress_pct"`
	ProcessedKeywords int       `json:"processed_keywords"`
	TotalKeywords     int       `json:"total_keywords"`
	CurrentActivity   string    `json:"current_activity"`
	ErrorCount        int       `json:"error_count"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// RunSnapshot is the immutable point-in-time copy of a run that both the
// pull accessors and the progress publisher hand out. Push and pull views
// are derived from the same snapshot so they can never diverge.
type RunSnapshot struct {
	ScanID        uuid.UUID       `json:"scan_id"`
	QueueID       uuid.UUID       `json:"queue_id"`
	UserID        string          `json:"user_id"`
	TargetRef     string          `json:"target_ref"`
	Progress      RunProgress     `json:"progress"`
	Methods       []MethodStatus  `json:"methods"`
	Insights      Insights        `json:"insights"`
	Activities    []ActivityEntry `json:"activities"`
	NewDetections int             `json:"new_detections"`
	Terminal      bool            `json:"terminal"`
}

// Snapshot copies the run's externally visible state under the read lock.
func (r *ScanRun) Snapshot() RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RunSnapshot{
		ScanID:    r.scanID,
		QueueID:   r.queueID,
		UserID:    r.userID,
		TargetRef: r.targetRef,
		Progress: RunProgress{
			ScanID:            r.scanID,
			Phase:             r.phase,
			ProgressPct:       r.progressPct,
			ProcessedKeywords: r.processedKeywords,
			TotalKeywords:     r.totalKeywords,
			CurrentActivity:   r.currentActivity,
			ErrorCount:        r.errorCount,
			UpdatedAt:         r.updatedAt,
		},
		Methods:       r.methods.statuses(),
		Insights:      r.insights,
		Activities:    r.activities.recent(0),
		NewDetections: r.newDetections,
		Terminal:      r.phase.IsTerminal(),
	}
}

// RecentActivities returns up to limit activity entries, most recent first.
func (r *ScanRun) RecentActivities(limit int) []ActivityEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activities.recent(limit)
}

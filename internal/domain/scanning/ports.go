// Package scanning provides the domain types and interfaces for admitting,
// executing, and observing brand-protection scans. It defines the core
// abstractions the application layer coordinates: queue jobs, run state,
// detection results, and the collaborator ports a run depends on.
package scanning

import (
	"context"

	"github.com/google/uuid"
)

// KeywordResolver expands a target reference into the ordered keyword plan a
// run executes. Resolution happens once per run, before any searching starts.
type KeywordResolver interface {
	// Resolve returns the keywords derived from the target reference.
	// An empty slice is a valid result and means the run has nothing to
	// search. A non-nil error aborts the run before any keyword work.
	Resolve(ctx context.Context, targetRef string) ([]string, error)
}

// SearchExecutor performs the per-keyword search against the external
// surface (search engines, marketplaces, social platforms).
type SearchExecutor interface {
	// Search returns candidate findings for a single keyword. Failures are
	// scoped to the keyword; callers record them and move on.
	Search(ctx context.Context, keyword string, excludeDomains []string, maxResults int) ([]Candidate, error)
}

// ResultStore persists confirmed detections and answers duplicate checks
// against previously stored results.
type ResultStore interface {
	// ExistsByURL reports whether a detection with the given URL was already
	// stored for the target reference.
	ExistsByURL(ctx context.Context, targetRef, url string) (bool, error)

	// Save persists a single detection.
	Save(ctx context.Context, d *Detection) error
}

// CandidateClassifier maps an accepted candidate onto the detection channel
// and risk taxonomy. NewSite is left for the caller, which owns per-run
// dedup state.
type CandidateClassifier interface {
	Classify(keyword string, cand Candidate) DetectionAssessment
}

// Notifier delivers end-of-run detection notices to the user-facing
// notification pipeline. Delivery failures never affect run outcome.
type Notifier interface {
	Notify(ctx context.Context, notice DetectionsNotice) error
}

// JobRepository provides persistent storage for queue jobs.
type JobRepository interface {
	// CreateJob inserts a new queued job.
	CreateJob(ctx context.Context, job *ScanJob) error

	// UpdateJob persists the job's current status and timeline.
	UpdateJob(ctx context.Context, job *ScanJob) error

	// GetJob retrieves a job by its queue ID.
	// Returns ErrJobNotFound when no job exists with the given ID.
	GetJob(ctx context.Context, queueID uuid.UUID) (*ScanJob, error)
}

// DetectionRepository provides persistent storage for detections surfaced by
// completed keyword work.
type DetectionRepository interface {
	ResultStore

	// ListByScan returns the detections recorded for a scan, most recent
	// first.
	ListByScan(ctx context.Context, scanID uuid.UUID) ([]*Detection, error)
}

// CompletionHandler receives terminal run outcomes so the admission side can
// release slots and fold the result into its metrics window.
type CompletionHandler interface {
	HandleCompletion(ctx context.Context, completion JobCompletion)
}

// ProgressSink consumes run snapshots as they are produced. Implementations
// must not block the caller.
type ProgressSink interface {
	PublishProgress(ctx context.Context, snapshot RunSnapshot)
}

package scanning

import (
	"context"

	"github.com/google/uuid"
)

// ScanQueueService coordinates admission, cancellation and visibility of
// queued scan jobs. It owns fairness across plan tiers and every concurrency
// ceiling; callers never reach around it to start work.
type ScanQueueService interface {
	// Enqueue admits a scan request and returns its queue ID. Requests that
	// would exceed the per-user allowance or the backlog capacity fail with
	// an AdmissionRejectedError.
	Enqueue(ctx context.Context, userID string, tier PlanTier, targetRef string) (uuid.UUID, error)

	// Cancel removes a waiting job owned by userID. It reports true only when
	// this call removed the job. Missing jobs, jobs owned by someone else and
	// jobs already past QUEUED report false, never an error, so existence is
	// not disclosed to non-owners.
	Cancel(ctx context.Context, userID string, queueID uuid.UUID) (bool, error)

	// Status returns the caller's queued and running jobs. Waiting entries
	// carry their queue position and an estimated wait derived from recent
	// run durations.
	Status(ctx context.Context, userID string) ([]QueueEntryView, error)

	// Metrics returns aggregate queue health over the rolling window.
	Metrics(ctx context.Context) (QueueMetricsSnapshot, error)
}

// ScanRunService exposes the lifecycle and read models of executing runs.
// All read paths are served from the same snapshot the push channel carries.
type ScanRunService interface {
	// Stop requests cooperative cancellation of a running scan. It returns
	// true when this call flagged the run and false when the run was already
	// stopping or finished. Unknown scans surface ErrRunNotFound.
	Stop(ctx context.Context, scanID uuid.UUID) (bool, error)

	// Progress returns the run's current progress view.
	Progress(ctx context.Context, scanID uuid.UUID) (RunProgress, error)

	// Methods returns per-channel detection status for the run.
	Methods(ctx context.Context, scanID uuid.UUID) ([]MethodStatus, error)

	// Insights returns the run's accumulated insight rollup.
	Insights(ctx context.Context, scanID uuid.UUID) (Insights, error)

	// Activities returns up to limit recent activity entries, newest first.
	Activities(ctx context.Context, scanID uuid.UUID, limit int) ([]ActivityEntry, error)

	// Snapshot returns the full point-in-time view of the run.
	Snapshot(ctx context.Context, scanID uuid.UUID) (RunSnapshot, error)

	// Watch subscribes to the run's snapshot stream, seeded with the current
	// snapshot. The channel closes once the run is terminal; the returned
	// cancel releases the subscription early.
	Watch(ctx context.Context, scanID uuid.UUID) (<-chan RunSnapshot, func(), error)
}

// RunLauncher starts the scan run for a job whose queue slot was just
// granted. The returned scan ID identifies the live run.
type RunLauncher interface {
	LaunchRun(ctx context.Context, job *ScanJob) (uuid.UUID, error)
}

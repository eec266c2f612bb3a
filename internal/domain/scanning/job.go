package scanning

import (
	"time"

	"github.com/google/uuid"
)

// ScanJob is the immutable request descriptor plus mutable lifecycle state of
// one user's scan. The admission queue owns its status while the job is
// queued; ownership of run state transfers to the orchestrator the moment the
// job starts running.
type ScanJob struct {
	queueID   uuid.UUID
	userID    string
	planTier  PlanTier
	targetRef string
	status    JobStatus
	scanID    uuid.UUID
	timeline  *Timeline
}

// NewScanJob creates a newly admitted job in the QUEUED state.
func NewScanJob(queueID uuid.UUID, userID string, tier PlanTier, targetRef string, opts ...JobOption) *ScanJob {
	job := &ScanJob{
		queueID:   queueID,
		userID:    userID,
		planTier:  tier,
		targetRef: targetRef,
		status:    JobStatusQueued,
	}
	for _, opt := range opts {
		opt(job)
	}
	if job.timeline == nil {
		job.timeline = NewTimeline(new(realTimeProvider))
	}
	return job
}

// ReconstructScanJob creates a ScanJob from stored fields, bypassing creation
// invariants. This should only be used by repositories when loading from the DB.
func ReconstructScanJob(
	queueID uuid.UUID,
	userID string,
	tier PlanTier,
	targetRef string,
	status JobStatus,
	scanID uuid.UUID,
	timeline *Timeline,
) *ScanJob {
	return &ScanJob{
		queueID:   queueID,
		userID:    userID,
		planTier:  tier,
		targetRef: targetRef,
		status:    status,
		scanID:    scanID,
		timeline:  timeline,
	}
}

// JobOption customizes job construction.
type JobOption func(*ScanJob)

// WithJobTimeProvider lets tests control the job's clock.
func WithJobTimeProvider(tp TimeProvider) JobOption {
	return func(j *ScanJob) { j.timeline = NewTimeline(tp) }
}

// QueueID returns the identifier assigned at enqueue time, stable for the
// job's lifetime.
func (j *ScanJob) QueueID() uuid.UUID { return j.queueID }

// UserID returns the job owner.
func (j *ScanJob) UserID() string { return j.userID }

// PlanTier returns the fairness class the job was admitted under.
func (j *ScanJob) PlanTier() PlanTier { return j.planTier }

// TargetRef returns the opaque reference to the monitored brand profile.
func (j *ScanJob) TargetRef() string { return j.targetRef }

// Status returns the current lifecycle state.
func (j *ScanJob) Status() JobStatus { return j.status }

// EnqueuedAt returns when the job entered the queue.
func (j *ScanJob) EnqueuedAt() time.Time { return j.timeline.EnqueuedAt() }

// ScanID returns the run identifier once the job has started, or uuid.Nil.
func (j *ScanJob) ScanID() uuid.UUID { return j.scanID }

// Timeline provides access to the job's timeline information.
func (j *ScanJob) Timeline() *Timeline { return j.timeline }

// EndTime returns when this job reached a terminal state.
func (j *ScanJob) EndTime() (time.Time, bool) {
	if j.status.IsTerminal() {
		return j.timeline.CompletedAt(), true
	}
	return time.Time{}, false
}

// MarkRunning transitions the job to RUNNING and binds the scan run that now
// owns its execution state.
func (j *ScanJob) MarkRunning(scanID uuid.UUID) error {
	if err := j.UpdateStatus(JobStatusRunning); err != nil {
		return err
	}
	j.scanID = scanID
	return nil
}

// UpdateStatus changes the job's status after validating the transition.
// It returns an error if the transition is not valid.
func (j *ScanJob) UpdateStatus(newStatus JobStatus) error {
	if err := j.status.ValidateTransition(newStatus); err != nil {
		return err
	}

	// Mark the start time when transitioning from QUEUED to RUNNING as this
	// represents the beginning of actual execution.
	if j.status == JobStatusQueued && newStatus == JobStatusRunning {
		j.timeline.MarkStarted()
	}

	if newStatus.IsTerminal() {
		j.timeline.MarkCompleted()
	}

	j.status = newStatus
	return nil
}

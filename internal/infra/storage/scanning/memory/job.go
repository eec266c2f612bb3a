// Package memory provides in-memory implementations of the scanning
// repositories for tests and single-node development. Stores hand out
// reconstructed copies so callers never alias internal state.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/sentryline/brandscan/internal/domain/scanning"
)

// JobStore is an in-memory scanning.JobRepository.
type JobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*scanning.ScanJob
}

var _ scanning.JobRepository = (*JobStore)(nil)

// NewJobStore creates an empty in-memory job repository.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[uuid.UUID]*scanning.ScanJob)}
}

// CreateJob inserts a new queued job.
func (s *JobStore) CreateJob(ctx context.Context, job *scanning.ScanJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.QueueID()]; exists {
		return fmt.Errorf("scan job %s already exists", job.QueueID())
	}
	s.jobs[job.QueueID()] = copyJob(job)
	return nil
}

// UpdateJob persists the job's current status and timeline.
func (s *JobStore) UpdateJob(ctx context.Context, job *scanning.ScanJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.QueueID()]; !exists {
		return scanning.ErrJobNotFound
	}
	s.jobs[job.QueueID()] = copyJob(job)
	return nil
}

// GetJob retrieves a job by its queue ID.
func (s *JobStore) GetJob(ctx context.Context, queueID uuid.UUID) (*scanning.ScanJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[queueID]
	if !exists {
		return nil, scanning.ErrJobNotFound
	}
	return copyJob(job), nil
}

func copyJob(job *scanning.ScanJob) *scanning.ScanJob {
	timeline := scanning.ReconstructTimeline(
		job.EnqueuedAt(),
		job.Timeline().StartedAt(),
		job.Timeline().CompletedAt(),
		scanning.DefaultTimeProvider(),
	)
	return scanning.ReconstructScanJob(
		job.QueueID(),
		job.UserID(),
		job.PlanTier(),
		job.TargetRef(),
		job.Status(),
		job.ScanID(),
		timeline,
	)
}

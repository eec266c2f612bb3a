package scanning

import (
	"fmt"
)

// JobStatus represents the current state of a scan job. It enables tracking of
// job lifecycle from admission through completion, failure or cancellation.
type JobStatus string

const (
	// JobStatusUnspecified is the zero value, used when a stored status fails
	// to parse.
	JobStatusUnspecified JobStatus = ""

	// JobStatusQueued indicates a job has been admitted to the queue but has
	// not yet been handed to the orchestrator.
	JobStatusQueued JobStatus = "QUEUED"

	// JobStatusRunning indicates a job's scan run is actively executing.
	JobStatusRunning JobStatus = "RUNNING"

	// JobStatusCompleted indicates the scan run finished successfully.
	JobStatusCompleted JobStatus = "COMPLETED"

	// JobStatusError indicates the scan run failed with an unrecoverable error.
	JobStatusError JobStatus = "ERROR"

	// JobStatusCancelled indicates the job was cancelled while queued or its
	// run was stopped cooperatively.
	JobStatusCancelled JobStatus = "CANCELLED"
)

func (s JobStatus) String() string { return string(s) }

// IsTerminal reports whether no further transitions are allowed from s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusError, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseJobStatus converts a string to a JobStatus.
func ParseJobStatus(s string) JobStatus {
	switch s {
	case "QUEUED":
		return JobStatusQueued
	case "RUNNING":
		return JobStatusRunning
	case "COMPLETED":
		return JobStatusCompleted
	case "ERROR":
		return JobStatusError
	case "CANCELLED":
		return JobStatusCancelled
	default:
		return JobStatusUnspecified
	}
}

// ValidateTransition checks if a status transition is valid and returns an error if not.
func (s JobStatus) ValidateTransition(target JobStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid job status transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition checks if the current status can transition to the target status.
// It enforces the job lifecycle rules to prevent invalid state changes.
func (s JobStatus) isValidTransition(target JobStatus) bool {
	switch s {
	case JobStatusQueued:
		// From Queued, the job either starts running or is cancelled.
		return target == JobStatusRunning || target == JobStatusCancelled
	case JobStatusRunning:
		// From Running, the run ends in exactly one terminal state.
		return target == JobStatusCompleted || target == JobStatusError || target == JobStatusCancelled
	case JobStatusCompleted, JobStatusError, JobStatusCancelled:
		// Terminal states - no further transitions allowed.
		return false
	default:
		return false
	}
}

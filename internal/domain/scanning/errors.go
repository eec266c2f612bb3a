package scanning

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrJobNotFound indicates the queue has no job with the given ID visible to
// the caller. Ownership misses return the same error so existence is never
// disclosed to a non-owner.
var ErrJobNotFound = errors.New("scan job not found")

// ErrRunNotFound indicates no live or retained run exists for the scan ID.
var ErrRunNotFound = errors.New("scan run not found")

// AdmissionReason categorizes why the queue refused a request.
type AdmissionReason string

const (
	// AdmissionReasonUserLimit means the user's live jobs already consume
	// the plan's per-user concurrency allowance.
	AdmissionReasonUserLimit AdmissionReason = "user_limit_reached"

	// AdmissionReasonQueueFull means the pending backlog is at capacity.
	AdmissionReasonQueueFull AdmissionReason = "queue_full"

	// AdmissionReasonUnknownTier means the request named a plan tier the
	// scheduler has no configuration for.
	AdmissionReasonUnknownTier AdmissionReason = "unknown_plan_tier"
)

// AdmissionRejectedError reports a synchronous enqueue refusal. It is the
// caller's signal to back off or upgrade; the queue never retries on its own.
type AdmissionRejectedError struct {
	UserID string
	Tier   PlanTier
	Reason AdmissionReason
}

// NewAdmissionRejectedError creates an AdmissionRejectedError.
func NewAdmissionRejectedError(userID string, tier PlanTier, reason AdmissionReason) *AdmissionRejectedError {
	return &AdmissionRejectedError{UserID: userID, Tier: tier, Reason: reason}
}

func (e *AdmissionRejectedError) Error() string {
	return fmt.Sprintf("admission rejected for user %s (tier %s): %s", e.UserID, e.Tier, e.Reason)
}

// ResolverFailureError indicates keyword resolution failed before any keyword
// executed. It is fatal to the run.
type ResolverFailureError struct {
	TargetRef string
	Err       error
}

// NewResolverFailureError wraps a keyword resolver failure.
func NewResolverFailureError(targetRef string, err error) *ResolverFailureError {
	return &ResolverFailureError{TargetRef: targetRef, Err: err}
}

func (e *ResolverFailureError) Error() string {
	return fmt.Sprintf("keyword resolution failed for target %s: %v", e.TargetRef, e.Err)
}

func (e *ResolverFailureError) Unwrap() error { return e.Err }

// RunInvalidStateError indicates an operation was attempted against a run in
// a phase that does not permit it.
type RunInvalidStateError struct {
	ScanID uuid.UUID
	Phase  RunPhase
	Op     string
}

// NewRunInvalidStateError creates a RunInvalidStateError.
func NewRunInvalidStateError(scanID uuid.UUID, phase RunPhase, op string) *RunInvalidStateError {
	return &RunInvalidStateError{ScanID: scanID, Phase: phase, Op: op}
}

func (e *RunInvalidStateError) Error() string {
	return fmt.Sprintf("run %s: cannot %s in phase %s", e.ScanID, e.Op, e.Phase)
}

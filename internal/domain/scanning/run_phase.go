package scanning

import (
	"fmt"
)

// RunPhase represents the execution stage of a live scan run. The progress
// phases advance strictly in order; failed and cancelled are the abnormal
// terminal phases.
type RunPhase string

const (
	// RunPhaseUnspecified is the zero value, used when a stored phase fails
	// to parse.
	RunPhaseUnspecified RunPhase = ""

	// RunPhaseInitializing indicates keyword resolution is in flight.
	RunPhaseInitializing RunPhase = "initializing"

	// RunPhaseSearching indicates the primary keyword sweep is executing.
	RunPhaseSearching RunPhase = "searching"

	// RunPhaseAnalyzing indicates results are being correlated into insights.
	RunPhaseAnalyzing RunPhase = "analyzing"

	// RunPhaseVerifying indicates detections are being confirmed.
	RunPhaseVerifying RunPhase = "verifying"

	// RunPhaseCompleted indicates the run finished all keywords.
	RunPhaseCompleted RunPhase = "completed"

	// RunPhaseFailed indicates an unrecoverable error ended the run.
	RunPhaseFailed RunPhase = "failed"

	// RunPhaseCancelled indicates a cooperative stop ended the run early.
	RunPhaseCancelled RunPhase = "cancelled"
)

func (p RunPhase) String() string { return string(p) }

// IsTerminal reports whether no further mutation of the run is permitted.
func (p RunPhase) IsTerminal() bool {
	switch p {
	case RunPhaseCompleted, RunPhaseFailed, RunPhaseCancelled:
		return true
	default:
		return false
	}
}

// ParseRunPhase converts a string to a RunPhase.
func ParseRunPhase(s string) RunPhase {
	switch s {
	case "initializing":
		return RunPhaseInitializing
	case "searching":
		return RunPhaseSearching
	case "analyzing":
		return RunPhaseAnalyzing
	case "verifying":
		return RunPhaseVerifying
	case "completed":
		return RunPhaseCompleted
	case "failed":
		return RunPhaseFailed
	case "cancelled":
		return RunPhaseCancelled
	default:
		return RunPhaseUnspecified
	}
}

// next returns the phase that follows p on the normal progress path.
func (p RunPhase) next() RunPhase {
	switch p {
	case RunPhaseInitializing:
		return RunPhaseSearching
	case RunPhaseSearching:
		return RunPhaseAnalyzing
	case RunPhaseAnalyzing:
		return RunPhaseVerifying
	case RunPhaseVerifying:
		return RunPhaseCompleted
	default:
		return ""
	}
}

// ValidateTransition checks if a phase transition is valid and returns an
// error if not.
func (p RunPhase) ValidateTransition(target RunPhase) error {
	if !p.isValidTransition(target) {
		return fmt.Errorf("invalid run phase transition from %s to %s", p, target)
	}
	return nil
}

// isValidTransition checks if the current phase can transition to the target
// phase. Progress phases move one step at a time; failed and cancelled are
// reachable from any non-terminal phase.
func (p RunPhase) isValidTransition(target RunPhase) bool {
	if p.IsTerminal() {
		return false
	}
	if target == RunPhaseFailed || target == RunPhaseCancelled {
		return true
	}
	return target == p.next()
}

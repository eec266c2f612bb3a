package scanning

import (
	"time"

	"github.com/google/uuid"

	"github.com/sentryline/brandscan/internal/domain/events"
)

// Event types relevant to scan runs:
const (
	EventTypeScanStarted     events.EventType = "ScanStarted"
	EventTypeScanProgressed  events.EventType = "ScanProgressed"
	EventTypeScanCompleted   events.EventType = "ScanCompleted"
	EventTypeScanFailed      events.EventType = "ScanFailed"
	EventTypeScanCancelled   events.EventType = "ScanCancelled"
	EventTypeDetectionsFound events.EventType = "DetectionsFound"
)

// ScanStartedEvent signals that a run transitioned out of the queue and began
// resolving its keyword plan.
type ScanStartedEvent struct {
	occurredAt time.Time
	ScanID     uuid.UUID
	QueueID    uuid.UUID
	UserID     string
	TargetRef  string
}

// NewScanStartedEvent creates a new scan started event.
func NewScanStartedEvent(scanID, queueID uuid.UUID, userID, targetRef string) ScanStartedEvent {
	return ScanStartedEvent{
		occurredAt: time.Now(),
		ScanID:     scanID,
		QueueID:    queueID,
		UserID:     userID,
		TargetRef:  targetRef,
	}
}

func (e ScanStartedEvent) EventType() events.EventType { return EventTypeScanStarted }
func (e ScanStartedEvent) OccurredAt() time.Time       { return e.occurredAt }

// ScanProgressedEvent carries a progress snapshot emitted at a keyword
// boundary. Consumers that miss intermediate events can rely on the latest
// one being a complete picture.
type ScanProgressedEvent struct {
	occurredAt time.Time
	Progress   RunProgress
}

// NewScanProgressedEvent creates a new scan progressed event.
func NewScanProgressedEvent(progress RunProgress) ScanProgressedEvent {
	return ScanProgressedEvent{occurredAt: time.Now(), Progress: progress}
}

func (e ScanProgressedEvent) EventType() events.EventType { return EventTypeScanProgressed }
func (e ScanProgressedEvent) OccurredAt() time.Time       { return e.occurredAt }

// ScanCompletedEvent means the run finished all keyword work successfully.
type ScanCompletedEvent struct {
	occurredAt    time.Time
	ScanID        uuid.UUID
	QueueID       uuid.UUID
	NewDetections int
	RiskLevel     RiskLevel
	Duration      time.Duration
}

// NewScanCompletedEvent creates a new scan completed event.
func NewScanCompletedEvent(scanID, queueID uuid.UUID, newDetections int, risk RiskLevel, duration time.Duration) ScanCompletedEvent {
	return ScanCompletedEvent{
		occurredAt:    time.Now(),
		ScanID:        scanID,
		QueueID:       queueID,
		NewDetections: newDetections,
		RiskLevel:     risk,
		Duration:      duration,
	}
}

func (e ScanCompletedEvent) EventType() events.EventType { return EventTypeScanCompleted }
func (e ScanCompletedEvent) OccurredAt() time.Time       { return e.occurredAt }

// ScanFailedEvent means the run hit an unrecoverable error.
type ScanFailedEvent struct {
	occurredAt time.Time
	ScanID     uuid.UUID
	QueueID    uuid.UUID
	Reason     string
}

// NewScanFailedEvent creates a new scan failed event.
func NewScanFailedEvent(scanID, queueID uuid.UUID, reason string) ScanFailedEvent {
	return ScanFailedEvent{
		occurredAt: time.Now(),
		ScanID:     scanID,
		QueueID:    queueID,
		Reason:     reason,
	}
}

func (e ScanFailedEvent) EventType() events.EventType { return EventTypeScanFailed }
func (e ScanFailedEvent) OccurredAt() time.Time       { return e.occurredAt }

// ScanCancelledEvent signals that a running scan honored a stop request at a
// keyword boundary.
type ScanCancelledEvent struct {
	occurredAt        time.Time
	ScanID            uuid.UUID
	QueueID           uuid.UUID
	ProcessedKeywords int
	TotalKeywords     int
}

// NewScanCancelledEvent creates a new scan cancelled event.
func NewScanCancelledEvent(scanID, queueID uuid.UUID, processed, total int) ScanCancelledEvent {
	return ScanCancelledEvent{
		occurredAt:        time.Now(),
		ScanID:            scanID,
		QueueID:           queueID,
		ProcessedKeywords: processed,
		TotalKeywords:     total,
	}
}

func (e ScanCancelledEvent) EventType() events.EventType { return EventTypeScanCancelled }
func (e ScanCancelledEvent) OccurredAt() time.Time       { return e.occurredAt }

// DetectionsFoundEvent carries the end-of-run notice for runs that surfaced
// new detections. Runs with zero new detections never emit it.
type DetectionsFoundEvent struct {
	occurredAt time.Time
	Notice     DetectionsNotice
}

// NewDetectionsFoundEvent creates a new detections found event.
func NewDetectionsFoundEvent(notice DetectionsNotice) DetectionsFoundEvent {
	return DetectionsFoundEvent{occurredAt: time.Now(), Notice: notice}
}

func (e DetectionsFoundEvent) EventType() events.EventType { return EventTypeDetectionsFound }
func (e DetectionsFoundEvent) OccurredAt() time.Time       { return e.occurredAt }

// Package audit records the scanning domain's lifecycle events as structured
// log lines, giving operators one greppable account of every admission, run
// transition, and detection notice.
package audit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/sentryline/brandscan/internal/domain/events"
	"github.com/sentryline/brandscan/internal/domain/scanning"
	eventdispatcher "github.com/sentryline/brandscan/internal/infra/event_dispatcher"
	"github.com/sentryline/brandscan/pkg/common/logger"
)

// Trail consumes scanning events off the bus and writes one audit record per
// event. Records are log lines only; the trail never blocks or fails the
// publishing side.
type Trail struct {
	logger     *logger.Logger
	dispatcher *eventdispatcher.Dispatcher
}

// NewTrail constructs a trail with handlers registered for every scanning
// event type. Wire it to a bus with:
//
//	bus.Subscribe(ctx, trail.EventTypes(), trail.Handle)
func NewTrail(ctx context.Context, log *logger.Logger, tracer trace.Tracer) *Trail {
	t := &Trail{
		logger:     log.With("component", "audit_trail"),
		dispatcher: eventdispatcher.New(tracer, log),
	}

	d := t.dispatcher
	d.RegisterHandler(ctx, scanning.EventTypeJobEnqueued, t.handleJobEnqueued)
	d.RegisterHandler(ctx, scanning.EventTypeJobStarted, t.handleJobStarted)
	d.RegisterHandler(ctx, scanning.EventTypeJobCancelled, t.handleJobCancelled)
	d.RegisterHandler(ctx, scanning.EventTypeScanStarted, t.handleScanStarted)
	d.RegisterHandler(ctx, scanning.EventTypeScanProgressed, t.handleScanProgressed)
	d.RegisterHandler(ctx, scanning.EventTypeScanCompleted, t.handleScanCompleted)
	d.RegisterHandler(ctx, scanning.EventTypeScanFailed, t.handleScanFailed)
	d.RegisterHandler(ctx, scanning.EventTypeScanCancelled, t.handleScanCancelled)
	d.RegisterHandler(ctx, scanning.EventTypeDetectionsFound, t.handleDetectionsFound)

	return t
}

// EventTypes lists the event types the trail records.
func (t *Trail) EventTypes() []events.EventType { return t.dispatcher.EventTypes() }

// Handle is the trail's subscription entry point.
func (t *Trail) Handle(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
	return t.dispatcher.Dispatch(ctx, evt, ack)
}

// payloadAs asserts the envelope payload to the expected event type. A
// mismatch is recorded and swallowed so one malformed envelope cannot wedge
// the stream.
func payloadAs[T events.DomainEvent](t *Trail, ctx context.Context, evt events.EventEnvelope) (T, bool) {
	payload, ok := evt.Payload.(T)
	if !ok {
		t.logger.Warn(ctx, "audit payload has unexpected type",
			"event_type", evt.Type,
			"payload_type", fmt.Sprintf("%T", evt.Payload))
	}
	return payload, ok
}

func (t *Trail) handleJobEnqueued(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
	defer ack(nil)
	e, ok := payloadAs[scanning.JobEnqueuedEvent](t, ctx, evt)
	if !ok {
		return nil
	}
	t.logger.Info(ctx, "scan request admitted",
		"queue_id", e.QueueID,
		"user_id", e.UserID,
		"plan_tier", e.PlanTier,
		"target_ref", e.TargetRef)
	return nil
}

func (t *Trail) handleJobStarted(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
	defer ack(nil)
	e, ok := payloadAs[scanning.JobStartedEvent](t, ctx, evt)
	if !ok {
		return nil
	}
	t.logger.Info(ctx, "queued scan granted a slot",
		"queue_id", e.QueueID,
		"scan_id", e.ScanID,
		"user_id", e.UserID,
		"target_ref", e.TargetRef)
	return nil
}

func (t *Trail) handleJobCancelled(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
	defer ack(nil)
	e, ok := payloadAs[scanning.JobCancelledEvent](t, ctx, evt)
	if !ok {
		return nil
	}
	t.logger.Info(ctx, "queued scan cancelled",
		"queue_id", e.QueueID,
		"user_id", e.UserID,
		"cancelled_at", e.CancelledAt)
	return nil
}

func (t *Trail) handleScanStarted(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
	defer ack(nil)
	e, ok := payloadAs[scanning.ScanStartedEvent](t, ctx, evt)
	if !ok {
		return nil
	}
	t.logger.Info(ctx, "scan run started",
		"scan_id", e.ScanID,
		"queue_id", e.QueueID,
		"user_id", e.UserID,
		"target_ref", e.TargetRef)
	return nil
}

// handleScanProgressed records at debug level since a run emits one event per
// keyword boundary.
func (t *Trail) handleScanProgressed(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
	defer ack(nil)
	e, ok := payloadAs[scanning.ScanProgressedEvent](t, ctx, evt)
	if !ok {
		return nil
	}
	t.logger.Debug(ctx, "scan progressed",
		"scan_id", e.Progress.ScanID,
		"phase", e.Progress.Phase,
		"progress_pct", e.Progress.ProgressPct,
		"processed_keywords", e.Progress.ProcessedKeywords,
		"total_keywords", e.Progress.TotalKeywords,
		"error_count", e.Progress.ErrorCount)
	return nil
}

func (t *Trail) handleScanCompleted(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
	defer ack(nil)
	e, ok := payloadAs[scanning.ScanCompletedEvent](t, ctx, evt)
	if !ok {
		return nil
	}
	t.logger.Info(ctx, "scan completed",
		"scan_id", e.ScanID,
		"queue_id", e.QueueID,
		"new_detections", e.NewDetections,
		"risk_level", e.RiskLevel,
		"duration", e.Duration)
	return nil
}

func (t *Trail) handleScanFailed(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
	defer ack(nil)
	e, ok := payloadAs[scanning.ScanFailedEvent](t, ctx, evt)
	if !ok {
		return nil
	}
	t.logger.Warn(ctx, "scan failed",
		"scan_id", e.ScanID,
		"queue_id", e.QueueID,
		"reason", e.Reason)
	return nil
}

func (t *Trail) handleScanCancelled(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
	defer ack(nil)
	e, ok := payloadAs[scanning.ScanCancelledEvent](t, ctx, evt)
	if !ok {
		return nil
	}
	t.logger.Info(ctx, "scan cancelled mid-run",
		"scan_id", e.ScanID,
		"queue_id", e.QueueID,
		"processed_keywords", e.ProcessedKeywords,
		"total_keywords", e.TotalKeywords)
	return nil
}

func (t *Trail) handleDetectionsFound(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
	defer ack(nil)
	e, ok := payloadAs[scanning.DetectionsFoundEvent](t, ctx, evt)
	if !ok {
		return nil
	}
	t.logger.Info(ctx, "detections found",
		"scan_id", e.Notice.ScanID,
		"user_id", e.Notice.UserID,
		"target_ref", e.Notice.TargetRef,
		"new_detections", e.Notice.NewDetections,
		"risk_level", e.Notice.RiskLevel)
	return nil
}

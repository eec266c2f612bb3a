// Package eventdispatcher routes event envelopes to per-type handlers.
// A bus subscription delivers a single stream; the dispatcher splits it so
// each event type has exactly one handler responsible for it.
package eventdispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sentryline/brandscan/internal/domain/events"
	"github.com/sentryline/brandscan/pkg/common/logger"
)

// Dispatcher manages event handlers and dispatches envelopes to the handler
// registered for their type.
//
// Typical usage:
//
//	dispatcher := eventdispatcher.New(tracer, log)
//	dispatcher.RegisterHandler(ctx, scanning.EventTypeScanCompleted, handler)
//	err := bus.Subscribe(ctx, dispatcher.EventTypes(), dispatcher.Dispatch)
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[events.EventType]events.HandlerFunc
	tracer   trace.Tracer
	logger   *logger.Logger
}

// New constructs a dispatcher with an empty registry. Handlers must be
// registered before any event is dispatched.
func New(tracer trace.Tracer, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[events.EventType]events.HandlerFunc),
		tracer:   tracer,
		logger:   log.With("component", "event_dispatcher"),
	}
}

// RegisterHandler associates a handler with an event type, replacing any
// handler previously registered for it. Safe for concurrent use.
func (d *Dispatcher) RegisterHandler(ctx context.Context, eventType events.EventType, handler events.HandlerFunc) {
	_, span := d.tracer.Start(ctx, "event_dispatcher.register_handler",
		trace.WithAttributes(
			attribute.String("event_type", string(eventType)),
		),
	)
	defer span.End()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[eventType] = handler
	d.logger.Debug(ctx, "handler registered", "event_type", eventType)
	span.SetStatus(codes.Ok, "handler registered")
}

// EventTypes returns the types with a registered handler, in no particular
// order. The slice is what a bus subscription for this dispatcher should
// cover.
func (d *Dispatcher) EventTypes() []events.EventType {
	d.mu.RLock()
	defer d.mu.RUnlock()

	types := make([]events.EventType, 0, len(d.handlers))
	for eventType := range d.handlers {
		types = append(types, eventType)
	}
	return types
}

// HandlerNotFoundError indicates an envelope arrived for a type nothing
// registered for.
type HandlerNotFoundError struct{ EventType events.EventType }

func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("no handler registered for event type: %s", e.EventType)
}

// Dispatch routes the envelope to its registered handler. Handler errors are
// wrapped and returned, leaving the subscription's delivery semantics with
// the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
	logCtx := logger.NewLoggerContext(d.logger.With("operation", "dispatch",
		"event_type", evt.Type,
		"key", evt.Key,
	))
	ctx, span := d.tracer.Start(ctx, "event_dispatcher.handle_event",
		trace.WithAttributes(
			attribute.String("event_type", string(evt.Type)),
			attribute.String("key", evt.Key),
		))
	defer span.End()

	d.mu.RLock()
	handler, exists := d.handlers[evt.Type]
	d.mu.RUnlock()
	if !exists {
		err := &HandlerNotFoundError{EventType: evt.Type}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := handler(ctx, evt, ack); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to dispatch event with type %s: %w", evt.Type, err)
	}

	span.SetStatus(codes.Ok, "event dispatched successfully")
	logCtx.Debug(ctx, "event dispatched successfully")
	return nil
}

// Package eventbus adapts the domain event publishing port onto a concrete
// events.EventBus. Both the in-memory broker and the Kafka bus sit behind the
// same adapter, so application code never knows which transport is wired.
package eventbus

import (
	"context"

	"github.com/sentryline/brandscan/internal/domain/events"
)

var _ events.DomainEventPublisher = (*DomainEventPublisher)(nil)

// DomainEventPublisher implements events.DomainEventPublisher on top of an
// event bus. It wraps domain events into transport envelopes and forwards
// publish options unchanged, since the domain and bus options share one
// vocabulary.
type DomainEventPublisher struct {
	eventBus events.EventBus
}

// NewDomainEventPublisher creates a publisher that distributes domain events
// through the provided event bus.
func NewDomainEventPublisher(bus events.EventBus) *DomainEventPublisher {
	return &DomainEventPublisher{eventBus: bus}
}

// PublishDomainEvent wraps the event in an envelope stamped with its own
// creation time and hands it to the bus.
func (pub *DomainEventPublisher) PublishDomainEvent(
	ctx context.Context,
	event events.DomainEvent,
	opts ...events.PublishOption,
) error {
	evt := events.EventEnvelope{
		Type:      event.EventType(),
		Timestamp: event.OccurredAt(),
		Payload:   event,
	}

	return pub.eventBus.Publish(ctx, evt, opts...)
}

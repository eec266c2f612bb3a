// Package events defines the domain event contracts: payload and envelope
// shapes, the bus interfaces, and the publish options shared by the
// in-process and brokered transports.
package events

import "context"

// DomainEventPublisher hands domain events to the configured transport.
// Callers publish payloads; the implementation wraps them into envelopes and
// picks routing keys.
type DomainEventPublisher interface {
	PublishDomainEvent(ctx context.Context, event DomainEvent, opts ...PublishOption) error
}

// EventBus moves event envelopes between publishers and subscribers. The
// scan subsystem runs it either as an in-process broker or over Kafka; the
// interface keeps the rest of the code indifferent to which.
type EventBus interface {
	// Publish delivers the envelope to every subscriber registered for its
	// type.
	Publish(ctx context.Context, event EventEnvelope, opts ...PublishOption) error

	// Subscribe registers handler for the given event types. The handler
	// runs for every matching envelope until the bus closes.
	Subscribe(ctx context.Context, eventTypes []EventType, handler HandlerFunc) error

	// Close releases the transport. Publish and Subscribe fail afterwards.
	Close() error
}

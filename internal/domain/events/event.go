package events

import (
	"context"
	"time"
)

// DomainEvent is implemented by every domain event payload flowing through
// the system. Implementations carry their own category and creation time so
// publishers can wrap them into transport envelopes without inspecting the
// concrete type.
type DomainEvent interface {
	// EventType identifies the category of this event for routing and handling.
	EventType() EventType

	// OccurredAt records when this event was created, enabling temporal
	// tracking and debugging of event flows.
	OccurredAt() time.Time
}

// EventEnvelope is the transport-level wrapper a bus implementation carries.
// It pairs the payload with the routing metadata the in-process and brokered
// transports both need.
type EventEnvelope struct {
	// Type identifies the category of this event for routing and handling.
	Type EventType

	// Key enables consistent event routing, typically containing a business
	// identifier like a scan ID that events can be grouped or partitioned by.
	Key string

	// Headers contain metadata key-value pairs attached to the event.
	Headers map[string]string

	// Timestamp records when this event was created.
	Timestamp time.Time

	// Payload contains the actual event data. The concrete type depends on
	// the EventType.
	Payload any
}

// AckFunc acknowledges receipt of an event. A non-nil error tells transports
// with delivery tracking that processing failed.
type AckFunc func(error)

// HandlerFunc processes a single event delivered by a bus subscription.
type HandlerFunc func(ctx context.Context, evt EventEnvelope, ack AckFunc) error

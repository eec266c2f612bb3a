// Package memory provides an in-memory implementation of the event bus.
// It offers a lightweight, non-persistent broker suitable for tests and
// single-process deployments where durability is not required.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sentryline/brandscan/internal/domain/events"
)

// subscription pairs a handler with the identity used to drop it when the
// subscriber's context ends.
type subscription struct {
	id      int
	handler events.HandlerFunc
}

var _ events.EventBus = (*Broker)(nil)

// Broker is an in-process events.EventBus. Delivery is synchronous in the
// publisher's goroutine and stops at the first handler error, which makes
// test failures easy to attribute. Acknowledgement is a no-op since nothing
// is ever in flight.
type Broker struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[events.EventType][]subscription
	closed   bool

	done chan struct{}
}

// NewBroker creates an empty in-memory broker.
func NewBroker() *Broker {
	return &Broker{
		handlers: make(map[events.EventType][]subscription),
		done:     make(chan struct{}),
	}
}

// Publish delivers the envelope to every handler subscribed to its type.
// Handlers run sequentially; the first error aborts delivery and is returned
// to the publisher.
func (b *Broker) Publish(ctx context.Context, event events.EventEnvelope, opts ...events.PublishOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var params events.PublishParams
	for _, opt := range opts {
		opt(&params)
	}
	if params.Key != "" {
		event.Key = params.Key
	}
	if len(params.Headers) > 0 {
		event.Headers = params.Headers
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("memory event bus is closed")
	}
	// Copy the handlers so none run while the lock is held.
	subs := make([]subscription, len(b.handlers[event.Type]))
	copy(subs, b.handlers[event.Type])
	b.mu.RUnlock()

	ack := func(error) {}
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sub.handler(ctx, event, ack); err != nil {
			return fmt.Errorf("handler for %s: %w", event.Type, err)
		}
	}
	return nil
}

// Subscribe registers the handler for every listed event type. The
// registration lasts until ctx is cancelled or the broker closes.
func (b *Broker) Subscribe(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	if len(eventTypes) == 0 {
		return errors.New("at least one event type is required")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("memory event bus is closed")
	}
	b.nextID++
	id := b.nextID
	for _, et := range eventTypes {
		b.handlers[et] = append(b.handlers[et], subscription{id: id, handler: handler})
	}
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			b.removeSubscriber(eventTypes, id)
		case <-b.done:
		}
	}()

	return nil
}

// Close drops all subscriptions and rejects further publishes.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.handlers = make(map[events.EventType][]subscription)
	close(b.done)
	return nil
}

func (b *Broker) removeSubscriber(eventTypes []events.EventType, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, et := range eventTypes {
		subs := b.handlers[et]
		for i, sub := range subs {
			if sub.id == id {
				b.handlers[et] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Package notify bridges the run notifier port onto the domain event bus.
// The actual delivery pipeline (mail, webhooks) lives outside this service
// and consumes the DetectionsFound topic.
package notify

import (
	"context"

	"github.com/sentryline/brandscan/internal/domain/events"
	"github.com/sentryline/brandscan/internal/domain/scanning"
)

var _ scanning.Notifier = (*EventBusNotifier)(nil)

// EventBusNotifier publishes end-of-run detection notices as DetectionsFound
// events, keyed by scan ID so one scan's notices stay ordered.
type EventBusNotifier struct {
	publisher events.DomainEventPublisher
}

// NewEventBusNotifier creates a notifier that forwards notices to the event bus.
func NewEventBusNotifier(publisher events.DomainEventPublisher) *EventBusNotifier {
	return &EventBusNotifier{publisher: publisher}
}

// Notify publishes the notice. Callers treat a failure as lost-notification,
// never as a run failure.
func (n *EventBusNotifier) Notify(ctx context.Context, notice scanning.DetectionsNotice) error {
	evt := scanning.NewDetectionsFoundEvent(notice)
	return n.publisher.PublishDomainEvent(ctx, evt, events.WithKey(notice.ScanID.String()))
}

package eventbus

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentryline/brandscan/internal/domain/events"
	"github.com/sentryline/brandscan/internal/domain/scanning"
	"github.com/sentryline/brandscan/internal/infra/eventbus/memory"
)

func TestPublishDomainEventWrapsAndRoutes(t *testing.T) {
	t.Parallel()

	broker := memory.NewBroker()
	defer broker.Close()
	pub := NewDomainEventPublisher(broker)

	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(1)

	var got events.EventEnvelope
	err := broker.Subscribe(ctx, []events.EventType{scanning.EventTypeScanFailed},
		func(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
			defer wg.Done()
			got = evt
			return nil
		})
	require.NoError(t, err)

	scanID := uuid.New()
	evt := scanning.NewScanFailedEvent(scanID, uuid.New(), "keyword resolution failed")
	require.NoError(t, pub.PublishDomainEvent(ctx, evt, events.WithKey(scanID.String())))
	wg.Wait()

	assert.Equal(t, scanning.EventTypeScanFailed, got.Type)
	assert.Equal(t, scanID.String(), got.Key)
	assert.Equal(t, evt.OccurredAt(), got.Timestamp)

	payload, ok := got.Payload.(scanning.ScanFailedEvent)
	require.True(t, ok)
	assert.Equal(t, "keyword resolution failed", payload.Reason)
}

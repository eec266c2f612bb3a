package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sentryline/brandscan/internal/domain/events"
	"github.com/sentryline/brandscan/internal/domain/scanning"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startedEnvelope() events.EventEnvelope {
	evt := scanning.NewScanStartedEvent(uuid.New(), uuid.New(), "user-1", "brand-profile-1")
	return events.EventEnvelope{
		Type:      evt.EventType(),
		Timestamp: evt.OccurredAt(),
		Payload:   evt,
	}
}

func TestPublishAndSubscribe(t *testing.T) {
	t.Parallel()

	broker := NewBroker()
	defer broker.Close()
	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(1)

	expected := startedEnvelope()

	err := broker.Subscribe(ctx, []events.EventType{scanning.EventTypeScanStarted},
		func(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
			defer wg.Done()
			assert.Equal(t, expected.Type, evt.Type)
			assert.Equal(t, expected.Payload, evt.Payload)
			ack(nil)
			return nil
		})
	require.NoError(t, err)

	require.NoError(t, broker.Publish(ctx, expected))
	wg.Wait()
}

func TestMultipleSubscribers(t *testing.T) {
	t.Parallel()

	broker := NewBroker()
	defer broker.Close()
	ctx := context.Background()
	var wg sync.WaitGroup
	subscriberCount := 3
	wg.Add(subscriberCount)

	envelope := startedEnvelope()

	for i := 0; i < subscriberCount; i++ {
		err := broker.Subscribe(ctx, []events.EventType{scanning.EventTypeScanStarted},
			func(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
				defer wg.Done()
				assert.Equal(t, envelope.Payload, evt.Payload)
				return nil
			})
		require.NoError(t, err)
	}

	require.NoError(t, broker.Publish(ctx, envelope))
	wg.Wait()
}

func TestSubscriptionIsScopedToEventTypes(t *testing.T) {
	t.Parallel()

	broker := NewBroker()
	defer broker.Close()
	ctx := context.Background()

	var delivered int
	err := broker.Subscribe(ctx, []events.EventType{scanning.EventTypeJobEnqueued},
		func(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
			delivered++
			return nil
		})
	require.NoError(t, err)

	// A scan lifecycle event must not reach a job lifecycle subscriber.
	require.NoError(t, broker.Publish(ctx, startedEnvelope()))
	assert.Zero(t, delivered)
}

func TestHandlerError(t *testing.T) {
	t.Parallel()

	broker := NewBroker()
	defer broker.Close()
	ctx := context.Background()
	expectedErr := errors.New("handler error")

	err := broker.Subscribe(ctx, []events.EventType{scanning.EventTypeScanStarted},
		func(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
			return expectedErr
		})
	require.NoError(t, err)

	err = broker.Publish(ctx, startedEnvelope())
	assert.ErrorIs(t, err, expectedErr)
}

func TestPublishAppliesKeyOption(t *testing.T) {
	t.Parallel()

	broker := NewBroker()
	defer broker.Close()
	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(1)

	var gotKey string
	err := broker.Subscribe(ctx, []events.EventType{scanning.EventTypeScanStarted},
		func(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
			defer wg.Done()
			gotKey = evt.Key
			return nil
		})
	require.NoError(t, err)

	require.NoError(t, broker.Publish(ctx, startedEnvelope(), events.WithKey("scan-42")))
	wg.Wait()
	assert.Equal(t, "scan-42", gotKey)
}

func TestCancelledSubscriptionStopsReceiving(t *testing.T) {
	t.Parallel()

	broker := NewBroker()
	defer broker.Close()
	subCtx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var delivered int
	err := broker.Subscribe(subCtx, []events.EventType{scanning.EventTypeScanStarted},
		func(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
			mu.Lock()
			delivered++
			mu.Unlock()
			return nil
		})
	require.NoError(t, err)

	cancel()

	// Removal happens asynchronously after cancellation, so probe until a
	// publish stops moving the counter.
	assert.Eventually(t, func() bool {
		mu.Lock()
		before := delivered
		mu.Unlock()
		require.NoError(t, broker.Publish(context.Background(), startedEnvelope()))
		mu.Lock()
		defer mu.Unlock()
		return delivered == before
	}, time.Second, 10*time.Millisecond)
}

func TestClosedBrokerRejectsUse(t *testing.T) {
	t.Parallel()

	broker := NewBroker()
	require.NoError(t, broker.Close())
	require.NoError(t, broker.Close())

	err := broker.Publish(context.Background(), startedEnvelope())
	assert.ErrorContains(t, err, "closed")

	err = broker.Subscribe(context.Background(), []events.EventType{scanning.EventTypeScanStarted},
		func(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error { return nil })
	assert.ErrorContains(t, err, "closed")
}

func TestSubscribeValidatesArguments(t *testing.T) {
	t.Parallel()

	broker := NewBroker()
	defer broker.Close()

	err := broker.Subscribe(context.Background(), []events.EventType{scanning.EventTypeScanStarted}, nil)
	assert.ErrorContains(t, err, "handler cannot be nil")

	err = broker.Subscribe(context.Background(), nil,
		func(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error { return nil })
	assert.ErrorContains(t, err, "at least one event type")
}

func TestConcurrentPublishSubscribe(t *testing.T) {
	t.Parallel()

	broker := NewBroker()
	defer broker.Close()
	ctx := context.Background()

	const publishers = 4
	const messagesEach = 25

	var mu sync.Mutex
	received := make(map[string]int)
	err := broker.Subscribe(ctx, []events.EventType{scanning.EventTypeScanStarted},
		func(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
			mu.Lock()
			received[evt.Key]++
			mu.Unlock()
			return nil
		})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < messagesEach; i++ {
				key := fmt.Sprintf("publisher-%d", p)
				assert.NoError(t, broker.Publish(ctx, startedEnvelope(), events.WithKey(key)))
			}
		}(p)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for p := 0; p < publishers; p++ {
		assert.Equal(t, messagesEach, received[fmt.Sprintf("publisher-%d", p)])
	}
}

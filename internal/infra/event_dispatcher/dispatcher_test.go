package eventdispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/sentryline/brandscan/internal/domain/events"
	"github.com/sentryline/brandscan/pkg/common/logger"
)

func newTestDispatcher() *Dispatcher {
	return New(noop.NewTracerProvider().Tracer(""), logger.Noop())
}

func discardAck() events.AckFunc { return func(error) {} }

func TestEventRouting(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher()

	eventType1 := events.EventType("test.event1")
	eventType2 := events.EventType("test.event2")

	var calls1, calls2 int
	d.RegisterHandler(ctx, eventType1, func(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
		calls1++
		ack(nil)
		return nil
	})
	d.RegisterHandler(ctx, eventType2, func(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
		calls2++
		ack(nil)
		return nil
	})

	require.NoError(t, d.Dispatch(ctx, events.EventEnvelope{Type: eventType1}, discardAck()))
	require.NoError(t, d.Dispatch(ctx, events.EventEnvelope{Type: eventType2}, discardAck()))

	assert.Equal(t, 1, calls1)
	assert.Equal(t, 1, calls2)
	assert.ElementsMatch(t, []events.EventType{eventType1, eventType2}, d.EventTypes())
}

func TestHandlerErrors(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher()

	eventType := events.EventType("test.event")
	expectedErr := errors.New("handler error")

	d.RegisterHandler(ctx, eventType, func(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
		return expectedErr
	})

	err := d.Dispatch(ctx, events.EventEnvelope{Type: eventType}, discardAck())

	require.Error(t, err)
	assert.ErrorIs(t, err, expectedErr)
}

func TestMissingHandler(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher()

	err := d.Dispatch(ctx, events.EventEnvelope{Type: events.EventType("test.event")}, discardAck())

	require.Error(t, err)
	var notFound *HandlerNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, events.EventType("test.event"), notFound.EventType)
}

func TestHandlerReplacement(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher()

	eventType := events.EventType("test.event")

	var firstCalls, secondCalls int
	d.RegisterHandler(ctx, eventType, func(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
		firstCalls++
		return nil
	})
	d.RegisterHandler(ctx, eventType, func(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
		secondCalls++
		return nil
	})

	require.NoError(t, d.Dispatch(ctx, events.EventEnvelope{Type: eventType}, discardAck()))

	assert.Equal(t, 0, firstCalls)
	assert.Equal(t, 1, secondCalls)
	assert.Len(t, d.EventTypes(), 1)
}

func TestConcurrentDispatch(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher()

	eventType := events.EventType("test.event")

	var mu sync.Mutex
	var counter int
	d.RegisterHandler(ctx, eventType, func(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
		mu.Lock()
		counter++
		mu.Unlock()
		return nil
	})

	evt := events.EventEnvelope{Type: eventType}
	var wg sync.WaitGroup
	const numGoroutines = 10

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Dispatch(ctx, evt, discardAck())
		}()
	}
	wg.Wait()

	assert.Equal(t, numGoroutines, counter)
}

package audit

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/sentryline/brandscan/internal/domain/events"
	"github.com/sentryline/brandscan/internal/domain/scanning"
	"github.com/sentryline/brandscan/internal/infra/eventbus"
	"github.com/sentryline/brandscan/internal/infra/eventbus/memory"
	"github.com/sentryline/brandscan/pkg/common/logger"
)

func newTestTrail(buf *bytes.Buffer) *Trail {
	log := logger.New(buf, logger.LevelDebug, "test", nil)
	return NewTrail(context.Background(), log, noop.NewTracerProvider().Tracer(""))
}

func TestTrailCoversAllScanningEvents(t *testing.T) {
	trail := newTestTrail(&bytes.Buffer{})

	assert.ElementsMatch(t, []events.EventType{
		scanning.EventTypeJobEnqueued,
		scanning.EventTypeJobStarted,
		scanning.EventTypeJobCancelled,
		scanning.EventTypeScanStarted,
		scanning.EventTypeScanProgressed,
		scanning.EventTypeScanCompleted,
		scanning.EventTypeScanFailed,
		scanning.EventTypeScanCancelled,
		scanning.EventTypeDetectionsFound,
	}, trail.EventTypes())
}

func TestTrailRecordsBusEvents(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer
	trail := newTestTrail(&buf)

	broker := memory.NewBroker()
	defer broker.Close()
	require.NoError(t, broker.Subscribe(ctx, trail.EventTypes(), trail.Handle))

	publisher := eventbus.NewDomainEventPublisher(broker)

	queueID := uuid.New()
	scanID := uuid.New()

	require.NoError(t, publisher.PublishDomainEvent(ctx,
		scanning.NewJobEnqueuedEvent(queueID, "user-1", scanning.PlanTierPro, "acme-corp")))
	require.NoError(t, publisher.PublishDomainEvent(ctx,
		scanning.NewScanCompletedEvent(scanID, queueID, 3, scanning.RiskLevelHigh, 42*time.Second)))
	require.NoError(t, publisher.PublishDomainEvent(ctx,
		scanning.NewDetectionsFoundEvent(scanning.DetectionsNotice{
			ScanID:        scanID,
			UserID:        "user-1",
			TargetRef:     "acme-corp",
			NewDetections: 3,
			RiskLevel:     scanning.RiskLevelHigh,
		})))

	out := buf.String()
	assert.Contains(t, out, "scan request admitted")
	assert.Contains(t, out, "scan completed")
	assert.Contains(t, out, "detections found")
	assert.Contains(t, out, queueID.String())
	assert.Contains(t, out, scanID.String())
	assert.Contains(t, out, "acme-corp")
}

func TestTrailAcknowledgesEveryRecord(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer
	trail := newTestTrail(&buf)

	evt := scanning.NewScanFailedEvent(uuid.New(), uuid.New(), "resolver unavailable")
	envelope := events.EventEnvelope{Type: evt.EventType(), Timestamp: evt.OccurredAt(), Payload: evt}

	var acked bool
	require.NoError(t, trail.Handle(ctx, envelope, func(err error) {
		acked = true
		assert.NoError(t, err)
	}))

	assert.True(t, acked)
	assert.Contains(t, buf.String(), "scan failed")
	assert.Contains(t, buf.String(), "resolver unavailable")
}

func TestTrailSwallowsMalformedPayload(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer
	trail := newTestTrail(&buf)

	envelope := events.EventEnvelope{
		Type:      scanning.EventTypeJobEnqueued,
		Timestamp: time.Now(),
		Payload:   "not an event",
	}

	var acked bool
	require.NoError(t, trail.Handle(ctx, envelope, func(error) { acked = true }))

	assert.True(t, acked)
	assert.Contains(t, buf.String(), "audit payload has unexpected type")
}

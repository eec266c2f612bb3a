package serialization

import (
	"encoding/json"
	"fmt"

	"github.com/sentryline/brandscan/internal/domain/events"
)

// universalEnvelope is the wire framing every brokered message shares. The
// event type travels next to the payload bytes so consumers can pick the
// right deserializer without guessing at the payload shape.
type universalEnvelope struct {
	EventType events.EventType `json:"event_type"`
	Payload   json.RawMessage  `json:"payload"`
}

// SerializeEventEnvelope encodes a payload and frames it with its event type.
// The result is what transports put on the wire.
func SerializeEventEnvelope(eventType events.EventType, payload any) ([]byte, error) {
	payloadBytes, err := SerializePayload(eventType, payload)
	if err != nil {
		return nil, err
	}

	envelope := universalEnvelope{EventType: eventType, Payload: payloadBytes}
	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope for %s: %w", eventType, err)
	}
	return data, nil
}

// UnmarshalUniversalEnvelope splits a wire message back into its event type
// and raw payload bytes. Callers pass the bytes to DeserializePayload once
// they have decided to process the event.
func UnmarshalUniversalEnvelope(data []byte) (events.EventType, []byte, error) {
	var envelope universalEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if envelope.EventType == "" {
		return "", nil, fmt.Errorf("envelope missing event type")
	}
	return envelope.EventType, envelope.Payload, nil
}

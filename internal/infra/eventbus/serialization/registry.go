// Package serialization provides a registry-based system for serializing and
// deserializing domain events in the event bus infrastructure. It acts as a
// translation layer between domain objects and their JSON wire format.
//
// The package implements a registry pattern where serialization and
// deserialization functions are registered per event type. This keeps the
// domain layer clean of wire-format concerns and lets new event types be
// added without touching the transports.
//
// The envelope timestamp is the authoritative creation time on the wire;
// payloads only carry their business fields.
package serialization

import (
	"encoding/json"
	"fmt"

	"github.com/sentryline/brandscan/internal/domain/events"
	"github.com/sentryline/brandscan/internal/domain/scanning"
)

// SerializeFunc converts a domain object into a serialized byte slice.
type SerializeFunc func(payload any) ([]byte, error)

// DeserializeFunc converts a serialized byte slice back into a domain object.
type DeserializeFunc func(data []byte) (any, error)

// Global registries map event types to their serialization functions.
// This allows for dynamic dispatch based on event type at runtime.
var (
	serializerRegistry   = map[events.EventType]SerializeFunc{}
	deserializerRegistry = map[events.EventType]DeserializeFunc{}
)

// RegisterSerializeFunc registers a serialization function for a given event type.
func RegisterSerializeFunc(eventType events.EventType, fn SerializeFunc) {
	serializerRegistry[eventType] = fn
}

// RegisterDeserializeFunc registers a deserialization function for a given event type.
func RegisterDeserializeFunc(eventType events.EventType, fn DeserializeFunc) {
	deserializerRegistry[eventType] = fn
}

// SerializePayload converts a domain object into bytes using the registered
// serializer for its event type. Returns an error if no serializer is
// registered for the given event type.
func SerializePayload(eventType events.EventType, payload any) ([]byte, error) {
	fn, ok := serializerRegistry[eventType]
	if !ok {
		return nil, fmt.Errorf("no serializer registered for eventType=%s", eventType)
	}
	return fn(payload)
}

// DeserializePayload converts bytes back into a domain object using the
// registered deserializer for its event type. Returns an error if no
// deserializer is registered for the given event type.
func DeserializePayload(eventType events.EventType, data []byte) (any, error) {
	fn, ok := deserializerRegistry[eventType]
	if !ok {
		return nil, fmt.Errorf("no deserializer registered for eventType=%s", eventType)
	}
	return fn(data)
}

func init() { RegisterEventSerializers() }

// RegisterEventSerializers initializes the serialization system by registering
// codecs for all supported event types. It runs during package init; calling
// it again is harmless since re-registration simply overwrites.
func RegisterEventSerializers() {
	registerJSON[scanning.JobEnqueuedEvent](scanning.EventTypeJobEnqueued)
	registerJSON[scanning.JobStartedEvent](scanning.EventTypeJobStarted)
	registerJSON[scanning.JobCancelledEvent](scanning.EventTypeJobCancelled)

	registerJSON[scanning.ScanStartedEvent](scanning.EventTypeScanStarted)
	registerJSON[scanning.ScanProgressedEvent](scanning.EventTypeScanProgressed)
	registerJSON[scanning.ScanCompletedEvent](scanning.EventTypeScanCompleted)
	registerJSON[scanning.ScanFailedEvent](scanning.EventTypeScanFailed)
	registerJSON[scanning.ScanCancelledEvent](scanning.EventTypeScanCancelled)
	registerJSON[scanning.DetectionsFoundEvent](scanning.EventTypeDetectionsFound)
}

// registerJSON wires both directions of a JSON codec for one event type.
// The serializer rejects payloads whose concrete type does not match the
// registered one so a mis-routed publish fails loudly instead of producing
// an envelope other services cannot decode.
func registerJSON[T events.DomainEvent](eventType events.EventType) {
	RegisterSerializeFunc(eventType, func(payload any) ([]byte, error) {
		evt, ok := payload.(T)
		if !ok {
			return nil, fmt.Errorf("serialize %s: payload is %T, want %T", eventType, payload, evt)
		}
		return json.Marshal(evt)
	})
	RegisterDeserializeFunc(eventType, func(data []byte) (any, error) {
		var evt T
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", eventType, err)
		}
		return evt, nil
	})
}

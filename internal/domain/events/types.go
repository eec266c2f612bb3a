package events

// EventType names an event category. Buses route on it and the serialization
// registry keys codecs by it.
type EventType string

// PublishOption adjusts how a single publish is routed.
type PublishOption func(*PublishParams)

// PublishParams collects the routing adjustments applied by PublishOptions.
type PublishParams struct {
	// Key partitions and orders events that share it, usually a queue or
	// scan id.
	Key string
	// Headers ride along with the envelope as transport metadata.
	Headers map[string]string
}

// WithKey sets the partition key. Events sharing a key are delivered in
// publish order on transports that partition.
func WithKey(key string) PublishOption {
	return func(p *PublishParams) { p.Key = key }
}

// WithHeaders attaches metadata headers to the envelope.
func WithHeaders(headers map[string]string) PublishOption {
	return func(p *PublishParams) { p.Headers = headers }
}

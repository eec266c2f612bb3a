package otel

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// zeroTraceID keeps the trace_id field present on log lines emitted outside
// any span.
var zeroTraceID = trace.TraceID{}.String()

// GetTraceID returns the trace id recorded on ctx, or the zero id when no
// valid span context is present.
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return zeroTraceID
	}
	return sc.TraceID().String()
}

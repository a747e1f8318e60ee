package tracing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/zoobzio/clockz"
)

// Standard tag names attached to spans by the tracer.
const (
	TagServiceName    = "service.name"
	TagServiceVersion = "service.version"
)

// Tracer is the front-facing tracing API: it creates spans, manages the
// active-span context and hands finished spans to the collector.
//
// Implementations are safe for concurrent use by multiple goroutines.
type Tracer interface {
	// StartSpan creates a new span. If the context carries an active
	// span, the new span becomes its child: it inherits the trace id and
	// records the parent's span id. The returned context carries the new
	// span for further nesting.
	StartSpan(ctx context.Context, name string) (context.Context, *ActiveSpan)

	// Close stops the tracer from producing new reportable spans.
	Close() error
}

// spanKeyType is a private type for context keys to avoid collisions.
type spanKeyType struct{}

var spanKey spanKeyType

// SpanFromContext extracts the active span from a context.
// Returns nil if no span is present.
func SpanFromContext(ctx context.Context) *ActiveSpan {
	if ctx == nil {
		return nil
	}
	if span, ok := ctx.Value(spanKey).(*ActiveSpan); ok {
		return span
	}
	return nil
}

// RealTracer creates reportable spans and submits them to a collector when
// finished. Identifying service metadata is stamped on every span.
type RealTracer struct {
	collector   *Collector
	clock       clockz.Clock
	serviceTags map[string]string
}

// NewRealTracer creates a tracer backed by the given collector.
// serviceName and serviceVersion may be empty, in which case the
// corresponding tags are omitted.
func NewRealTracer(collector *Collector, clock clockz.Clock, serviceName, serviceVersion string) *RealTracer {
	serviceTags := make(map[string]string, 2)
	if serviceName != "" {
		serviceTags[TagServiceName] = serviceName
	}
	if serviceVersion != "" {
		serviceTags[TagServiceVersion] = serviceVersion
	}
	return &RealTracer{
		collector:   collector,
		clock:       clock,
		serviceTags: serviceTags,
	}
}

// StartSpan creates a new span, generating a fresh span id and, without a
// parent in the context, a fresh trace id.
func (t *RealTracer) StartSpan(ctx context.Context, name string) (context.Context, *ActiveSpan) {
	if ctx == nil {
		ctx = context.Background()
	}

	span := &Span{
		TraceID: newTraceID(t.clock),
		SpanID:  newSpanID(t.clock),
		Name:    name,
		Start:   t.clock.Now(),
	}
	if len(t.serviceTags) > 0 {
		span.Tags = make(map[string]string, len(t.serviceTags))
		for k, v := range t.serviceTags {
			span.Tags[k] = v
		}
	}

	if parent := SpanFromContext(ctx); parent != nil && !parent.noop {
		span.TraceID = parent.TraceID()
		span.ParentID = parent.SpanID()
	}

	active := &ActiveSpan{
		span:      span,
		collector: t.collector,
		clock:     t.clock,
	}
	return context.WithValue(ctx, spanKey, active), active
}

// Close stops the underlying collector from accepting spans. Spans finished
// after Close are counted as dropped.
func (t *RealTracer) Close() error {
	t.collector.Close()
	return nil
}

// newTraceID generates a 128-bit hex-encoded trace identifier.
func newTraceID(clock clockz.Clock) string {
	return randomHex(16, clock)
}

// newSpanID generates a 64-bit hex-encoded span identifier.
func newSpanID(clock clockz.Clock) string {
	return randomHex(8, clock)
}

// randomHex returns n random bytes hex encoded, falling back to a time-based
// value if the system entropy source fails.
func randomHex(n int, clock clockz.Clock) string {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return hex.EncodeToString([]byte(clock.Now().Format(time.RFC3339Nano)))[:n*2]
	}
	return hex.EncodeToString(bytes)
}

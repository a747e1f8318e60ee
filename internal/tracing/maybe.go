package tracing

import "context"

// MaybeTracer composes an optional Tracer. Calling code can be written
// unconditionally against "some tracer": when no tracer is configured every
// operation silently degrades to noop behavior without runtime branching at
// call sites.
//
// The zero value is a valid, fully noop MaybeTracer.
type MaybeTracer struct {
	inner Tracer
}

// WrapTracer wraps a possibly-nil Tracer.
func WrapTracer(tracer Tracer) MaybeTracer {
	return MaybeTracer{inner: tracer}
}

// StartSpan delegates to the wrapped tracer, or returns the shared noop
// handle when none is configured.
func (m MaybeTracer) StartSpan(ctx context.Context, name string) (context.Context, *ActiveSpan) {
	if m.inner == nil {
		if ctx == nil {
			ctx = context.Background()
		}
		return ctx, noopSpan
	}
	return m.inner.StartSpan(ctx, name)
}

// Close closes the wrapped tracer, if any.
func (m MaybeTracer) Close() error {
	if m.inner == nil {
		return nil
	}
	return m.inner.Close()
}

package tracing

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/zoobzio/clockz"
)

// Span is a timed record of one unit of work within a distributed trace.
// A span is mutated only by the owning call stack while open; once finished
// it is immutable and ownership transfers to the collector.
type Span struct {
	TraceID  string
	SpanID   string
	ParentID string
	Name     string
	Start    time.Time
	Duration time.Duration
	Tags     map[string]string
	Logs     []LogEntry
}

// LogEntry is a timestamped event attached to a span.
type LogEntry struct {
	Time   time.Time
	Value  string
	Fields map[string]string
}

// ActiveSpan wraps an open Span with thread-safe mutation and lifecycle
// management. Tag and log operations after Finish are no-ops that emit a
// single warning; tracing must never fail the caller.
type ActiveSpan struct {
	mu        sync.Mutex
	span      *Span
	collector *Collector
	clock     clockz.Clock
	finished  bool
	warned    bool
	noop      bool
}

// noopSpan is the shared sentinel handle returned by the noop tracer.
// All operations on it return immediately without touching any state.
var noopSpan = &ActiveSpan{noop: true}

// SetTag adds a key/value pair to the open span.
// Calling SetTag on a finished span is a no-op that logs a warning.
func (a *ActiveSpan) SetTag(key, value string) {
	if a.noop {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finished {
		a.warnFinished("SetTag")
		return
	}
	if a.span.Tags == nil {
		a.span.Tags = make(map[string]string)
	}
	a.span.Tags[key] = value
}

// Log appends a timestamped event to the open span. Fields may be nil.
// Calling Log on a finished span is a no-op that logs a warning.
func (a *ActiveSpan) Log(message string, fields map[string]string) {
	if a.noop {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finished {
		a.warnFinished("Log")
		return
	}
	a.span.Logs = append(a.span.Logs, LogEntry{
		Time:   a.clock.Now(),
		Value:  message,
		Fields: fields,
	})
}

// Finish stamps the span duration, marks it immutable and hands it to the
// collector. Ownership of the span transfers to the collector at this point.
// Finish is idempotent; repeated calls are no-ops.
func (a *ActiveSpan) Finish() {
	if a.noop {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finished {
		return
	}
	a.finished = true
	a.span.Duration = a.clock.Now().Sub(a.span.Start)
	a.collector.Submit(*a.span)
}

// TraceID returns the trace identifier of this span. The noop sentinel
// returns an empty string.
func (a *ActiveSpan) TraceID() string {
	if a.noop {
		return ""
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.TraceID
}

// SpanID returns the span identifier. The noop sentinel returns an empty string.
func (a *ActiveSpan) SpanID() string {
	if a.noop {
		return ""
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.SpanID
}

// Finished reports whether Finish has been called. The noop sentinel is
// never considered finished since it carries no state.
func (a *ActiveSpan) Finished() bool {
	if a.noop {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finished
}

// warnFinished logs one warning per span for mutations after Finish.
// Callers must hold a.mu.
func (a *ActiveSpan) warnFinished(op string) {
	if a.warned {
		return
	}
	a.warned = true
	log.WithFields(log.Fields{
		"span":      a.span.Name,
		"operation": op,
	}).Warn("Span mutated after Finish, ignoring")
}

package tracing

import (
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
)

// Collector is the bounded in-process buffer between span producers and the
// background reporter: a multi-producer/single-consumer queue. Submit is
// called by arbitrary application goroutines; Drain is called only by the
// reporter.
//
// Overflow policy: when the queue is full the span being submitted is
// dropped (drop-newest). Submit stays wait-free regardless of backend
// health, which matters because it sits on request-handling paths.
type Collector struct {
	spans   chan Span
	metrics *Metrics
	clock   clockz.Clock
	closed  atomic.Bool
}

// NewCollector creates a collector with the given queue capacity.
func NewCollector(capacity int, metrics *Metrics, clock clockz.Clock) *Collector {
	return &Collector{
		spans:   make(chan Span, capacity),
		metrics: metrics,
		clock:   clock,
	}
}

// Submit enqueues a finished span for reporting. It never blocks and never
// returns an error: on overflow or after Close the span is counted as
// dropped and discarded. Backend failures are invisible here.
func (c *Collector) Submit(span Span) {
	c.metrics.SpansSubmitted.Inc()

	if c.closed.Load() {
		c.metrics.SpansDropped.Inc()
		return
	}

	select {
	case c.spans <- span:
	default:
		c.metrics.SpansDropped.Inc()
	}
}

// Drain removes up to max spans from the queue, blocking up to wait for the
// first span to arrive. A wait of zero or less makes Drain a non-blocking
// sweep. Drain may return nil when the queue stays empty. Spans are returned
// in submission order and each accepted span is observed by exactly one
// Drain call.
//
// Drain is the reporter's sole read path and must not be called concurrently
// with itself.
func (c *Collector) Drain(max int, wait time.Duration) []Span {
	if max <= 0 {
		return nil
	}

	var spans []Span
	if wait > 0 {
		select {
		case span := <-c.spans:
			spans = append(spans, span)
		case <-c.clock.After(wait):
			return nil
		}
	}

	for len(spans) < max {
		select {
		case span := <-c.spans:
			spans = append(spans, span)
		default:
			return spans
		}
	}
	return spans
}

// Pending returns the number of spans currently queued.
func (c *Collector) Pending() int {
	return len(c.spans)
}

// Close stops the collector from accepting new spans. Spans already queued
// remain drainable so the reporter can flush them during shutdown.
func (c *Collector) Close() {
	c.closed.Store(true)
}

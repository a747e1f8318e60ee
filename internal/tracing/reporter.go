package tracing

import (
	"time"

	"github.com/observa/tracepipe/internal/models"
	log "github.com/sirupsen/logrus"
	"github.com/zoobzio/clockz"
)

// reporterState tracks the reporter's position in its lifecycle.
type reporterState int

const (
	stateIdle reporterState = iota
	stateCollecting
	stateFlushing
	stateDraining
	stateStopped
)

// Reporter is the dedicated background worker that drains the collector
// queue, batches spans and ships them over the transport. All of its state
// is owned by the single goroutine running Run; nothing here needs locking.
//
// Failure policy: a failed send is retried with exponential backoff (capped
// at backoffMax) until maxAttempts is reached, then the whole batch is
// discarded and counted. Tracing data is best effort, not durable.
type Reporter struct {
	collector *Collector
	transport Transport
	metrics   *Metrics
	clock     clockz.Clock

	batchMaxSize  int
	flushInterval time.Duration
	idleInterval  time.Duration
	maxAttempts   int
	backoffBase   time.Duration
	backoffMax    time.Duration

	state     reporterState
	batch     []Span
	lastFlush time.Time
	failures  int
}

// NewReporter creates a reporter draining the given collector into the given
// transport. Run must be started on a background goroutine, typically via
// the upkeep controller.
func NewReporter(collector *Collector, transport Transport, metrics *Metrics, clock clockz.Clock, cfg models.TracingConfig) *Reporter {
	return &Reporter{
		collector:     collector,
		transport:     transport,
		metrics:       metrics,
		clock:         clock,
		batchMaxSize:  cfg.BatchMaxSize,
		flushInterval: cfg.GetFlushInterval(),
		idleInterval:  cfg.GetIdleInterval(),
		maxAttempts:   cfg.MaxAttempts,
		backoffBase:   cfg.GetBackoffBase(),
		backoffMax:    cfg.GetBackoffMax(),
		state:         stateIdle,
	}
}

// Run executes the reporter loop until stop is closed, then performs a final
// drain-and-flush and releases the transport. The shutdown signal is only
// observed between states, so shutdown latency is bounded by the idle
// interval and the send timeout.
func (r *Reporter) Run(stop <-chan struct{}) {
	r.lastFlush = r.clock.Now()

	for {
		r.state = stateCollecting
		if stopped := r.collect(stop); stopped {
			break
		}
		r.state = stateFlushing
		if stopped := r.flush(stop); stopped {
			break
		}
	}

	r.state = stateDraining
	r.drain()
	r.state = stateStopped
	if err := r.transport.Close(); err != nil {
		log.WithError(err).Warn("Failed to close span transport")
	}
}

// collect gathers spans from the collector until the batch reaches its size
// threshold or the flush interval elapses since the last flush, whichever
// comes first. This bounds both memory growth and reporting latency.
// Returns true if stop was signalled.
func (r *Reporter) collect(stop <-chan struct{}) bool {
	for {
		select {
		case <-stop:
			return true
		default:
		}

		if len(r.batch) >= r.batchMaxSize {
			return false
		}

		remaining := r.lastFlush.Add(r.flushInterval).Sub(r.clock.Now())
		if remaining <= 0 {
			if len(r.batch) > 0 {
				return false
			}
			// Nothing accumulated this interval, restart it.
			r.lastFlush = r.clock.Now()
			remaining = r.flushInterval
		}

		wait := remaining
		if wait > r.idleInterval {
			wait = r.idleInterval
		}
		spans := r.collector.Drain(r.batchMaxSize-len(r.batch), wait)
		r.batch = append(r.batch, spans...)
	}
}

// flush sends the current batch, retrying with exponential backoff. After
// maxAttempts failures the batch is discarded and the discard counter grows
// by the batch size. Returns true if stop was signalled during a backoff
// sleep.
func (r *Reporter) flush(stop <-chan struct{}) bool {
	if len(r.batch) == 0 {
		r.lastFlush = r.clock.Now()
		return false
	}

	for {
		err := r.transport.Send(r.batch)
		if err == nil {
			r.metrics.BatchesSent.Inc()
			log.WithField("spans", len(r.batch)).Debug("Span batch sent")
			r.batch = nil
			r.failures = 0
			r.lastFlush = r.clock.Now()
			return false
		}

		r.failures++
		r.metrics.BatchSendFailures.Inc()
		log.WithError(err).WithFields(log.Fields{
			"attempt": r.failures,
			"spans":   len(r.batch),
		}).Error("Failed to send span batch")

		if r.failures >= r.maxAttempts {
			log.WithFields(log.Fields{
				"spans":    len(r.batch),
				"attempts": r.failures,
			}).Warn("Discarding span batch after repeated send failures")
			r.metrics.SpansDiscarded.Add(float64(len(r.batch)))
			r.batch = nil
			r.failures = 0
			r.lastFlush = r.clock.Now()
			return false
		}

		select {
		case <-stop:
			return true
		case <-r.clock.After(r.backoff()):
		}
	}
}

// backoff returns the delay before the next send attempt: the base delay
// doubled per consecutive failure, capped at backoffMax.
func (r *Reporter) backoff() time.Duration {
	delay := r.backoffBase << uint(r.failures-1)
	if delay <= 0 || delay > r.backoffMax {
		delay = r.backoffMax
	}
	return delay
}

// drain performs the final bounded shutdown pass: sweep whatever the queue
// still holds and attempt one send per batch, without retries. Spans that
// cannot be shipped at this point are discarded and counted.
func (r *Reporter) drain() {
	for {
		if len(r.batch) < r.batchMaxSize {
			spans := r.collector.Drain(r.batchMaxSize-len(r.batch), 0)
			r.batch = append(r.batch, spans...)
		}
		if len(r.batch) == 0 {
			return
		}

		if err := r.transport.Send(r.batch); err != nil {
			r.metrics.BatchSendFailures.Inc()
			r.metrics.SpansDiscarded.Add(float64(len(r.batch) + r.collector.Pending()))
			log.WithError(err).WithField("spans", len(r.batch)).Warn(
				"Discarding span batch during shutdown drain")
			r.batch = nil
			return
		}
		r.metrics.BatchesSent.Inc()
		r.batch = nil

		if r.collector.Pending() == 0 {
			return
		}
	}
}

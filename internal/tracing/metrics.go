package tracing

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the read-only counters the tracing pipeline exposes for
// operators. They are observations only; nothing in the pipeline reads them
// back to make decisions.
type Metrics struct {
	// SpansSubmitted counts every span handed to the collector,
	// including spans that were subsequently dropped.
	SpansSubmitted prometheus.Counter

	// SpansDropped counts spans dropped because the collector queue
	// was full at submission time.
	SpansDropped prometheus.Counter

	// SpansDiscarded counts spans thrown away by the reporter after
	// retry exhaustion.
	SpansDiscarded prometheus.Counter

	// BatchesSent counts batches accepted by the backend.
	BatchesSent prometheus.Counter

	// BatchSendFailures counts individual failed send attempts.
	BatchSendFailures prometheus.Counter
}

// NewMetrics creates the pipeline counters and registers them with the given
// registerer. A nil registerer leaves the counters unregistered, which is
// convenient for tests that only assert on counter values.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SpansSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tracepipe",
			Name:      "spans_submitted_total",
			Help:      "Number of finished spans handed to the collector.",
		}),
		SpansDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tracepipe",
			Name:      "spans_dropped_total",
			Help:      "Number of spans dropped due to collector queue overflow.",
		}),
		SpansDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tracepipe",
			Name:      "spans_discarded_total",
			Help:      "Number of spans discarded after send retries were exhausted.",
		}),
		BatchesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tracepipe",
			Name:      "batches_sent_total",
			Help:      "Number of span batches accepted by the tracing backend.",
		}),
		BatchSendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tracepipe",
			Name:      "batch_send_failures_total",
			Help:      "Number of failed span batch send attempts.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.SpansSubmitted,
			m.SpansDropped,
			m.SpansDiscarded,
			m.BatchesSent,
			m.BatchSendFailures,
		)
	}

	return m
}

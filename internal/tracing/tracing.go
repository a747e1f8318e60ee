// Package tracing implements the asynchronous distributed-tracing pipeline:
// span creation, in-process collection, batching and background reporting to
// a pluggable backend.
//
// Data flow:
//
//	application code -> Tracer.StartSpan/Finish -> Collector.Submit
//	    -> Reporter (background goroutine) -> Transport.Send -> backend
//
// The pipeline is best-effort telemetry. No failure in this package may
// degrade the caller: span submission is wait-free, backend errors are
// retried with backoff inside the reporter, and spans that cannot be shipped
// are dropped or discarded with a counted metric.
//
// Basic usage:
//
//	metrics := tracing.NewMetrics(registry)
//	tracer, reporter, err := tracing.New(cfg, metrics, clockz.RealClock)
//	if err != nil {
//	    return err
//	}
//	handle := up.Spawn("span-reporter", reporter.Run)
//
//	ctx, span := tracer.StartSpan(ctx, "fetch-shards")
//	span.SetTag("shard.count", "12")
//	defer span.Finish()
package tracing

import (
	"fmt"

	"github.com/observa/tracepipe/internal/models"
	"github.com/zoobzio/clockz"
)

// New creates a tracer and its background reporter based on the given
// configuration. The backend is selected once here and held for the process
// lifetime.
//
// For the noop backend the returned reporter is nil: no goroutine, no queue
// and no network activity exist, and all transport counters stay zero.
//
// A configuration this factory rejects is fatal at startup; the process must
// not run with an unusable tracer.
func New(cfg models.TracingConfig, metrics *Metrics, clock clockz.Clock) (Tracer, *Reporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	switch cfg.Backend {
	case models.BackendNoop:
		return NewNoopTracer(), nil, nil

	case models.BackendHTTPCollector:
		collector := NewCollector(cfg.QueueCapacity, metrics, clock)
		transport := NewHTTPCollectorTransport(cfg)
		tracer := NewRealTracer(collector, clock, cfg.ServiceName, cfg.ServiceVersion)
		reporter := NewReporter(collector, transport, metrics, clock, cfg)
		return tracer, reporter, nil

	default:
		// Validate rejects unknown backends, this is unreachable.
		return nil, nil, fmt.Errorf("invalid tracing backend: %q", cfg.Backend)
	}
}

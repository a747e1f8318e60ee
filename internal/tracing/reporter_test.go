package tracing

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/observa/tracepipe/internal/models"
	"github.com/observa/tracepipe/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
)

// recordingTransport is a Transport test double: it records sent batches and
// can be configured to fail the first N attempts or every attempt.
type recordingTransport struct {
	mu       sync.Mutex
	batches  [][]Span
	calls    int
	failures int
	failAll  bool
	closed   bool
}

func (t *recordingTransport) Send(batch []Span) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if t.failAll || t.calls <= t.failures {
		return &TransportError{StatusCode: 503}
	}
	cp := make([]Span, len(batch))
	copy(cp, batch)
	t.batches = append(t.batches, cp)
	return nil
}

func (t *recordingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *recordingTransport) sentBatches() [][]Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]Span, len(t.batches))
	copy(out, t.batches)
	return out
}

func (t *recordingTransport) attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

func (t *recordingTransport) wasClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// reporterConfig builds a tracing configuration with short intervals suited
// to reporter loop tests.
func reporterConfig(batchMax int, flushInterval string, maxAttempts int) models.TracingConfig {
	cfg := models.TracingConfig{
		Backend:       models.BackendHTTPCollector,
		Endpoint:      testutil.TestEndpoint,
		BatchMaxSize:  batchMax,
		FlushInterval: flushInterval,
		IdleInterval:  "5ms",
		MaxAttempts:   maxAttempts,
		BackoffBase:   "1ms",
		BackoffMax:    "10ms",
	}
	cfg.SetDefaults()
	return cfg
}

// startReporter runs the reporter on a goroutine and returns the stop
// trigger and a done channel.
func startReporter(r *Reporter) (stop func(), done <-chan struct{}) {
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		r.Run(stopCh)
	}()
	var once sync.Once
	return func() { once.Do(func() { close(stopCh) }) }, doneCh
}

func TestReporter_FlushesWhenBatchFull(t *testing.T) {
	metrics := NewMetrics(nil)
	collector := NewCollector(100, metrics, clockz.RealClock)
	transport := &recordingTransport{}
	// Long flush interval: only the size threshold can trigger here.
	reporter := NewReporter(collector, transport, metrics, clockz.RealClock, reporterConfig(5, "1h", 3))

	stop, done := startReporter(reporter)
	defer func() { stop(); <-done }()

	for i := 0; i < 5; i++ {
		collector.Submit(Span{Name: fmt.Sprintf("span-%d", i)})
	}

	require.Eventually(t, func() bool {
		return len(transport.sentBatches()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	batch := transport.sentBatches()[0]
	require.Len(t, batch, 5)
	for i, span := range batch {
		assert.Equal(t, fmt.Sprintf("span-%d", i), span.Name)
	}
	assert.Equal(t, 1.0, testutil.CounterValue(t, metrics.BatchesSent))
}

func TestReporter_FlushesOnIntervalBeforeBatchFull(t *testing.T) {
	metrics := NewMetrics(nil)
	collector := NewCollector(100, metrics, clockz.RealClock)
	transport := &recordingTransport{}
	// Big batch threshold: only the interval can trigger here.
	reporter := NewReporter(collector, transport, metrics, clockz.RealClock, reporterConfig(1000, "50ms", 3))

	stop, done := startReporter(reporter)
	defer func() { stop(); <-done }()

	collector.Submit(Span{Name: "lonely"})

	require.Eventually(t, func() bool {
		return len(transport.sentBatches()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	batch := transport.sentBatches()[0]
	require.Len(t, batch, 1)
	assert.Equal(t, "lonely", batch[0].Name)
}

func TestReporter_RetriesThenDiscards(t *testing.T) {
	metrics := NewMetrics(nil)
	collector := NewCollector(100, metrics, clockz.RealClock)
	transport := &recordingTransport{failAll: true}
	reporter := NewReporter(collector, transport, metrics, clockz.RealClock, reporterConfig(10, "20ms", 3))

	stop, done := startReporter(reporter)
	defer func() { stop(); <-done }()

	for i := 0; i < 10; i++ {
		collector.Submit(Span{Name: "doomed"})
	}

	// After maxAttempts failed sends the whole batch is discarded and the
	// discard counter grows by the batch size.
	require.Eventually(t, func() bool {
		return testutil.CounterValue(t, metrics.SpansDiscarded) == 10.0
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 3, transport.attempts())
	assert.Equal(t, 3.0, testutil.CounterValue(t, metrics.BatchSendFailures))
	assert.Empty(t, transport.sentBatches())
}

func TestReporter_RecoversAfterTransientFailures(t *testing.T) {
	metrics := NewMetrics(nil)
	collector := NewCollector(100, metrics, clockz.RealClock)
	transport := &recordingTransport{failures: 2}
	reporter := NewReporter(collector, transport, metrics, clockz.RealClock, reporterConfig(4, "20ms", 5))

	stop, done := startReporter(reporter)
	defer func() { stop(); <-done }()

	for i := 0; i < 4; i++ {
		collector.Submit(Span{Name: "persistent"})
	}

	require.Eventually(t, func() bool {
		return len(transport.sentBatches()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.Len(t, transport.sentBatches()[0], 4)
	assert.Equal(t, 2.0, testutil.CounterValue(t, metrics.BatchSendFailures))
	assert.Equal(t, 0.0, testutil.CounterValue(t, metrics.SpansDiscarded))
	assert.Equal(t, 1.0, testutil.CounterValue(t, metrics.BatchesSent))
}

func TestReporter_BackoffGrowsUntilCapped(t *testing.T) {
	cfg := models.TracingConfig{
		Backend:     models.BackendHTTPCollector,
		Endpoint:    testutil.TestEndpoint,
		BackoffBase: "1s",
		BackoffMax:  "30s",
		MaxAttempts: 10,
	}
	cfg.SetDefaults()
	reporter := NewReporter(
		NewCollector(1, NewMetrics(nil), clockz.RealClock),
		&NoopTransport{},
		NewMetrics(nil),
		clockz.RealClock,
		cfg,
	)

	var previous time.Duration
	for failures := 1; failures <= 5; failures++ {
		reporter.failures = failures
		delay := reporter.backoff()
		assert.Greater(t, delay, previous, "backoff must strictly increase before the cap")
		previous = delay
	}
	assert.Equal(t, 16*time.Second, previous)

	// Beyond the cap the delay stays put.
	reporter.failures = 6
	assert.Equal(t, 30*time.Second, reporter.backoff())
	reporter.failures = 7
	assert.Equal(t, 30*time.Second, reporter.backoff())

	// A pathological shift never yields a non-positive delay.
	reporter.failures = 70
	assert.Equal(t, 30*time.Second, reporter.backoff())
}

func TestReporter_DrainsPendingSpansOnStop(t *testing.T) {
	metrics := NewMetrics(nil)
	collector := NewCollector(100, metrics, clockz.RealClock)
	transport := &recordingTransport{}
	// Nothing would flush on its own before the stop signal.
	reporter := NewReporter(collector, transport, metrics, clockz.RealClock, reporterConfig(1000, "1h", 3))

	stop, done := startReporter(reporter)

	for i := 0; i < 3; i++ {
		collector.Submit(Span{Name: "pending"})
	}
	// Give the reporter a moment to pull spans into its batch.
	time.Sleep(30 * time.Millisecond)

	stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reporter did not stop")
	}

	batches := transport.sentBatches()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 3)
	assert.True(t, transport.wasClosed(), "transport must be released on stop")
}

func TestReporter_DiscardsOnFailedShutdownFlush(t *testing.T) {
	metrics := NewMetrics(nil)
	collector := NewCollector(100, metrics, clockz.RealClock)
	transport := &recordingTransport{failAll: true}
	reporter := NewReporter(collector, transport, metrics, clockz.RealClock, reporterConfig(1000, "1h", 3))

	stop, done := startReporter(reporter)

	collector.Submit(Span{Name: "lost"})
	collector.Submit(Span{Name: "lost"})
	time.Sleep(30 * time.Millisecond)

	stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reporter did not stop")
	}

	assert.Equal(t, 2.0, testutil.CounterValue(t, metrics.SpansDiscarded))
	assert.True(t, transport.wasClosed())
}

func TestReporter_UnreachableBackendDoesNotCrash(t *testing.T) {
	// Scenario: backend unreachable with batchMaxSize=10 and maxAttempts=3.
	// The batch must be discarded after the retries, the pipeline keeps
	// accepting spans, and nothing panics.
	metrics := NewMetrics(nil)
	collector := NewCollector(100, metrics, clockz.RealClock)
	transport := &recordingTransport{failAll: true}
	reporter := NewReporter(collector, transport, metrics, clockz.RealClock, reporterConfig(10, "30ms", 3))

	stop, done := startReporter(reporter)
	defer func() { stop(); <-done }()

	for i := 0; i < 10; i++ {
		collector.Submit(Span{Name: "first-wave"})
	}

	require.Eventually(t, func() bool {
		return testutil.CounterValue(t, metrics.SpansDiscarded) >= 10.0
	}, 5*time.Second, 10*time.Millisecond)

	// Submission still works after the discard.
	collector.Submit(Span{Name: "second-wave"})
	assert.Equal(t, 11.0, testutil.CounterValue(t, metrics.SpansSubmitted))
}

func TestReporter_StopDuringBackoffSleep(t *testing.T) {
	metrics := NewMetrics(nil)
	collector := NewCollector(100, metrics, clockz.RealClock)
	transport := &recordingTransport{failAll: true}
	cfg := reporterConfig(2, "10ms", 10)
	cfg.BackoffBase = "1h" // The reporter would sleep for a very long time.
	cfg.BackoffMax = "1h"
	reporter := NewReporter(collector, transport, metrics, clockz.RealClock, cfg)

	stop, done := startReporter(reporter)

	collector.Submit(Span{Name: "a"})
	collector.Submit(Span{Name: "b"})

	// Wait for the first failed attempt, then stop mid-backoff.
	require.Eventually(t, func() bool {
		return transport.attempts() >= 1
	}, 5*time.Second, 10*time.Millisecond)
	stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reporter did not observe stop during backoff sleep")
	}
}

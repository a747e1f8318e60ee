// Package models defines the core data structures for the tracepipe daemon.
// It includes the process configuration and the tracing pipeline configuration
// loaded from the YAML configuration file.
package models

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Supported tracing backends.
const (
	// BackendNoop discards all spans. Used when integration with
	// distributed tracing is not needed.
	BackendNoop = "noop"

	// BackendHTTPCollector ships span batches to an HTTP collector
	// endpoint (Zipkin-compatible JSON) from a background reporter.
	BackendHTTPCollector = "http-collector"
)

// Default values applied by TracingConfig.SetDefaults.
const (
	DefaultBatchMaxSize  = 64
	DefaultQueueCapacity = 1024
	DefaultFlushInterval = "2s"
	DefaultIdleInterval  = "250ms"
	DefaultMaxAttempts   = 3
	DefaultBackoffBase   = "1s"
	DefaultBackoffMax    = "30s"
	DefaultSendTimeout   = "10s"
)

// Config represents the complete application configuration for the tracepipe
// daemon. It includes settings for the metrics server and the tracing pipeline.
type Config struct {
	Server struct {
		Port              string `yaml:"port"`
		Host              string `yaml:"host"`
		URI               string `yaml:"uri"`
		LogName           string `yaml:"logName"`
		HeartbeatInterval string `yaml:"heartbeatInterval"`
	} `yaml:"server"`

	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig selects the active tracing backend and tunes the span
// reporting pipeline. It is loaded once at process start and must not be
// mutated afterward; every component receives it by value.
type TracingConfig struct {
	// Backend selects the span transport: "noop" or "http-collector".
	Backend string `yaml:"backend"`

	// Endpoint is the collector URL spans are POSTed to.
	// Required when Backend is "http-collector".
	Endpoint string `yaml:"endpoint"`

	// Headers are static HTTP headers attached to every batch request,
	// for example authentication tokens required by the collector.
	Headers map[string]string `yaml:"headers"`

	// ServiceName and ServiceVersion are attached as tags to every span
	// so traces can be attributed to the emitting process.
	ServiceName    string `yaml:"serviceName"`
	ServiceVersion string `yaml:"serviceVersion"`

	// BatchMaxSize is the number of spans that triggers a flush.
	BatchMaxSize int `yaml:"batchMaxSize"`

	// FlushInterval is the maximum time a span waits in a batch before
	// a flush is forced, bounding reporting latency.
	FlushInterval string `yaml:"flushInterval"`

	// QueueCapacity bounds the collector queue shared by all producers.
	// Spans submitted while the queue is full are dropped.
	QueueCapacity int `yaml:"queueCapacity"`

	// IdleInterval bounds how long the reporter blocks waiting for spans
	// before re-checking its timers and the shutdown signal.
	IdleInterval string `yaml:"idleInterval"`

	// MaxAttempts is the number of send attempts before a batch is
	// discarded. Tracing data is best effort, not durable.
	MaxAttempts int `yaml:"maxAttempts"`

	// BackoffBase and BackoffMax tune the exponential backoff applied
	// between failed send attempts.
	BackoffBase string `yaml:"backoffBase"`
	BackoffMax  string `yaml:"backoffMax"`

	// SendTimeout bounds a single HTTP request to the collector.
	SendTimeout string `yaml:"sendTimeout"`
}

// SetDefaults sets default values for optional configuration fields.
// The tracing backend defaults to "noop" so a process without a tracing
// section still starts with a usable (discarding) tracer.
// This method is called automatically by Validate() before validation checks.
func (c *Config) SetDefaults() {
	if c.Server.HeartbeatInterval == "" {
		c.Server.HeartbeatInterval = "15s"
	}
	c.Tracing.SetDefaults()
}

// SetDefaults fills unset tracing options with their documented defaults.
func (t *TracingConfig) SetDefaults() {
	if t.Backend == "" {
		t.Backend = BackendNoop
	}
	if t.BatchMaxSize == 0 {
		t.BatchMaxSize = DefaultBatchMaxSize
	}
	if t.QueueCapacity == 0 {
		t.QueueCapacity = DefaultQueueCapacity
	}
	if t.FlushInterval == "" {
		t.FlushInterval = DefaultFlushInterval
	}
	if t.IdleInterval == "" {
		t.IdleInterval = DefaultIdleInterval
	}
	if t.MaxAttempts == 0 {
		t.MaxAttempts = DefaultMaxAttempts
	}
	if t.BackoffBase == "" {
		t.BackoffBase = DefaultBackoffBase
	}
	if t.BackoffMax == "" {
		t.BackoffMax = DefaultBackoffMax
	}
	if t.SendTimeout == "" {
		t.SendTimeout = DefaultSendTimeout
	}
}

// Validate checks if the configuration is valid and returns an error if not.
// It performs validation of all configuration fields including:
//   - Server settings (host, port, URI, heartbeat interval)
//   - Tracing backend selection and endpoint URL
//   - Batching thresholds and retry/backoff durations
//
// This method calls SetDefaults() before validation to ensure optional fields
// have appropriate default values. The process must not start with a
// configuration that fails validation.
//
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	c.SetDefaults()

	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %s", c.Server.Port)
	}
	if c.Server.Host == "" {
		return errors.New("server host is required")
	}
	if c.Server.URI == "" {
		return errors.New("server URI is required")
	}
	if !strings.HasPrefix(c.Server.URI, "/") {
		return fmt.Errorf("invalid server URI: %s (must start with /)", c.Server.URI)
	}
	if _, err := time.ParseDuration(c.Server.HeartbeatInterval); err != nil {
		return fmt.Errorf("invalid heartbeat interval: %w", err)
	}

	return c.Tracing.Validate()
}

// Validate checks the tracing section for consistency. It is called by
// Config.Validate but can be used on its own when the tracing pipeline is
// embedded in another process.
func (t *TracingConfig) Validate() error {
	t.SetDefaults()

	switch t.Backend {
	case BackendNoop:
		// Nothing else to check, all pipeline options are ignored.
		return nil
	case BackendHTTPCollector:
	default:
		return fmt.Errorf("invalid tracing backend: %q (must be %q or %q)",
			t.Backend, BackendNoop, BackendHTTPCollector)
	}

	if t.Endpoint == "" {
		return fmt.Errorf("tracing endpoint is required when backend is %q", BackendHTTPCollector)
	}
	endpoint, err := url.Parse(t.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid tracing endpoint: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return fmt.Errorf("invalid tracing endpoint scheme: %s (must be http or https)", endpoint.Scheme)
	}
	if endpoint.Host == "" {
		return fmt.Errorf("invalid tracing endpoint: %s (missing host)", t.Endpoint)
	}

	if t.BatchMaxSize < 1 {
		return fmt.Errorf("invalid tracing batchMaxSize: %d (must be positive)", t.BatchMaxSize)
	}
	if t.QueueCapacity < 1 {
		return fmt.Errorf("invalid tracing queueCapacity: %d (must be positive)", t.QueueCapacity)
	}
	if t.MaxAttempts < 1 {
		return fmt.Errorf("invalid tracing maxAttempts: %d (must be positive)", t.MaxAttempts)
	}

	durations := []struct {
		name  string
		value string
	}{
		{"flushInterval", t.FlushInterval},
		{"idleInterval", t.IdleInterval},
		{"backoffBase", t.BackoffBase},
		{"backoffMax", t.BackoffMax},
		{"sendTimeout", t.SendTimeout},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid tracing %s: %w", d.name, err)
		}
		if parsed <= 0 {
			return fmt.Errorf("invalid tracing %s: %s (must be positive)", d.name, d.value)
		}
	}

	return nil
}

// GetServerAddress returns the complete server address for HTTP server binding.
// Format: host:port
//
// Example: "0.0.0.0:9811"
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// GetHeartbeatInterval returns the parsed heartbeat interval.
// Validate must have succeeded before calling this method.
func (c *Config) GetHeartbeatInterval() time.Duration {
	return mustDuration(c.Server.HeartbeatInterval)
}

// GetFlushInterval returns the parsed flush interval.
func (t *TracingConfig) GetFlushInterval() time.Duration {
	return mustDuration(t.FlushInterval)
}

// GetIdleInterval returns the parsed reporter idle interval.
func (t *TracingConfig) GetIdleInterval() time.Duration {
	return mustDuration(t.IdleInterval)
}

// GetBackoffBase returns the parsed backoff base delay.
func (t *TracingConfig) GetBackoffBase() time.Duration {
	return mustDuration(t.BackoffBase)
}

// GetBackoffMax returns the parsed backoff delay cap.
func (t *TracingConfig) GetBackoffMax() time.Duration {
	return mustDuration(t.BackoffMax)
}

// GetSendTimeout returns the parsed per-request send timeout.
func (t *TracingConfig) GetSendTimeout() time.Duration {
	return mustDuration(t.SendTimeout)
}

// mustDuration parses a duration that has already passed validation.
// A zero duration is returned for unparseable values so callers relying on
// validated configuration never observe a panic.
func mustDuration(value string) time.Duration {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return parsed
}

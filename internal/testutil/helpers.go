// Package testutil provides shared testing utilities for the tracepipe
// daemon: configuration builders and metric assertion helpers used across
// packages to keep test code short and consistent.
package testutil

import (
	"testing"

	"github.com/observa/tracepipe/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// Common test values.
const (
	TestServiceName    = "test-service"
	TestServiceVersion = "0.1.0"
	TestEndpoint       = "http://127.0.0.1:9411/api/v1/spans"
)

// ValidConfig returns a complete daemon configuration that passes
// validation, using the noop tracing backend.
func ValidConfig() models.Config {
	var cfg models.Config
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "9811"
	cfg.Server.URI = "/metrics"
	cfg.Server.HeartbeatInterval = "15s"
	cfg.Tracing = NoopTracingConfig()
	return cfg
}

// NoopTracingConfig returns a tracing configuration for the noop backend
// with all defaults applied.
func NoopTracingConfig() models.TracingConfig {
	cfg := models.TracingConfig{Backend: models.BackendNoop}
	cfg.SetDefaults()
	return cfg
}

// HTTPTracingConfig returns a tracing configuration for the http-collector
// backend pointing at the given endpoint, with defaults applied.
func HTTPTracingConfig(endpoint string) models.TracingConfig {
	cfg := models.TracingConfig{
		Backend:        models.BackendHTTPCollector,
		Endpoint:       endpoint,
		ServiceName:    TestServiceName,
		ServiceVersion: TestServiceVersion,
	}
	cfg.SetDefaults()
	return cfg
}

// CounterValue reads the current value of a prometheus counter.
func CounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	require.NoError(t, counter.Write(&metric))
	return metric.GetCounter().GetValue()
}

// Tracepipe is a monitoring agent daemon built around an asynchronous
// distributed-tracing pipeline: spans produced in-process are buffered,
// batched by a background reporter and shipped to a tracing backend over a
// pluggable wire transport, while the process itself stays unaffected by
// network latency or backend outages.
//
// The daemon exposes pipeline counters (spans submitted/dropped/discarded,
// batches sent/failed) via a Prometheus endpoint and emits a self-traced
// heartbeat span at a configurable interval so the pipeline is exercised end
// to end.
//
// Usage:
//
//	tracepipe --config config.yaml [--debug]
//
// Configuration is provided via YAML file specifying:
//   - Server settings (host, port, metrics URI, heartbeat interval)
//   - Tracing settings (backend, collector endpoint, batching thresholds)
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/observa/tracepipe/internal/logging"
	"github.com/observa/tracepipe/internal/models"
	"github.com/observa/tracepipe/internal/tracing"
	"github.com/observa/tracepipe/internal/upkeep"
	"github.com/observa/tracepipe/internal/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/zoobzio/clockz"
)

const (
	programName       = "tracepipe"      // Application name
	shutdownTimeout   = 10 * time.Second // Maximum time to wait for graceful shutdown
	readHeaderTimeout = 5 * time.Second  // HTTP server read header timeout
)

var (
	configFile string
	debug      bool
)

// Server encapsulates the HTTP metrics server and the tracing pipeline.
// It manages the lifecycle of the HTTP server, the Prometheus registry, the
// tracer and the background span reporter.
//
// Error Handling:
// Server errors (such as port binding failures) are communicated through the
// ErrorChan() channel rather than calling log.Fatal. This allows the caller
// to perform graceful shutdown even when the server encounters errors.
type Server struct {
	cfg      models.Config        // Application configuration
	httpSrv  *http.Server         // HTTP server instance
	registry *prometheus.Registry // Prometheus metrics registry
	tracer   tracing.MaybeTracer  // Tracer shared by all span producers
	up       *upkeep.Upkeep       // Lifecycle controller for background workers
	// serverErrChan receives HTTP server errors. It is buffered (capacity 1)
	// to ensure the goroutine can send an error even if the main select
	// hasn't started listening yet.
	serverErrChan chan error
}

// NewServer creates a new server instance with the provided configuration.
// It initializes a fresh Prometheus registry and the lifecycle controller.
func NewServer(cfg models.Config) *Server {
	return &Server{
		cfg:           cfg,
		registry:      prometheus.NewRegistry(),
		up:            upkeep.New(),
		serverErrChan: make(chan error, 1),
	}
}

// Start builds the tracing pipeline from the configuration, spawns the
// background reporter and the heartbeat worker, and starts the HTTP server.
//
// The server exposes:
//   - Metrics endpoint at the configured URI (default: /metrics)
//   - Health check endpoint at /health
//
// Returns an error if the tracing configuration is unusable; the process
// must not start with a broken tracer. The HTTP server runs asynchronously
// and reports failures through ErrorChan.
func (s *Server) Start() error {
	metrics := tracing.NewMetrics(s.registry)
	tracer, reporter, err := tracing.New(s.cfg.Tracing, metrics, clockz.RealClock)
	if err != nil {
		return fmt.Errorf("failed to create tracer: %w", err)
	}
	s.tracer = tracing.WrapTracer(tracer)

	// Stop span production before the reporter drains during shutdown.
	s.up.OnShutdown(func() {
		if err := s.tracer.Close(); err != nil {
			log.WithError(err).Warn("Failed to close tracer")
		}
	})
	if reporter != nil {
		s.up.Spawn("span-reporter", reporter.Run)
		log.Infof("Span reporter started (backend: %s)", s.cfg.Tracing.Backend)
	} else {
		log.Info("Tracing disabled, spans will be discarded")
	}

	s.up.Spawn("heartbeat", s.heartbeat)

	mux := http.NewServeMux()
	mux.Handle(s.cfg.Server.URI, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", s.healthHandler)

	s.httpSrv = &http.Server{
		Addr:              s.cfg.GetServerAddress(),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Infof("Starting %s on %s%s", programName, s.cfg.GetServerAddress(), s.cfg.Server.URI)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	return nil
}

// ErrorChan returns the channel for receiving server errors.
// The main function should select on this channel to handle errors gracefully.
func (s *Server) ErrorChan() <-chan error {
	return s.serverErrChan
}

// Keepalive blocks until a shutdown signal arrives, a background worker
// exits or the HTTP server reports an error.
func (s *Server) Keepalive() {
	done := make(chan struct{})
	go func() {
		s.up.Keepalive()
		close(done)
	}()

	select {
	case <-done:
	case err := <-s.serverErrChan:
		if err != nil {
			log.Errorf("Server error: %v", err)
		}
	}
}

// Shutdown gracefully shuts down the server components in order.
//
// Shutdown Order:
//  1. Stop HTTP server (no new scrapes accepted)
//  2. Signal background workers and close the tracer (reporter drains and
//     flushes pending spans, bounded by the shutdown timeout)
//
// Returns an error if shutdown fails or times out; a timeout means
// background workers were abandoned, not that the process must abort.
func (s *Server) Shutdown() error {
	var errs []error

	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.Info("Shutting down HTTP server...")
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
		}
	}

	log.Info("Stopping background workers...")
	if err := s.up.Shutdown(shutdownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("worker shutdown: %w", err))
	}

	close(s.serverErrChan)

	if len(errs) > 0 {
		log.Errorf("Shutdown completed with %d errors", len(errs))
		return errs[0]
	}

	log.Info("Server stopped gracefully")
	return nil
}

// heartbeat emits one self-traced span per configured interval, tagged with
// process identity. It exercises the whole pipeline end to end and gives
// operators a liveness trace for the daemon itself.
func (s *Server) heartbeat(stop <-chan struct{}) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	pid := strconv.Itoa(os.Getpid())

	ticker := time.NewTicker(s.cfg.GetHeartbeatInterval())
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_, span := s.tracer.StartSpan(context.Background(), "heartbeat")
			span.SetTag("host", hostname)
			span.SetTag("pid", pid)
			span.Log("heartbeat emitted", nil)
			span.Finish()
		}
	}
}

// healthHandler provides a simple health check endpoint that returns HTTP 200 OK.
// This endpoint can be used by load balancers and monitoring systems to verify
// the application is running.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK\n")
}

// validateConfig checks if the configuration file exists, loads it, and
// validates its contents.
//
// Returns an error if the file doesn't exist, cannot be parsed, or fails
// validation.
func validateConfig(configPath string) (*models.Config, error) {
	if !utils.FileExists(configPath) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	var cfg models.Config
	if err := utils.ReadFile(&cfg, configPath); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setupLogging initializes the logging system with the configured log file.
// If debug mode is enabled, sets the log level to DEBUG for verbose output.
func setupLogging(cfg models.Config, debugMode bool) error {
	if err := logging.PrepareLogs(cfg.Server.LogName); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	if debugMode {
		log.SetLevel(log.DebugLevel)
		log.Debug("Debug mode enabled")
	}

	return nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   programName,
		Short: "Monitoring agent with an asynchronous distributed-tracing pipeline",
		Long:  "Tracepipe buffers trace spans in-process and ships them in batches to a tracing backend, exposing pipeline metrics in Prometheus format",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := validateConfig(configFile)
			if err != nil {
				return err
			}

			if err := setupLogging(*cfg, debug); err != nil {
				return err
			}

			log.Infof("Starting %s...", programName)
			log.Infof("Tracing backend: %s", cfg.Tracing.Backend)
			if cfg.Tracing.Backend == models.BackendHTTPCollector {
				log.Infof("Collector endpoint: %s", cfg.Tracing.Endpoint)
			}

			server := NewServer(*cfg)
			if err := server.Start(); err != nil {
				return err
			}

			server.Keepalive()

			return server.Shutdown()
		},
	}

	rootCmd.Flags().StringVarP(&configFile, "config", "c", "config.yaml", "Path to configuration file")
	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		log.Errorf("Error: %v", err)
		os.Exit(1)
	}
}

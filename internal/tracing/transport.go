package tracing

import (
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/observa/tracepipe/internal/models"
)

const (
	contentType           = "application/json" // Content type for collector requests
	httpContentTypeHeader = "Content-Type"     // HTTP header name for content type

	// Connection pool configuration
	maxIdleConns        = 10               // Total idle connections, one backend host
	idleConnTimeout     = 90 * time.Second // Timeout for idle connections
	tlsHandshakeTimeout = 10 * time.Second // Timeout for the TLS handshake
)

// Transport encodes span batches into a backend-specific wire format and
// performs the network call. Implementations own any connection state they
// need; Send is called from the reporter goroutine only and is never invoked
// concurrently with itself.
type Transport interface {
	// Send ships one batch of finished spans to the backend.
	// Failures are reported as *TransportError.
	Send(batch []Span) error

	// Close releases transport resources.
	Close() error
}

// NoopTransport discards batches and always succeeds. Used for disabled
// tracing and in tests.
type NoopTransport struct{}

// Send implements Transport by discarding the batch.
func (*NoopTransport) Send(_ []Span) error {
	return nil
}

// Close implements Transport.
func (*NoopTransport) Close() error {
	return nil
}

// HTTPCollectorTransport ships span batches to an HTTP collector endpoint as
// one JSON POST per batch. A 2xx response is a success; any other status or
// a connection-level failure becomes a *TransportError.
//
// Retrying is deliberately not configured on the HTTP client: the reporter
// owns the retry and backoff policy, and stacking client-level retries under
// it would multiply the attempts.
type HTTPCollectorTransport struct {
	client   *resty.Client
	endpoint string
}

// NewHTTPCollectorTransport creates a transport POSTing to cfg.Endpoint with
// the configured static headers and send timeout.
func NewHTTPCollectorTransport(cfg models.TracingConfig) *HTTPCollectorTransport {
	client := resty.New().
		SetTimeout(cfg.GetSendTimeout()).
		SetHeader(httpContentTypeHeader, contentType).
		SetHeaders(cfg.Headers)

	client.GetClient().Transport = &http.Transport{
		MaxIdleConns:        maxIdleConns,
		IdleConnTimeout:     idleConnTimeout,
		TLSHandshakeTimeout: tlsHandshakeTimeout,
	}

	return &HTTPCollectorTransport{
		client:   client,
		endpoint: cfg.Endpoint,
	}
}

// Send encodes the batch and POSTs it to the collector endpoint.
func (t *HTTPCollectorTransport) Send(batch []Span) error {
	payload, err := EncodeBatch(batch)
	if err != nil {
		return &TransportError{Err: err}
	}

	resp, err := t.client.R().
		SetBody(payload).
		Post(t.endpoint)
	if err != nil {
		return &TransportError{Err: err}
	}
	if !resp.IsSuccess() {
		return &TransportError{StatusCode: resp.StatusCode()}
	}
	return nil
}

// Close releases idle connections held by the HTTP client.
func (t *HTTPCollectorTransport) Close() error {
	t.client.GetClient().CloseIdleConnections()
	return nil
}

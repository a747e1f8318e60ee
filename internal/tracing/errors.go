package tracing

import "fmt"

// TransportError describes a failed attempt to ship a span batch to the
// tracing backend. It covers both transport-level failures (connection
// refused, timeouts, encoding errors) and non-2xx collector responses.
//
// TransportError never reaches application code: the reporter retries with
// backoff and eventually discards the batch, surfacing the failure only
// through logs and metrics.
type TransportError struct {
	// StatusCode is the HTTP status returned by the collector, or zero
	// when the request never produced a response.
	StatusCode int

	// Err is the underlying transport or encoding error, if any.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("span batch rejected with status %d: %v", e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("span batch rejected with status %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("span batch send failed: %v", e.Err)
	default:
		return "span batch send failed"
	}
}

// Unwrap exposes the underlying error for errors.Is/As chains.
func (e *TransportError) Unwrap() error {
	return e.Err
}

package tracing

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// wireSpan is the collector wire representation of a finished span.
// Timestamps and durations are expressed in microseconds since epoch, the
// granularity the Zipkin-style JSON collector protocol expects.
type wireSpan struct {
	TraceID     string            `json:"traceId"`
	ID          string            `json:"id"`
	ParentID    string            `json:"parentId,omitempty"`
	Name        string            `json:"name"`
	Timestamp   int64             `json:"timestamp"`
	Duration    int64             `json:"duration"`
	Tags        map[string]string `json:"tags"`
	Annotations []wireAnnotation  `json:"annotations"`
}

// wireAnnotation is a timestamped span log event on the wire.
type wireAnnotation struct {
	Timestamp int64  `json:"timestamp"`
	Value     string `json:"value"`
}

// EncodeBatch serializes a batch of finished spans into the collector JSON
// wire format: one array with one object per span. The encoding is
// deterministic for a given batch (stable field and map key ordering), which
// keeps golden-file comparisons meaningful.
func EncodeBatch(batch []Span) ([]byte, error) {
	spans := make([]wireSpan, 0, len(batch))
	for i := range batch {
		spans = append(spans, toWire(&batch[i]))
	}
	payload, err := json.Marshal(spans)
	if err != nil {
		return nil, fmt.Errorf("failed to encode span batch: %w", err)
	}
	return payload, nil
}

// toWire converts a span to its wire representation.
func toWire(span *Span) wireSpan {
	tags := span.Tags
	if tags == nil {
		tags = map[string]string{}
	}

	annotations := make([]wireAnnotation, 0, len(span.Logs))
	for _, entry := range span.Logs {
		annotations = append(annotations, wireAnnotation{
			Timestamp: entry.Time.UnixMicro(),
			Value:     annotationValue(entry),
		})
	}

	return wireSpan{
		TraceID:     span.TraceID,
		ID:          span.SpanID,
		ParentID:    span.ParentID,
		Name:        span.Name,
		Timestamp:   span.Start.UnixMicro(),
		Duration:    span.Duration.Microseconds(),
		Tags:        tags,
		Annotations: annotations,
	}
}

// annotationValue renders a log entry as a single annotation string: the
// message followed by its fields as key=value pairs in sorted key order.
func annotationValue(entry LogEntry) string {
	if len(entry.Fields) == 0 {
		return entry.Value
	}

	keys := make([]string, 0, len(entry.Fields))
	for key := range entry.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(entry.Value)
	for _, key := range keys {
		b.WriteString(" ")
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(entry.Fields[key])
	}
	return b.String()
}

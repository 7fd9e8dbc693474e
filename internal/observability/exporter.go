package observability

import (
	"context"
	"strings"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SpanLogger receives one line per finished span.
type SpanLogger interface {
	Info(format string, args ...any)
}

// LogExporter writes finished spans to a logger.
type LogExporter struct {
	log SpanLogger
}

var _ sdktrace.SpanExporter = (*LogExporter)(nil)

// NewLogExporter creates a LogExporter writing to log.
func NewLogExporter(log SpanLogger) *LogExporter {
	return &LogExporter{log: log}
}

// ExportSpans logs every span with its trace id, duration, status and attributes.
func (e *LogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		err := ctx.Err()
		if err != nil {
			return err
		}

		var attrs strings.Builder
		for _, kv := range span.Attributes() {
			attrs.WriteString(" ")
			attrs.WriteString(string(kv.Key))
			attrs.WriteString("=")
			attrs.WriteString(kv.Value.Emit())
		}

		e.log.Info("Span %s trace=%s duration=%s status=%s%s",
			span.Name(),
			span.SpanContext().TraceID(),
			span.EndTime().Sub(span.StartTime()),
			span.Status().Code,
			attrs.String())
	}

	return nil
}

// Shutdown has nothing to flush.
func (e *LogExporter) Shutdown(context.Context) error {
	return nil
}

// NewTracerProvider batches finished spans into exporter. The caller shuts it
// down to flush pending spans.
func NewTracerProvider(exporter sdktrace.SpanExporter) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
}

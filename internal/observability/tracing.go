package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer creates spans for runs and chunks.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer from provider. A nil provider yields a no-op tracer.
func NewTracer(provider trace.TracerProvider) *Tracer {
	if provider == nil {
		provider = noop.NewTracerProvider()
	}

	return &Tracer{tracer: provider.Tracer(InstrumentationName)}
}

// StartRun starts the span that covers one pipeline run.
func (t *Tracer) StartRun(ctx context.Context, capability, runID string, chunkCount int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "narrator.run",
		trace.WithAttributes(
			attribute.String("narrator.capability", capability),
			attribute.String("narrator.run_id", runID),
			attribute.Int("narrator.chunk_count", chunkCount),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartChunk starts a child span for one chunk transformation.
func (t *Tracer) StartChunk(ctx context.Context, index, runes int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "narrator.chunk",
		trace.WithAttributes(
			attribute.Int("narrator.chunk.index", index),
			attribute.Int("narrator.chunk.runes", runes),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpan ends span, recording err when it is non-nil.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

// Package observability provides the metrics and tracing hooks used by the
// narration pipeline. Every constructor takes an explicit provider so callers
// decide where telemetry goes; there is no package-level state.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentationName is the meter and tracer name used by narrator.
const InstrumentationName = "github.com/book-expert/narrator"

// Recorder records pipeline metrics.
type Recorder interface {
	// RecordChunk records one chunk transformation attempt.
	RecordChunk(ctx context.Context, capability string, latency time.Duration, err error)
	// RecordResume records chunks skipped because a checkpoint already held them.
	RecordResume(ctx context.Context, capability string, skipped int)
	// RecordCheckpoint records the size of a saved checkpoint.
	RecordCheckpoint(ctx context.Context, capability string, sizeBytes int64)
	// RecordRun records a finished run.
	RecordRun(ctx context.Context, capability string, latency time.Duration, err error)
}

type otelRecorder struct {
	chunkProcessed metric.Int64Counter
	chunkErrors    metric.Int64Counter
	chunkLatency   metric.Float64Histogram
	chunkResumed   metric.Int64Counter
	checkpointSize metric.Int64Histogram
	runs           metric.Int64Counter
	runLatency     metric.Float64Histogram
}

// NewRecorder creates a Recorder backed by provider.
func NewRecorder(provider metric.MeterProvider) (Recorder, error) {
	meter := provider.Meter(InstrumentationName)

	chunkProcessed, err := meter.Int64Counter("narrator.chunks.processed",
		metric.WithDescription("Number of chunks transformed"),
		metric.WithUnit("{chunk}"))
	if err != nil {
		return nil, fmt.Errorf("create chunk counter: %w", err)
	}

	chunkErrors, err := meter.Int64Counter("narrator.chunks.errors",
		metric.WithDescription("Number of failed chunk transformations"),
		metric.WithUnit("{chunk}"))
	if err != nil {
		return nil, fmt.Errorf("create chunk error counter: %w", err)
	}

	chunkLatency, err := meter.Float64Histogram("narrator.chunk.latency_ms",
		metric.WithDescription("Chunk transformation latency in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("create chunk latency histogram: %w", err)
	}

	chunkResumed, err := meter.Int64Counter("narrator.chunks.resumed",
		metric.WithDescription("Number of chunks skipped because a checkpoint held them"),
		metric.WithUnit("{chunk}"))
	if err != nil {
		return nil, fmt.Errorf("create resume counter: %w", err)
	}

	checkpointSize, err := meter.Int64Histogram("narrator.checkpoint.size_bytes",
		metric.WithDescription("Size of saved checkpoints"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, fmt.Errorf("create checkpoint size histogram: %w", err)
	}

	runs, err := meter.Int64Counter("narrator.runs",
		metric.WithDescription("Number of finished runs"),
		metric.WithUnit("{run}"))
	if err != nil {
		return nil, fmt.Errorf("create run counter: %w", err)
	}

	runLatency, err := meter.Float64Histogram("narrator.run.latency_ms",
		metric.WithDescription("Run latency in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("create run latency histogram: %w", err)
	}

	return &otelRecorder{
		chunkProcessed: chunkProcessed,
		chunkErrors:    chunkErrors,
		chunkLatency:   chunkLatency,
		chunkResumed:   chunkResumed,
		checkpointSize: checkpointSize,
		runs:           runs,
		runLatency:     runLatency,
	}, nil
}

func (r *otelRecorder) RecordChunk(ctx context.Context, capability string, latency time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("capability", capability),
		attribute.Bool("success", err == nil),
	)

	r.chunkLatency.Record(ctx, milliseconds(latency), attrs)

	if err != nil {
		r.chunkErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("capability", capability)))

		return
	}

	r.chunkProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("capability", capability)))
}

func (r *otelRecorder) RecordResume(ctx context.Context, capability string, skipped int) {
	if skipped <= 0 {
		return
	}

	r.chunkResumed.Add(ctx, int64(skipped), metric.WithAttributes(attribute.String("capability", capability)))
}

func (r *otelRecorder) RecordCheckpoint(ctx context.Context, capability string, sizeBytes int64) {
	r.checkpointSize.Record(ctx, sizeBytes, metric.WithAttributes(attribute.String("capability", capability)))
}

func (r *otelRecorder) RecordRun(ctx context.Context, capability string, latency time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("capability", capability),
		attribute.Bool("success", err == nil),
	)

	r.runs.Add(ctx, 1, attrs)
	r.runLatency.Record(ctx, milliseconds(latency), attrs)
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

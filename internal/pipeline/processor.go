// Package pipeline drives a Transformer over a chunk plan, checkpointing after
// every chunk, and assembles the stored segments into the final artifact.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/narrator/internal/checkpoint"
	"github.com/book-expert/narrator/internal/chunking"
	"github.com/book-expert/narrator/internal/core"
	"github.com/book-expert/narrator/internal/observability"
)

// ErrUnexpectedResult is returned when a transformer answers for another chunk
// or with another capability than it was asked for.
var ErrUnexpectedResult = errors.New("unexpected transformation result")

// Processor runs the chunks of a plan through a Transformer. It owns the
// checkpoint for the duration of a run.
type Processor struct {
	store    checkpoint.Store
	sink     SegmentSink
	log      *logger.Logger
	recorder observability.Recorder
	tracer   *observability.Tracer
}

// Option configures a Processor or a Runner.
type Option func(*options)

type options struct {
	recorder observability.Recorder
	tracer   *observability.Tracer
}

// WithRecorder records chunk and run metrics through recorder.
func WithRecorder(recorder observability.Recorder) Option {
	return func(o *options) {
		o.recorder = recorder
	}
}

// WithTracer traces runs and chunks through tracer.
func WithTracer(tracer *observability.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

func buildOptions(opts []Option) options {
	built := options{recorder: observability.NoopRecorder{}, tracer: observability.NewTracer(nil)}

	for _, opt := range opts {
		opt(&built)
	}

	return built
}

// NewProcessor creates a Processor that persists progress in store and
// chunk payloads in sink.
func NewProcessor(store checkpoint.Store, sink SegmentSink, log *logger.Logger, opts ...Option) *Processor {
	built := buildOptions(opts)

	return &Processor{
		store:    store,
		sink:     sink,
		log:      log,
		recorder: built.recorder,
		tracer:   built.tracer,
	}
}

// Progress is the outcome of a successful Processor run.
type Progress struct {
	Checkpoint *checkpoint.Checkpoint
	// Resumed is the number of chunks taken from an earlier run.
	Resumed int
	// Processed is the number of chunks transformed by this run.
	Processed int
}

// Run transforms every chunk of plan not yet recorded in the checkpoint.
// Chunks below the checkpoint's completed count are never sent to the
// transformer again. On failure the checkpoint on disk still describes every
// chunk that succeeded.
func (p *Processor) Run(ctx context.Context, plan chunking.Plan, transformer core.Transformer) (*Progress, error) {
	capability := transformer.Capability()

	err := checkPlan(plan, transformer.MaxChunkSize())
	if err != nil {
		return nil, err
	}

	cp, err := p.load(capability, core.FingerprintOf(transformer), plan)
	if err != nil {
		return nil, err
	}

	resumed := cp.Completed()
	if resumed > 0 {
		p.log.Info("Resuming run %s at chunk %d/%d", cp.RunID, resumed+1, plan.Len())
		p.recorder.RecordResume(ctx, string(capability), resumed)
	}

	ctx, span := p.tracer.StartRun(ctx, string(capability), cp.RunID, plan.Len())

	for _, chunk := range plan.Chunks[resumed:] {
		err = p.processChunk(ctx, cp, chunk, plan.Len(), transformer)
		if err != nil {
			observability.EndSpan(span, err)

			return nil, err
		}
	}

	observability.EndSpan(span, nil)

	return &Progress{Checkpoint: cp, Resumed: resumed, Processed: plan.Len() - resumed}, nil
}

func checkPlan(plan chunking.Plan, limit int) error {
	if plan.MaxChunkSize > limit {
		return fmt.Errorf("%w: chunk size %d exceeds the transformer limit of %d",
			core.ErrInvalidArgument, plan.MaxChunkSize, limit)
	}

	for _, chunk := range plan.Chunks {
		if chunk.Len() > limit {
			return fmt.Errorf("%w: chunk %d has %d characters, limit is %d",
				core.ErrInvalidArgument, chunk.Index, chunk.Len(), limit)
		}
	}

	return nil
}

func (p *Processor) load(capability core.Capability, settings string, plan chunking.Plan) (*checkpoint.Checkpoint, error) {
	cp, err := p.store.Load()
	if errors.Is(err, checkpoint.ErrNotFound) {
		return checkpoint.New(capability, settings, plan), nil
	}

	if err != nil {
		return nil, err
	}

	err = cp.Matches(capability, settings, plan)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.store.Path(), err)
	}

	for _, segment := range cp.Segments {
		if !p.sink.Intact(segment) {
			p.log.Warn("Segment of chunk %d is missing; resuming at chunk %d", segment.Index, segment.Index+1)
			cp.Truncate(segment.Index)

			break
		}
	}

	return cp, nil
}

func (p *Processor) processChunk(
	ctx context.Context,
	cp *checkpoint.Checkpoint,
	chunk chunking.Chunk,
	total int,
	transformer core.Transformer,
) error {
	capability := transformer.Capability()

	err := ctx.Err()
	if err != nil {
		return core.NewTransformationError(chunk.Index, err)
	}

	p.log.Info("Processing chunk %d/%d (%d characters)", chunk.Index+1, total, chunk.Len())

	chunkCtx, span := p.tracer.StartChunk(ctx, chunk.Index, chunk.Len())
	started := time.Now()

	result, err := transformer.Transform(chunkCtx, chunk.Index, chunk.Text)
	if err == nil {
		err = checkResult(result, chunk.Index, capability)
	}

	p.recorder.RecordChunk(ctx, string(capability), time.Since(started), err)

	if err != nil {
		observability.EndSpan(span, err)
		p.log.Error("Chunk %d/%d failed: %v", chunk.Index+1, total, err)

		return err
	}

	err = p.commit(ctx, cp, result)
	observability.EndSpan(span, err)

	return err
}

func checkResult(result core.Result, index int, capability core.Capability) error {
	if result.Index != index || result.Capability != capability {
		return core.NewTransformationError(index, fmt.Errorf("%w: got chunk %d (%s)",
			ErrUnexpectedResult, result.Index, result.Capability))
	}

	err := result.Validate()
	if err != nil {
		return core.NewTransformationError(index, err)
	}

	return nil
}

// commit stores the payload, appends its segment and persists the checkpoint.
func (p *Processor) commit(ctx context.Context, cp *checkpoint.Checkpoint, result core.Result) error {
	segment, err := p.sink.Store(result)
	if err != nil {
		return err
	}

	err = cp.Append(segment)
	if err != nil {
		return err
	}

	size, err := p.store.Save(cp)
	if err != nil {
		return err
	}

	p.recorder.RecordCheckpoint(ctx, string(cp.Capability), size)

	return nil
}

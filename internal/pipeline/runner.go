package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/book-expert/logger"
	"github.com/book-expert/narrator/internal/audio"
	"github.com/book-expert/narrator/internal/checkpoint"
	"github.com/book-expert/narrator/internal/chunking"
	"github.com/book-expert/narrator/internal/core"
	"github.com/book-expert/narrator/internal/fsutil"
	"github.com/book-expert/narrator/internal/observability"
)

// Job describes one cleanup or narration run over an input file.
type Job struct {
	InputPath string
	// OutputPath defaults to the path derived from InputPath and the capability.
	OutputPath string
	// MaxChunkSize defaults to the transformer's limit.
	MaxChunkSize int
	// Fresh discards an existing checkpoint and its segments before the run.
	Fresh bool
}

// Report summarizes a finished run.
type Report struct {
	OutputPath string
	Chunks     int
	Resumed    int
	Processed  int
	Bytes      int64
	Duration   time.Duration
}

// audioFormatter is implemented by speech transformers.
type audioFormatter interface {
	Format() string
}

// Runner wires input validation, chunking, locking, processing and promotion
// into a single call.
type Runner struct {
	log      *logger.Logger
	opts     []Option
	recorder observability.Recorder
}

// NewRunner creates a Runner. The options are passed on to every Processor it creates.
func NewRunner(log *logger.Logger, opts ...Option) *Runner {
	return &Runner{log: log, opts: opts, recorder: buildOptions(opts).recorder}
}

type layout struct {
	outputPath string
	sink       SegmentSink
	assembler  Assembler
}

// Run executes job with transformer. A failed run leaves its checkpoint in
// place; running the same job again resumes it.
func (r *Runner) Run(ctx context.Context, job Job, transformer core.Transformer) (Report, error) {
	started := time.Now()

	report, err := r.run(ctx, job, transformer)
	report.Duration = time.Since(started)

	r.recorder.RecordRun(ctx, string(transformer.Capability()), report.Duration, err)

	return report, err
}

func (r *Runner) run(ctx context.Context, job Job, transformer core.Transformer) (Report, error) {
	document, err := readInput(job.InputPath)
	if err != nil {
		return Report{}, err
	}

	if !fsutil.IsValidTextFile(job.InputPath) {
		r.log.Warn("Input %s does not have a text extension; reading it as UTF-8 text", job.InputPath)
	}

	files, err := layoutFor(job, transformer)
	if err != nil {
		return Report{}, err
	}

	size := job.MaxChunkSize
	if size == 0 {
		size = transformer.MaxChunkSize()
	}

	if pre, ok := transformer.(core.Preprocessor); ok {
		document = pre.Preprocess(document)
		if strings.TrimSpace(document) == "" {
			return Report{}, fmt.Errorf("%w: input %s has no text left after preprocessing",
				core.ErrInvalidArgument, job.InputPath)
		}
	}

	plan, err := chunking.Split(document, size)
	if err != nil {
		return Report{}, err
	}

	store, err := checkpoint.NewFileStore(fsutil.PartialPath(files.outputPath))
	if err != nil {
		return Report{}, err
	}

	lock, err := checkpoint.AcquireLock(store.Path())
	if err != nil {
		return Report{}, err
	}

	defer func() {
		releaseErr := lock.Release()
		if releaseErr != nil {
			r.log.Warn("Failed to release lock %s: %v", lock.Path(), releaseErr)
		}
	}()

	if job.Fresh {
		err = discard(store, files.sink)
		if err != nil {
			return Report{}, err
		}

		r.log.Info("Discarded checkpoint %s", store.Path())
	}

	r.log.Info("Split %s into %d chunks of at most %d characters", job.InputPath, plan.Len(), size)

	progress, err := NewProcessor(store, files.sink, r.log, r.opts...).Run(ctx, plan, transformer)
	if err != nil {
		r.log.Error("Run stopped, checkpoint kept at %s: %v", store.Path(), err)

		return Report{Chunks: plan.Len(), OutputPath: files.outputPath}, err
	}

	written, err := Finalize(files.outputPath, progress.Checkpoint, files.assembler, store, files.sink)
	if err != nil {
		return Report{Chunks: plan.Len(), OutputPath: files.outputPath}, err
	}

	r.log.Info("Wrote %s (%s)", files.outputPath, fsutil.FormatFileSize(written))

	return Report{
		OutputPath: files.outputPath,
		Chunks:     plan.Len(),
		Resumed:    progress.Resumed,
		Processed:  progress.Processed,
		Bytes:      written,
	}, nil
}

func readInput(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty input path", core.ErrInvalidArgument)
	}

	_, err := fsutil.RequireRegularFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: input %s: %w", core.ErrInvalidArgument, path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read input %s: %w", path, err)
	}

	if len(data) == 0 {
		return "", fmt.Errorf("%w: input %s is empty", core.ErrInvalidArgument, path)
	}

	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: input %s is not valid UTF-8", core.ErrInvalidArgument, path)
	}

	return string(data), nil
}

func layoutFor(job Job, transformer core.Transformer) (layout, error) {
	switch transformer.Capability() {
	case core.CapabilityTextCleanup:
		output := job.OutputPath
		if output == "" {
			output = fsutil.CleanedPath(job.InputPath)
		}

		return layout{outputPath: output, sink: TextSink{}, assembler: TextAssembler{}}, nil

	case core.CapabilitySpeechSynthesis:
		formatter, ok := transformer.(audioFormatter)
		if !ok {
			return layout{}, fmt.Errorf("%w: speech transformer does not report its audio format",
				core.ErrInvalidArgument)
		}

		format, err := audio.ParseFormat(formatter.Format())
		if err != nil {
			return layout{}, fmt.Errorf("%w: %w", core.ErrInvalidArgument, err)
		}

		output := job.OutputPath
		if output == "" {
			output = fsutil.AudiobookPath(job.InputPath, format.Extension())
		}

		dir := fsutil.SegmentDir(output)

		return layout{
			outputPath: output,
			sink:       NewFileSink(dir, format.Extension()),
			assembler:  AudioAssembler{Dir: dir, Format: format},
		}, nil

	default:
		return layout{}, fmt.Errorf("%w: unknown capability %q", core.ErrInvalidArgument, transformer.Capability())
	}
}

func discard(store checkpoint.Store, sink SegmentSink) error {
	err := store.Delete()
	if err != nil {
		return err
	}

	return sink.Cleanup()
}

// Package worker provides a NATS worker that turns book texts into audiobooks.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/narrator/internal/core"
	"github.com/book-expert/narrator/internal/fsutil"
	"github.com/book-expert/narrator/internal/pipeline"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultJobTimeout bounds one audiobook job.
const DefaultJobTimeout = 30 * time.Minute

const inputFileName = "book.txt"

var (
	// ErrInvalidWorkflowID indicates an event whose workflow id cannot name a work directory.
	ErrInvalidWorkflowID = errors.New("invalid workflow id")
	// ErrTextKeyEmpty indicates an event without a text object key.
	ErrTextKeyEmpty = errors.New("text key cannot be empty")
)

// JobRunner runs one pipeline job.
type JobRunner interface {
	Run(ctx context.Context, job pipeline.Job, transformer core.Transformer) (pipeline.Report, error)
}

// TransformerFactory builds the speech transformer for a job. An empty voice
// selects the configured default.
type TransformerFactory func(voice string) (core.Transformer, error)

// Options holds the collaborators of a NatsWorker.
type Options struct {
	Subject        string
	Texts          core.ObjectStore
	Audio          core.ObjectStore
	Runner         JobRunner
	NewTransformer TransformerFactory
	// WorkDir holds one directory per workflow; a redelivered job resumes there.
	WorkDir string
	// JobTimeout defaults to DefaultJobTimeout.
	JobTimeout time.Duration
}

// NatsWorker listens for text-processed events on a NATS subject and narrates them.
type NatsWorker struct {
	natsConnection *nats.Conn
	opts           Options
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(natsConnection *nats.Conn, opts Options, log *logger.Logger) (*NatsWorker, error) {
	if opts.Subject == "" || opts.Texts == nil || opts.Audio == nil || opts.Runner == nil ||
		opts.NewTransformer == nil || opts.WorkDir == "" {
		return nil, fmt.Errorf("%w: worker needs a subject, stores, runner, transformer factory and work dir",
			core.ErrInvalidArgument)
	}

	if opts.JobTimeout <= 0 {
		opts.JobTimeout = DefaultJobTimeout
	}

	return &NatsWorker{natsConnection: natsConnection, opts: opts, log: log}, nil
}

// Run starts the worker and begins listening for messages. Messages are
// handled one at a time.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.opts.Subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.opts.Subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.JobTimeout)
	defer cancel()

	event, err := w.parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)

		return
	}

	audioKey, processErr := w.processAudiobookJob(ctx, event)
	if processErr != nil {
		w.log.Error("Failed to narrate workflow %s, work dir kept for resume: %v",
			event.Header.WorkflowID, processErr)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	err = w.publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

// processAudiobookJob downloads the text into the workflow's work directory,
// runs the pipeline there, uploads the audiobook and removes the directory.
func (w *NatsWorker) processAudiobookJob(ctx context.Context, event *events.TextProcessedEvent) (string, error) {
	dir := filepath.Join(w.opts.WorkDir, fsutil.SanitizeFilename(event.Header.WorkflowID))

	err := fsutil.EnsureDir(dir)
	if err != nil {
		return "", err
	}

	textData, err := w.opts.Texts.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
	}

	input := filepath.Join(dir, inputFileName)

	err = fsutil.WriteFileAtomic(input, textData)
	if err != nil {
		return "", fmt.Errorf("failed to stage text for workflow %s: %w", event.Header.WorkflowID, err)
	}

	transformer, err := w.opts.NewTransformer(event.Voice)
	if err != nil {
		return "", fmt.Errorf("failed to configure speech synthesis: %w", err)
	}

	report, err := w.opts.Runner.Run(ctx, pipeline.Job{InputPath: input}, transformer)
	if err != nil {
		return "", fmt.Errorf("failed to narrate text: %w", err)
	}

	w.log.Info("Workflow %s narrated: %d chunks (%d resumed) in %s",
		event.Header.WorkflowID, report.Chunks, report.Resumed, report.Duration)

	audioKey := uuid.NewString() + filepath.Ext(report.OutputPath)

	err = w.opts.Audio.UploadFile(ctx, audioKey, report.OutputPath)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	removeErr := os.RemoveAll(dir)
	if removeErr != nil {
		w.log.Warn("Failed to remove work dir '%s': %v", dir, removeErr)
	}

	return audioKey, nil
}

// publishReplyEvent marshals and responds with the AudioChunkCreatedEvent.
func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func (w *NatsWorker) parseAndValidateEvent(msg *nats.Msg) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	name := fsutil.SanitizeFilename(event.Header.WorkflowID)
	if name == "" || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: %q", ErrInvalidWorkflowID, event.Header.WorkflowID)
	}

	if event.TextKey == "" {
		return nil, ErrTextKeyEmpty
	}

	return &event, nil
}

package observability

import (
	"context"
	"time"
)

// NoopRecorder discards every measurement.
type NoopRecorder struct{}

// Compile-time interface check.
var _ Recorder = NoopRecorder{}

func (NoopRecorder) RecordChunk(context.Context, string, time.Duration, error) {}

func (NoopRecorder) RecordResume(context.Context, string, int) {}

func (NoopRecorder) RecordCheckpoint(context.Context, string, int64) {}

func (NoopRecorder) RecordRun(context.Context, string, time.Duration, error) {}

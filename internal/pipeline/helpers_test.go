package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/narrator/internal/checkpoint"
	"github.com/book-expert/narrator/internal/core"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

const noFailure = -1

var errRateLimited = errors.New("429 rate limited")

// fakeTransformer records every call and fails at one chunk index on request.
type fakeTransformer struct {
	capability core.Capability
	limit      int
	format     string
	failAt     int
	settings   string
	respond    func(index int, text string) core.Result
	preprocess func(document string) string

	mu    sync.Mutex
	calls []int
}

func newCleanupFake(limit int) *fakeTransformer {
	return &fakeTransformer{
		capability: core.CapabilityTextCleanup,
		limit:      limit,
		failAt:     noFailure,
		respond: func(index int, text string) core.Result {
			return core.TextResult(index, strings.ToUpper(text))
		},
	}
}

func newSpeechFake(limit int, format string, respond func(index int, text string) core.Result) *fakeTransformer {
	return &fakeTransformer{
		capability: core.CapabilitySpeechSynthesis,
		limit:      limit,
		format:     format,
		failAt:     noFailure,
		respond:    respond,
	}
}

func (f *fakeTransformer) Capability() core.Capability { return f.capability }

func (f *fakeTransformer) MaxChunkSize() int { return f.limit }

func (f *fakeTransformer) Format() string { return f.format }

func (f *fakeTransformer) Fingerprint() string { return f.settings }

func (f *fakeTransformer) Preprocess(document string) string {
	if f.preprocess == nil {
		return document
	}

	return f.preprocess(document)
}

func (f *fakeTransformer) Transform(_ context.Context, index int, text string) (core.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, index)
	f.mu.Unlock()

	if index == f.failAt {
		return core.Result{}, core.NewTransformationError(index, errRateLimited)
	}

	return f.respond(index, text), nil
}

func (f *fakeTransformer) called() []int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]int(nil), f.calls...)
}

// failingStore wraps a FileStore and fails every Save.
type failingStore struct {
	*checkpoint.FileStore
}

func (s failingStore) Save(*checkpoint.Checkpoint) (int64, error) {
	return 0, core.NewPersistenceError("write", s.Path(), errors.New("disk full"))
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func indices(from, to int) []int {
	out := make([]int, 0, to-from)
	for index := from; index < to; index++ {
		out = append(out, index)
	}

	return out
}

// wavBytes encodes samples as a 16-bit mono PCM wav file.
func wavBytes(t *testing.T, samples []int) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "segment.wav")
	file, err := os.Create(path)
	require.NoError(t, err)

	encoder := wav.NewEncoder(file, 8000, 16, 1, 1)
	require.NoError(t, encoder.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 8000},
		Data:           samples,
		SourceBitDepth: 16,
	}))
	require.NoError(t, encoder.Close())
	require.NoError(t, file.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return data
}

func readWAVSamples(t *testing.T, path string) []int {
	t.Helper()

	file, err := os.Open(path)
	require.NoError(t, err)

	defer file.Close()

	decoder := wav.NewDecoder(file)
	require.True(t, decoder.IsValidFile())

	buffer, err := decoder.FullPCMBuffer()
	require.NoError(t, err)

	return buffer.Data
}

package transform_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/book-expert/narrator/internal/core"
	"github.com/book-expert/narrator/internal/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCleaner(t *testing.T, service *fakeService, maxChunkSize int) *transform.TextCleaner {
	t.Helper()

	cleaner, err := transform.NewTextCleaner(transform.CleanerConfig{
		APIKey:       testAPIKey,
		BaseURL:      service.baseURL(),
		MaxChunkSize: maxChunkSize,
	})
	require.NoError(t, err)

	return cleaner
}

func TestNewTextCleaner_MissingAPIKey(t *testing.T) {
	t.Parallel()

	_, err := transform.NewTextCleaner(transform.CleanerConfig{APIKey: "  "})
	require.ErrorIs(t, err, transform.ErrMissingAPIKey)
	require.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestTextCleaner_Defaults(t *testing.T) {
	t.Parallel()

	cleaner, err := transform.NewTextCleaner(transform.CleanerConfig{APIKey: testAPIKey})
	require.NoError(t, err)
	assert.Equal(t, core.CapabilityTextCleanup, cleaner.Capability())
	assert.Equal(t, transform.DefaultCleanupChunkSize, cleaner.MaxChunkSize())
}

func TestTextCleaner_Transform_Success(t *testing.T) {
	t.Parallel()

	service := newFakeService(t, chatReply("  Cleaned text.  "))
	cleaner := newTestCleaner(t, service, 100)

	result, err := cleaner.Transform(context.Background(), 2, "\nRaw   tex t . 12 \n")
	require.NoError(t, err)

	assert.Equal(t, 2, result.Index)
	assert.Equal(t, core.CapabilityTextCleanup, result.Capability)
	assert.Equal(t, "\nCleaned text. \n", result.Text, "source boundary whitespace is kept")

	assert.Equal(t, "/v1/chat/completions", service.lastPath())

	body := service.lastBody(t)
	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.InDelta(t, 0.3, body["temperature"], 0.0001)

	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)

	system, ok := messages[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "system", system["role"])
	assert.Contains(t, system["content"], "audiobooks")

	user, ok := messages[1].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "user", user["role"])

	content, ok := user["content"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(content, "Raw   tex t . 12"))
	assert.Contains(t, content, "page numbers")
}

func TestTextCleaner_ZeroTemperatureIsSent(t *testing.T) {
	t.Parallel()

	service := newFakeService(t, chatReply("Cleaned."))

	var zero float32

	cleaner, err := transform.NewTextCleaner(transform.CleanerConfig{
		APIKey:      testAPIKey,
		BaseURL:     service.baseURL(),
		Temperature: &zero,
	})
	require.NoError(t, err)

	_, err = cleaner.Transform(context.Background(), 0, "raw text")
	require.NoError(t, err)

	body := service.lastBody(t)
	require.Contains(t, body, "temperature")
	assert.InDelta(t, 0, body["temperature"], 0.0001)

	defaults, err := transform.NewTextCleaner(transform.CleanerConfig{APIKey: testAPIKey})
	require.NoError(t, err)
	assert.Equal(t, "model=gpt-4o-mini temperature=0.30", defaults.Fingerprint())
	assert.NotEqual(t, defaults.Fingerprint(), cleaner.Fingerprint())
}

func TestTextCleaner_Transform_WhitespaceChunkSkipsService(t *testing.T) {
	t.Parallel()

	service := newFakeService(t, chatReply("unused"))
	cleaner := newTestCleaner(t, service, 100)

	result, err := cleaner.Transform(context.Background(), 0, "\n\n  ")
	require.NoError(t, err)
	assert.Equal(t, "\n\n  ", result.Text)
	assert.Zero(t, service.calls())
}

func TestTextCleaner_Transform_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		respond func(http.ResponseWriter, *http.Request)
	}{
		{name: "rate limited", respond: apiError(http.StatusTooManyRequests, "rate limited")},
		{name: "server error", respond: apiError(http.StatusInternalServerError, "boom")},
		{name: "empty content", respond: chatReply("   ")},
		{
			name: "no choices",
			respond: func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{"id": "x", "choices": []any{}})
			},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			service := newFakeService(t, testCase.respond)
			cleaner := newTestCleaner(t, service, 100)

			_, err := cleaner.Transform(context.Background(), 4, "some text")
			require.ErrorIs(t, err, core.ErrTransformationFailed)

			var transformErr *core.TransformationError

			require.ErrorAs(t, err, &transformErr)
			assert.Equal(t, 4, transformErr.ChunkIndex)
		})
	}
}

func TestTextCleaner_Transform_ChunkTooLarge(t *testing.T) {
	t.Parallel()

	service := newFakeService(t, chatReply("unused"))
	cleaner := newTestCleaner(t, service, 5)

	_, err := cleaner.Transform(context.Background(), 0, "abcdef")
	require.ErrorIs(t, err, core.ErrInvalidArgument)
	require.ErrorIs(t, err, transform.ErrChunkTooLarge)
	assert.Zero(t, service.calls())
}

func TestTextCleaner_Transform_Cancelled(t *testing.T) {
	t.Parallel()

	service := newFakeService(t, chatReply("never seen"))
	cleaner := newTestCleaner(t, service, 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cleaner.Transform(ctx, 1, "text")
	require.ErrorIs(t, err, core.ErrTransformationFailed)
	require.ErrorIs(t, err, context.Canceled)
}

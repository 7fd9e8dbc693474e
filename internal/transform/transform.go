// Package transform adapts external text-cleanup and speech-synthesis services
// to core.Transformer. Adapters call the service once per chunk and never
// retry; every failure is returned as a *core.TransformationError.
package transform

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/book-expert/narrator/internal/core"
	openai "github.com/sashabaranov/go-openai"
)

// Defaults shared by the adapters.
const (
	DefaultCleanupChunkSize = 2000
	DefaultSpeechChunkSize  = 4000
	DefaultTimeout          = 120 * time.Second
	DefaultSpeed            = 1.0
	MinSpeed                = 0.5
	MaxSpeed                = 2.0
)

// Audio response formats supported by the synthesizers.
const (
	FormatMP3 = "mp3"
	FormatWAV = "wav"
)

var (
	// ErrMissingAPIKey is returned when an OpenAI adapter is built without credentials.
	ErrMissingAPIKey = fmt.Errorf("%w: missing API key", core.ErrInvalidArgument)
	// ErrUnsupportedVoice is returned for a voice the backend does not offer.
	ErrUnsupportedVoice = fmt.Errorf("%w: unsupported voice", core.ErrInvalidArgument)
	// ErrSpeedRange is returned for a speed outside [MinSpeed, MaxSpeed].
	ErrSpeedRange = fmt.Errorf("%w: speed must be between %.1f and %.1f",
		core.ErrInvalidArgument, MinSpeed, MaxSpeed)
	// ErrUnsupportedFormat is returned for an audio format other than mp3 or wav.
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported audio format", core.ErrInvalidArgument)
	// ErrChunkTooLarge is returned when a chunk exceeds the adapter ceiling.
	ErrChunkTooLarge = fmt.Errorf("%w: chunk exceeds the service limit", core.ErrInvalidArgument)
	// ErrEmptyResponse is returned when a service answers without content.
	ErrEmptyResponse = errors.New("service returned no content")
)

// ValidateSpeed checks that speed lies in [MinSpeed, MaxSpeed].
func ValidateSpeed(speed float64) error {
	if speed < MinSpeed || speed > MaxSpeed {
		return fmt.Errorf("%w: got %.2f", ErrSpeedRange, speed)
	}

	return nil
}

// ValidateFormat checks that format is mp3 or wav.
func ValidateFormat(format string) error {
	switch format {
	case FormatMP3, FormatWAV:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// checkChunk rejects a chunk that is longer than limit characters.
func checkChunk(index int, text string, limit int) error {
	length := utf8.RuneCountInString(text)
	if length > limit {
		return fmt.Errorf("%w: chunk %d has %d characters, limit %d", ErrChunkTooLarge, index, length, limit)
	}

	return nil
}

// newOpenAIClient builds a go-openai client with an explicit base URL and timeout.
func newOpenAIClient(apiKey, baseURL string, timeout time.Duration) (*openai.Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(baseURL, "/")
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	clientConfig.HTTPClient = &http.Client{Timeout: timeout}

	return openai.NewClientWithConfig(clientConfig), nil
}

// orDefault returns value, or fallback when value is not positive.
func orDefault(value, fallback int) int {
	if value <= 0 {
		return fallback
	}

	return value
}

package transform

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/book-expert/narrator/internal/core"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultCleanupModel is the chat model used for OCR cleanup.
	DefaultCleanupModel = openai.GPT4oMini
	// DefaultCleanupTemperature keeps the rewrite close to the source text.
	DefaultCleanupTemperature = 0.3

	cleanupSystemPrompt = "You are a helpful assistant that cleans up OCR text into scripts for audiobooks."
	cleanupUserPrompt   = `Clean up the following OCR text so it can be narrated as an audiobook.
Remove OCR artifacts and fix broken words, spacing and formatting.
Remove running page numbers, page headers and repeated chapter identifiers.
Preserve the meaning, wording and paragraph structure of the original.
Do not summarise, comment on, or add any content.
Output only the cleaned text.

Text:
`
)

// CleanerConfig configures a TextCleaner. A nil Temperature means
// DefaultCleanupTemperature; zero is kept.
type CleanerConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	Temperature  *float32
	MaxChunkSize int
	Timeout      time.Duration
}

// TextCleaner rewrites OCR text through an OpenAI chat model.
type TextCleaner struct {
	client       *openai.Client
	model        string
	temperature  float32
	maxChunkSize int
}

// NewTextCleaner creates a TextCleaner. It fails when the API key is empty.
func NewTextCleaner(cfg CleanerConfig) (*TextCleaner, error) {
	client, err := newOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = DefaultCleanupModel
	}

	temperature := float32(DefaultCleanupTemperature)
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}

	return &TextCleaner{
		client:       client,
		model:        model,
		temperature:  temperature,
		maxChunkSize: orDefault(cfg.MaxChunkSize, DefaultCleanupChunkSize),
	}, nil
}

// Capability reports text cleanup.
func (c *TextCleaner) Capability() core.Capability {
	return core.CapabilityTextCleanup
}

// MaxChunkSize returns the largest chunk the cleaner accepts.
func (c *TextCleaner) MaxChunkSize() int {
	return c.maxChunkSize
}

// Fingerprint identifies the settings that shape the cleaned text.
func (c *TextCleaner) Fingerprint() string {
	return fmt.Sprintf("model=%s temperature=%.2f", c.model, c.temperature)
}

// Transform cleans one chunk. Whitespace-only chunks are returned as they are
// without a service call.
func (c *TextCleaner) Transform(ctx context.Context, index int, text string) (core.Result, error) {
	err := checkChunk(index, text, c.maxChunkSize)
	if err != nil {
		return core.Result{}, err
	}

	body := strings.TrimSpace(text)
	if body == "" {
		return core.TextResult(index, text), nil
	}

	response, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: requestTemperature(c.temperature),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: cleanupSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: cleanupUserPrompt + body},
		},
	})
	if err != nil {
		return core.Result{}, core.NewTransformationError(index, err)
	}

	if len(response.Choices) == 0 {
		return core.Result{}, core.NewTransformationError(index, ErrEmptyResponse)
	}

	cleaned := strings.TrimSpace(response.Choices[0].Message.Content)
	if cleaned == "" {
		return core.Result{}, core.NewTransformationError(index, ErrEmptyResponse)
	}

	result := core.TextResult(index, leadingSpace(text)+cleaned+trailingSpace(text))

	err = result.Validate()
	if err != nil {
		return core.Result{}, core.NewTransformationError(index, err)
	}

	return result, nil
}

// requestTemperature keeps a zero temperature on the wire. The client omits a
// zero value, which the API would read as its own default.
func requestTemperature(temperature float32) float32 {
	if temperature == 0 {
		return math.SmallestNonzeroFloat32
	}

	return temperature
}

// leadingSpace returns the whitespace prefix of s.
func leadingSpace(s string) string {
	return s[:len(s)-len(strings.TrimLeftFunc(s, unicode.IsSpace))]
}

func trailingSpace(s string) string {
	return s[len(strings.TrimRightFunc(s, unicode.IsSpace)):]
}

package transform

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/book-expert/narrator/internal/core"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultSpeechModel is the OpenAI speech model.
const DefaultSpeechModel = string(openai.TTSModel1)

// Normalizer rewrites text before it is spoken.
type Normalizer interface {
	Normalize(text string) string
}

// SpeechConfig configures a SpeechSynthesizer.
type SpeechConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	Voice        string
	Speed        float64
	Format       string
	MaxChunkSize int
	Timeout      time.Duration
	// Normalizer is optional. It rewrites the whole document in Preprocess.
	Normalizer Normalizer
}

// SpeechSynthesizer turns text into audio through the OpenAI speech endpoint.
type SpeechSynthesizer struct {
	client       *openai.Client
	model        string
	voice        string
	speed        float64
	format       string
	maxChunkSize int
	normalizer   Normalizer
}

// NewSpeechSynthesizer validates cfg and creates a SpeechSynthesizer.
func NewSpeechSynthesizer(cfg SpeechConfig) (*SpeechSynthesizer, error) {
	settings, err := resolveVoiceSettings(BackendOpenAI, cfg.Voice, cfg.Speed, cfg.Format)
	if err != nil {
		return nil, err
	}

	client, err := newOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = DefaultSpeechModel
	}

	return &SpeechSynthesizer{
		client:       client,
		model:        model,
		voice:        settings.voice,
		speed:        settings.speed,
		format:       settings.format,
		maxChunkSize: orDefault(cfg.MaxChunkSize, DefaultSpeechChunkSize),
		normalizer:   cfg.Normalizer,
	}, nil
}

// Capability reports speech synthesis.
func (s *SpeechSynthesizer) Capability() core.Capability {
	return core.CapabilitySpeechSynthesis
}

// MaxChunkSize returns the largest chunk the synthesizer accepts.
func (s *SpeechSynthesizer) MaxChunkSize() int {
	return s.maxChunkSize
}

// Format returns the audio container produced by the synthesizer.
func (s *SpeechSynthesizer) Format() string {
	return s.format
}

// Preprocess applies the optional normalizer to the whole document.
func (s *SpeechSynthesizer) Preprocess(document string) string {
	return normalizeDocument(s.normalizer, document)
}

// Fingerprint identifies the settings that shape the audio.
func (s *SpeechSynthesizer) Fingerprint() string {
	return fmt.Sprintf("backend=%s model=%s voice=%s speed=%.2f format=%s normalize=%t",
		BackendOpenAI, s.model, s.voice, s.speed, s.format, s.normalizer != nil)
}

// Transform synthesizes one chunk.
func (s *SpeechSynthesizer) Transform(ctx context.Context, index int, text string) (core.Result, error) {
	input, err := prepareSpeechInput(index, text, s.maxChunkSize)
	if err != nil {
		return core.Result{}, err
	}

	if input == "" {
		return core.SilentResult(index), nil
	}

	response, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          input,
		Voice:          openai.SpeechVoice(s.voice),
		ResponseFormat: openai.SpeechResponseFormat(s.format),
		Speed:          s.speed,
	})
	if err != nil {
		return core.Result{}, core.NewTransformationError(index, err)
	}
	defer response.Close()

	audioData, err := io.ReadAll(response)
	if err != nil {
		return core.Result{}, core.NewTransformationError(index, fmt.Errorf("failed to read audio data: %w", err))
	}

	result := core.AudioResult(index, audioData)

	err = result.Validate()
	if err != nil {
		return core.Result{}, core.NewTransformationError(index, err)
	}

	return result, nil
}

type voiceSettings struct {
	voice  string
	speed  float64
	format string
}

// resolveVoiceSettings fills defaults and validates voice, speed and format for backend.
func resolveVoiceSettings(backend, voice string, speed float64, format string) (voiceSettings, error) {
	settings := voiceSettings{voice: voice, speed: speed, format: format}

	if settings.voice == "" {
		settings.voice = DefaultVoice(backend)
	}

	if settings.speed == 0 {
		settings.speed = DefaultSpeed
	}

	if settings.format == "" {
		settings.format = FormatMP3
	}

	err := ValidateVoice(backend, settings.voice)
	if err != nil {
		return voiceSettings{}, err
	}

	err = ValidateSpeed(settings.speed)
	if err != nil {
		return voiceSettings{}, err
	}

	err = ValidateFormat(settings.format)
	if err != nil {
		return voiceSettings{}, err
	}

	return settings, nil
}

// prepareSpeechInput checks the chunk size and trims the chunk. An empty
// string means the chunk has nothing to speak.
func prepareSpeechInput(index int, text string, limit int) (string, error) {
	err := checkChunk(index, text, limit)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(text), nil
}

// normalizeDocument normalizes document line by line so the chunker still
// sees paragraph breaks. Lines left empty are dropped.
func normalizeDocument(normalizer Normalizer, document string) string {
	if normalizer == nil {
		return document
	}

	lines := strings.Split(document, "\n")
	kept := make([]string, 0, len(lines))

	for _, line := range lines {
		normalized := normalizer.Normalize(line)
		if normalized != "" {
			kept = append(kept, normalized)
		}
	}

	return strings.Join(kept, "\n")
}

package config

import (
	"github.com/book-expert/narrator/internal/core"
	"github.com/book-expert/narrator/internal/text"
	"github.com/book-expert/narrator/internal/transform"
)

// NewTextCleaner builds the cleanup transformer. It needs the API key.
func (c *Config) NewTextCleaner() (*transform.TextCleaner, error) {
	apiKey, err := c.APIKey()
	if err != nil {
		return nil, err
	}

	temperature := float32(c.CleanupTemperature())

	return transform.NewTextCleaner(transform.CleanerConfig{
		APIKey:       apiKey,
		BaseURL:      c.OpenAI.BaseURL,
		Model:        c.Cleanup.Model,
		Temperature:  &temperature,
		MaxChunkSize: c.Cleanup.MaxChunkSize,
		Timeout:      c.OpenAITimeout(),
	})
}

// NewSpeechTransformer builds the speech transformer of the configured
// backend. A non-empty voice overrides the configured one.
func (c *Config) NewSpeechTransformer(voice string) (core.Transformer, error) {
	if voice == "" {
		voice = c.Speech.Voice
	}

	var normalizer transform.Normalizer
	if c.Speech.NormalizeText {
		normalizer = text.NewNormalizer()
	}

	if c.Speech.Backend == transform.BackendLocal {
		return c.NewLocalSynthesizer(voice, normalizer)
	}

	apiKey, err := c.APIKey()
	if err != nil {
		return nil, err
	}

	return transform.NewSpeechSynthesizer(transform.SpeechConfig{
		APIKey:       apiKey,
		BaseURL:      c.OpenAI.BaseURL,
		Model:        c.Speech.Model,
		Voice:        voice,
		Speed:        c.Speech.Speed,
		Format:       c.Speech.Format,
		MaxChunkSize: c.Speech.MaxChunkSize,
		Timeout:      c.OpenAITimeout(),
		Normalizer:   normalizer,
	})
}

// NewLocalSynthesizer builds a client of the local speech service. An empty
// voice selects the configured one, or the local default when another
// backend is configured.
func (c *Config) NewLocalSynthesizer(voice string, normalizer transform.Normalizer) (*transform.LocalSynthesizer, error) {
	if voice == "" {
		voice = c.Speech.Voice
		if c.Speech.Backend != transform.BackendLocal {
			voice = transform.DefaultLocalVoice
		}
	}

	return transform.NewLocalSynthesizer(transform.LocalConfig{
		ServiceURL:   c.Speech.ServiceURL,
		Voice:        voice,
		Speed:        c.Speech.Speed,
		MaxChunkSize: c.Speech.MaxChunkSize,
		Timeout:      c.SpeechTimeout(),
		Normalizer:   normalizer,
	})
}

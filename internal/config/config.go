// Package config provides the configuration structure for narrator.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/book-expert/narrator/internal/audio"
	"github.com/book-expert/narrator/internal/transform"
	"github.com/pelletier/go-toml/v2"
)

// Default values applied to unset fields.
const (
	DefaultAPIKeyEnv      = "OPENAI_API_KEY"
	DefaultTimeoutSeconds = 120
	DefaultServiceURL     = "http://localhost:8000"
	DefaultLogsDir        = "logs"
	DefaultFeedTitle      = "Audiobooks"
	DefaultFeedLanguage   = "en-us"
	DefaultFeedBaseURL    = "http://localhost:4699"
	DefaultServerPort     = 4699
	DefaultWorkDir        = "narrator-work"
	DefaultMetricsAddr    = ":9090"

	// ProjectFile is the file the configurator discovers by searching up the
	// directory tree.
	ProjectFile = "project.toml"

	defaultCleanupTemperature = 0.3
	maxTemperature            = 2.0
	maxPort                   = 65535
)

var (
	// ErrInvalidConfig indicates a configuration value out of range.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrMissingAPIKey indicates that the API key environment variable is unset.
	ErrMissingAPIKey = transform.ErrMissingAPIKey
)

// OpenAIConfig holds the settings shared by the OpenAI adapters.
type OpenAIConfig struct {
	APIKeyEnv      string `toml:"api_key_env"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// CleanupConfig holds the text cleanup settings. Temperature stays nil until
// set, so an explicit zero survives ApplyDefaults.
type CleanupConfig struct {
	Model        string   `toml:"model"`
	Temperature  *float64 `toml:"temperature"`
	MaxChunkSize int      `toml:"max_chunk_size"`
}

// SpeechConfig holds the speech synthesis settings.
type SpeechConfig struct {
	Backend        string  `toml:"backend"`
	Model          string  `toml:"model"`
	Voice          string  `toml:"voice"`
	Speed          float64 `toml:"speed"`
	Format         string  `toml:"format"`
	MaxChunkSize   int     `toml:"max_chunk_size"`
	NormalizeText  bool    `toml:"normalize_text"`
	ServiceURL     string  `toml:"service_url"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// FeedConfig holds the podcast feed metadata.
type FeedConfig struct {
	Title       string `toml:"title"`
	Description string `toml:"description"`
	Author      string `toml:"author"`
	Language    string `toml:"language"`
	BaseURL     string `toml:"base_url"`
}

// ServerConfig holds the feed server settings.
type ServerConfig struct {
	Port     int    `toml:"port"`
	AudioDir string `toml:"audio_dir"`
	Watch    bool   `toml:"watch"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                      string `toml:"url"`
	TextProcessedSubject     string `toml:"text_processed_subject"`
	AudioChunkCreatedSubject string `toml:"audio_chunk_created_subject"`
	TextObjectStoreBucket    string `toml:"text_object_store_bucket"`
	AudioObjectStoreBucket   string `toml:"audio_object_store_bucket"`
	WorkDir                  string `toml:"work_dir"`
	MetricsAddr              string `toml:"metrics_addr"`
}

// Config is the root configuration structure.
type Config struct {
	OpenAI  OpenAIConfig  `toml:"openai"`
	Cleanup CleanupConfig `toml:"cleanup"`
	Speech  SpeechConfig  `toml:"speech"`
	Paths   PathsConfig   `toml:"paths"`
	Feed    FeedConfig    `toml:"feed"`
	Server  ServerConfig  `toml:"server"`
	NATS    NATSConfig    `toml:"nats"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()

	return cfg
}

// Load discovers the project configuration through the configurator, then
// applies defaults and validates it.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(&cfg)
}

// FindProjectFile searches start and its parents for ProjectFile. It reports
// false when no directory up to the root has one.
func FindProjectFile(start string) (string, bool) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", false
	}

	for {
		candidate := filepath.Join(dir, ProjectFile)

		info, statErr := os.Stat(candidate)
		if statErr == nil && info.Mode().IsRegular() {
			return candidate, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}

		dir = parent
	}
}

// LoadFile reads the TOML file at path. Unknown keys are rejected.
func LoadFile(path string) (*Config, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	var cfg Config

	decoder := toml.NewDecoder(file).DisallowUnknownFields()

	err = decoder.Decode(&cfg)
	if err != nil {
		var strictErr *toml.StrictMissingError
		if errors.As(err, &strictErr) {
			return nil, fmt.Errorf("%w: %s: %s", ErrInvalidConfig, path, strictErr.String())
		}

		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	setString(&c.OpenAI.APIKeyEnv, DefaultAPIKeyEnv)
	setInt(&c.OpenAI.TimeoutSeconds, DefaultTimeoutSeconds)

	setString(&c.Cleanup.Model, transform.DefaultCleanupModel)
	setInt(&c.Cleanup.MaxChunkSize, transform.DefaultCleanupChunkSize)

	if c.Cleanup.Temperature == nil {
		temperature := defaultCleanupTemperature
		c.Cleanup.Temperature = &temperature
	}

	setString(&c.Speech.Backend, transform.BackendOpenAI)
	setString(&c.Speech.Model, transform.DefaultSpeechModel)
	setString(&c.Speech.Voice, transform.DefaultVoice(c.Speech.Backend))
	setString(&c.Speech.Format, transform.FormatMP3)
	setString(&c.Speech.ServiceURL, DefaultServiceURL)
	setInt(&c.Speech.MaxChunkSize, transform.DefaultSpeechChunkSize)
	setInt(&c.Speech.TimeoutSeconds, DefaultTimeoutSeconds)

	if c.Speech.Speed == 0 {
		c.Speech.Speed = transform.DefaultSpeed
	}

	if c.Speech.Backend == transform.BackendLocal {
		c.Speech.Format = transform.FormatWAV
	}

	setString(&c.Paths.BaseLogsDir, DefaultLogsDir)

	setString(&c.Feed.Title, DefaultFeedTitle)
	setString(&c.Feed.Language, DefaultFeedLanguage)
	setString(&c.Feed.BaseURL, DefaultFeedBaseURL)

	setInt(&c.Server.Port, DefaultServerPort)
	setString(&c.Server.AudioDir, ".")

	setString(&c.NATS.URL, "nats://127.0.0.1:4222")
	setString(&c.NATS.TextProcessedSubject, "text.processed")
	setString(&c.NATS.AudioChunkCreatedSubject, "audio.chunk.created")
	setString(&c.NATS.TextObjectStoreBucket, "TEXT_FILES")
	setString(&c.NATS.AudioObjectStoreBucket, "AUDIO_FILES")
	setString(&c.NATS.WorkDir, filepath.Join(os.TempDir(), DefaultWorkDir))
	setString(&c.NATS.MetricsAddr, DefaultMetricsAddr)
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.OpenAI.TimeoutSeconds <= 0 || c.Speech.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}

	if c.Cleanup.MaxChunkSize <= 0 || c.Speech.MaxChunkSize <= 0 {
		return fmt.Errorf("%w: max_chunk_size must be positive", ErrInvalidConfig)
	}

	if temperature := c.CleanupTemperature(); temperature < 0 || temperature > maxTemperature {
		return fmt.Errorf("%w: cleanup temperature %.2f outside [0, %.1f]",
			ErrInvalidConfig, temperature, maxTemperature)
	}

	if c.Speech.Backend != transform.BackendOpenAI && c.Speech.Backend != transform.BackendLocal {
		return fmt.Errorf("%w: unknown speech backend %q", ErrInvalidConfig, c.Speech.Backend)
	}

	checks := []error{
		transform.ValidateVoice(c.Speech.Backend, c.Speech.Voice),
		transform.ValidateSpeed(c.Speech.Speed),
		transform.ValidateFormat(c.Speech.Format),
	}

	for _, err := range checks {
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > maxPort {
		return fmt.Errorf("%w: server port %d", ErrInvalidConfig, c.Server.Port)
	}

	return nil
}

// APIKey reads the OpenAI API key from the configured environment variable.
func (c *Config) APIKey() (string, error) {
	key := os.Getenv(c.OpenAI.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%w: set %s", ErrMissingAPIKey, c.OpenAI.APIKeyEnv)
	}

	return key, nil
}

// CleanupTemperature returns the configured cleanup temperature or its default.
func (c *Config) CleanupTemperature() float64 {
	if c.Cleanup.Temperature == nil {
		return defaultCleanupTemperature
	}

	return *c.Cleanup.Temperature
}

// OpenAITimeout returns the OpenAI HTTP client timeout.
func (c *Config) OpenAITimeout() time.Duration {
	return time.Duration(c.OpenAI.TimeoutSeconds) * time.Second
}

// SpeechTimeout returns the local speech service timeout.
func (c *Config) SpeechTimeout() time.Duration {
	return time.Duration(c.Speech.TimeoutSeconds) * time.Second
}

// AudioFormat returns the configured speech format.
func (c *Config) AudioFormat() (audio.Format, error) {
	return audio.ParseFormat(c.Speech.Format)
}

func setString(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func setInt(field *int, value int) {
	if *field == 0 {
		*field = value
	}
}

// Package config_test tests the configuration loading for narrator.
package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/narrator/internal/audio"
	"github.com/book-expert/narrator/internal/config"
	"github.com/book-expert/narrator/internal/transform"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `
[openai]
api_key_env = "NARRATOR_TEST_KEY"
base_url = "https://llm.example.com/v1"
timeout_seconds = 60

[cleanup]
model = "gpt-4o"
temperature = 0.1
max_chunk_size = 1500

[speech]
backend = "openai"
voice = "nova"
speed = 1.25
format = "wav"
max_chunk_size = 3000
normalize_text = true

[paths]
base_logs_dir = "/var/log/narrator"

[feed]
title = "My Books"
author = "Reader"
base_url = "https://books.example.com"

[server]
port = 9000
audio_dir = "/srv/audio"
watch = true

[nats]
url = "nats://127.0.0.1:4222"
text_processed_subject = "text.processed"
audio_chunk_created_subject = "audio.chunk.created"
text_object_store_bucket = "TEXT_FILES"
audio_object_store_bucket = "AUDIO_FILES"
work_dir = "/var/lib/narrator"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "project.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestUnmarshalConfig(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	err := toml.Unmarshal([]byte(fullConfig), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "NARRATOR_TEST_KEY", cfg.OpenAI.APIKeyEnv)
	assert.Equal(t, "https://llm.example.com/v1", cfg.OpenAI.BaseURL)
	assert.Equal(t, "gpt-4o", cfg.Cleanup.Model)
	require.NotNil(t, cfg.Cleanup.Temperature)
	assert.InEpsilon(t, 0.1, *cfg.Cleanup.Temperature, 0.001)
	assert.Equal(t, 1500, cfg.Cleanup.MaxChunkSize)
	assert.Equal(t, "nova", cfg.Speech.Voice)
	assert.InEpsilon(t, 1.25, cfg.Speech.Speed, 0.001)
	assert.True(t, cfg.Speech.NormalizeText)
	assert.Equal(t, "/var/log/narrator", cfg.Paths.BaseLogsDir)
	assert.Equal(t, "My Books", cfg.Feed.Title)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.True(t, cfg.Server.Watch)
	assert.Equal(t, "TEXT_FILES", cfg.NATS.TextObjectStoreBucket)
	assert.Equal(t, "/var/lib/narrator", cfg.NATS.WorkDir)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFile(writeConfig(t, fullConfig))
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.OpenAITimeout())
	assert.Equal(t, time.Duration(config.DefaultTimeoutSeconds)*time.Second, cfg.SpeechTimeout())
	assert.Equal(t, transform.DefaultSpeechModel, cfg.Speech.Model)
	assert.Equal(t, config.DefaultFeedLanguage, cfg.Feed.Language)

	format, err := cfg.AudioFormat()
	require.NoError(t, err)
	assert.Equal(t, audio.FormatWAV, format)
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, config.DefaultAPIKeyEnv, cfg.OpenAI.APIKeyEnv)
	assert.Equal(t, transform.DefaultCleanupChunkSize, cfg.Cleanup.MaxChunkSize)
	assert.Equal(t, transform.DefaultSpeechChunkSize, cfg.Speech.MaxChunkSize)
	assert.InEpsilon(t, 0.3, cfg.CleanupTemperature(), 0.001)
	assert.Equal(t, transform.BackendOpenAI, cfg.Speech.Backend)
	assert.Equal(t, transform.DefaultOpenAIVoice, cfg.Speech.Voice)
	assert.Equal(t, transform.FormatMP3, cfg.Speech.Format)
	assert.Equal(t, config.DefaultServerPort, cfg.Server.Port)
}

func TestLoadFile_ZeroTemperatureKept(t *testing.T) {
	t.Setenv("NARRATOR_TEMPERATURE_TEST_KEY", "sk-test")

	cfg, err := config.LoadFile(writeConfig(t,
		"[openai]\napi_key_env = \"NARRATOR_TEMPERATURE_TEST_KEY\"\n[cleanup]\ntemperature = 0.0\n"))
	require.NoError(t, err)

	require.NotNil(t, cfg.Cleanup.Temperature)
	assert.Zero(t, cfg.CleanupTemperature())

	cleaner, err := cfg.NewTextCleaner()
	require.NoError(t, err)
	assert.Contains(t, cleaner.Fingerprint(), "temperature=0.00")
}

func TestLoadFile_LocalBackendDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFile(writeConfig(t, "[speech]\nbackend = \"local\"\n"))
	require.NoError(t, err)

	assert.Equal(t, transform.DefaultLocalVoice, cfg.Speech.Voice)
	assert.Equal(t, transform.FormatWAV, cfg.Speech.Format)
	assert.Equal(t, config.DefaultServiceURL, cfg.Speech.ServiceURL)
}

func TestLoadFile_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown key", content: "[speech]\nvoices = \"alloy\"\n"},
		{name: "speed out of range", content: "[speech]\nspeed = 4.0\n"},
		{name: "unknown voice", content: "[speech]\nvoice = \"af_heart\"\n"},
		{name: "unknown format", content: "[speech]\nformat = \"ogg\"\n"},
		{name: "unknown backend", content: "[speech]\nbackend = \"polly\"\n"},
		{name: "negative chunk size", content: "[cleanup]\nmax_chunk_size = -1\n"},
		{name: "bad port", content: "[server]\nport = 70000\n"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadFile(writeConfig(t, testCase.content))
			require.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestAPIKey(t *testing.T) {
	cfg := config.Default()
	cfg.OpenAI.APIKeyEnv = "NARRATOR_CONFIG_TEST_KEY"

	t.Setenv("NARRATOR_CONFIG_TEST_KEY", "")

	_, err := cfg.APIKey()
	require.ErrorIs(t, err, config.ErrMissingAPIKey)

	t.Setenv("NARRATOR_CONFIG_TEST_KEY", "sk-test")

	key, err := cfg.APIKey()
	require.NoError(t, err)
	assert.Equal(t, "sk-test", key)
}

func TestNewTransformers(t *testing.T) {
	cfg := config.Default()
	cfg.OpenAI.APIKeyEnv = "NARRATOR_TRANSFORMER_TEST_KEY"
	t.Setenv("NARRATOR_TRANSFORMER_TEST_KEY", "")

	_, err := cfg.NewTextCleaner()
	require.ErrorIs(t, err, config.ErrMissingAPIKey)

	_, err = cfg.NewSpeechTransformer("")
	require.ErrorIs(t, err, config.ErrMissingAPIKey)

	t.Setenv("NARRATOR_TRANSFORMER_TEST_KEY", "sk-test")

	cleaner, err := cfg.NewTextCleaner()
	require.NoError(t, err)
	assert.Equal(t, transform.DefaultCleanupChunkSize, cleaner.MaxChunkSize())

	speech, err := cfg.NewSpeechTransformer("shimmer")
	require.NoError(t, err)
	assert.Equal(t, transform.DefaultSpeechChunkSize, speech.MaxChunkSize())

	_, err = cfg.NewSpeechTransformer("af_heart")
	require.ErrorIs(t, err, transform.ErrUnsupportedVoice)

	cfg.Speech.Backend = transform.BackendLocal
	cfg.Speech.Voice = transform.DefaultLocalVoice
	t.Setenv("NARRATOR_TRANSFORMER_TEST_KEY", "")

	local, err := cfg.NewSpeechTransformer("bf_emma")
	require.NoError(t, err, "the local backend needs no API key")
	assert.IsType(t, &transform.LocalSynthesizer{}, local)
}

func TestNewLocalSynthesizer_DefaultVoice(t *testing.T) {
	t.Parallel()

	cfg := config.Default()

	synth, err := cfg.NewLocalSynthesizer("", nil)
	require.NoError(t, err, "an openai voice in the config does not leak into the local client")
	assert.Equal(t, transform.FormatWAV, synth.Format())
}

func TestFindProjectFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	nested := filepath.Join(root, "books", "moby")
	require.NoError(t, os.MkdirAll(nested, 0o750))

	_, found := config.FindProjectFile(nested)
	assert.False(t, found)

	path := filepath.Join(root, config.ProjectFile)
	require.NoError(t, os.WriteFile(path, []byte("[speech]\nvoice = \"nova\"\n"), 0o600))

	got, found := config.FindProjectFile(nested)
	require.True(t, found)
	assert.Equal(t, path, got)

	require.NoError(t, os.Mkdir(filepath.Join(nested, config.ProjectFile), 0o750))

	got, found = config.FindProjectFile(nested)
	require.True(t, found, "a directory named like the project file is skipped")
	assert.Equal(t, path, got)
}

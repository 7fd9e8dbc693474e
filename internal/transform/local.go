package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/narrator/internal/core"
)

// API endpoints of the local speech service.
const (
	apiGenerateSpeech = "/v1/generate/speech"
	apiHealth         = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

// Language codes selected by the first letter of a Kokoro voice.
const (
	languageAmerican = "en-us"
	languageBritish  = "en-gb"
)

// Error messages.
const (
	errFmtUnexpectedContentType = "unexpected content type: expected audio/wav, got %s"
	errFmtServiceErrorWithCode  = "speech service error (%s): %s (code: %s)"
	errFmtServiceNonOKStatus    = "speech service returned non-OK status: %s, body: %s"
)

// ErrServiceUnhealthy is returned when the local service fails its health check.
var ErrServiceUnhealthy = errors.New("speech service unhealthy")

// LocalConfig configures a LocalSynthesizer.
type LocalConfig struct {
	// ServiceURL includes the protocol and port, e.g. "http://localhost:8000".
	ServiceURL   string
	Voice        string
	Speed        float64
	MaxChunkSize int
	Timeout      time.Duration
	Normalizer   Normalizer
}

// SpeechRequest is the JSON payload of a generation request.
type SpeechRequest struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`
	Speed    float64 `json:"speed"`
	Language string  `json:"language"`
}

// ServiceErrorResponse is the structured error body of the local service.
type ServiceErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// LocalSynthesizer talks to a standalone Kokoro speech service over HTTP. It
// always produces WAV audio.
type LocalSynthesizer struct {
	httpClient   *http.Client
	baseURL      string
	voice        string
	speed        float64
	maxChunkSize int
	normalizer   Normalizer
}

// NewLocalSynthesizer validates cfg and creates a LocalSynthesizer.
func NewLocalSynthesizer(cfg LocalConfig) (*LocalSynthesizer, error) {
	if strings.TrimSpace(cfg.ServiceURL) == "" {
		return nil, fmt.Errorf("%w: empty speech service URL", core.ErrInvalidArgument)
	}

	settings, err := resolveVoiceSettings(BackendLocal, cfg.Voice, cfg.Speed, FormatWAV)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &LocalSynthesizer{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      strings.TrimSuffix(cfg.ServiceURL, "/"),
		voice:        settings.voice,
		speed:        settings.speed,
		maxChunkSize: orDefault(cfg.MaxChunkSize, DefaultSpeechChunkSize),
		normalizer:   cfg.Normalizer,
	}, nil
}

// Capability reports speech synthesis.
func (l *LocalSynthesizer) Capability() core.Capability {
	return core.CapabilitySpeechSynthesis
}

// MaxChunkSize returns the largest chunk the synthesizer accepts.
func (l *LocalSynthesizer) MaxChunkSize() int {
	return l.maxChunkSize
}

// Format returns the audio container produced by the service.
func (l *LocalSynthesizer) Format() string {
	return FormatWAV
}

// Preprocess applies the optional normalizer to the whole document.
func (l *LocalSynthesizer) Preprocess(document string) string {
	return normalizeDocument(l.normalizer, document)
}

// Fingerprint identifies the settings that shape the audio.
func (l *LocalSynthesizer) Fingerprint() string {
	return fmt.Sprintf("backend=%s voice=%s speed=%.2f format=%s normalize=%t",
		BackendLocal, l.voice, l.speed, FormatWAV, l.normalizer != nil)
}

// Transform synthesizes one chunk.
func (l *LocalSynthesizer) Transform(ctx context.Context, index int, text string) (core.Result, error) {
	input, err := prepareSpeechInput(index, text, l.maxChunkSize)
	if err != nil {
		return core.Result{}, err
	}

	if input == "" {
		return core.SilentResult(index), nil
	}

	audioData, err := l.generateSpeech(ctx, SpeechRequest{
		Text:     input,
		Voice:    l.voice,
		Speed:    l.speed,
		Language: languageForVoice(l.voice),
	})
	if err != nil {
		return core.Result{}, core.NewTransformationError(index, err)
	}

	result := core.AudioResult(index, audioData)

	err = result.Validate()
	if err != nil {
		return core.Result{}, core.NewTransformationError(index, err)
	}

	return result, nil
}

// HealthCheck verifies that the speech service is running.
func (l *LocalSynthesizer) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrServiceUnhealthy, l.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %s", ErrServiceUnhealthy, resp.Status)
	}

	return nil
}

func (l *LocalSynthesizer) generateSpeech(ctx context.Context, speechReq SpeechRequest) ([]byte, error) {
	requestBody, err := json.Marshal(speechReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		l.baseURL+apiGenerateSpeech,
		bytes.NewReader(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeWAV)

	resp, err := l.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to speech service at %s: %w", l.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if contentType != contentTypeWAV {
		return nil, fmt.Errorf(errFmtUnexpectedContentType, contentType)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	return audioData, nil
}

// parseErrorResponse decodes a structured JSON error, falling back to the raw body.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp ServiceErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf(errFmtServiceErrorWithCode, resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, string(body))
}

func languageForVoice(voice string) string {
	if strings.HasPrefix(voice, "b") {
		return languageBritish
	}

	return languageAmerican
}

package transform

import (
	"fmt"
	"slices"

	openai "github.com/sashabaranov/go-openai"
)

// Speech backends.
const (
	BackendOpenAI = "openai"
	BackendLocal  = "local"
)

// Default voices per backend.
const (
	DefaultOpenAIVoice = string(openai.VoiceAlloy)
	DefaultLocalVoice  = "af_heart"
)

// OpenAIVoices lists the voices of the OpenAI speech endpoint.
var OpenAIVoices = []string{
	string(openai.VoiceAlloy),
	string(openai.VoiceAsh),
	string(openai.VoiceBallad),
	string(openai.VoiceCoral),
	string(openai.VoiceEcho),
	string(openai.VoiceFable),
	string(openai.VoiceOnyx),
	string(openai.VoiceNova),
	string(openai.VoiceShimmer),
	string(openai.VoiceVerse),
}

// LocalVoices lists the Kokoro voices of the local speech service.
// The prefix encodes accent and gender: a=American, b=British, f=female, m=male.
var LocalVoices = []string{
	"af_heart", "af_bella", "af_nicole", "af_aoede", "af_kore", "af_sarah",
	"af_nova", "af_sky", "af_alloy", "af_jessica", "af_river",
	"am_michael", "am_fenrir", "am_puck", "am_echo", "am_eric", "am_liam",
	"am_onyx", "am_santa", "am_adam",
	"bf_emma", "bf_isabella", "bf_alice", "bf_lily",
	"bm_george", "bm_fable", "bm_lewis", "bm_daniel",
}

// Voices returns the voice list of backend, or nil for an unknown backend.
func Voices(backend string) []string {
	switch backend {
	case BackendOpenAI:
		return OpenAIVoices
	case BackendLocal:
		return LocalVoices
	default:
		return nil
	}
}

// DefaultVoice returns the default voice of backend.
func DefaultVoice(backend string) string {
	if backend == BackendLocal {
		return DefaultLocalVoice
	}

	return DefaultOpenAIVoice
}

// ValidateVoice checks that voice is offered by backend.
func ValidateVoice(backend, voice string) error {
	if !slices.Contains(Voices(backend), voice) {
		return fmt.Errorf("%w: %q for backend %q", ErrUnsupportedVoice, voice, backend)
	}

	return nil
}

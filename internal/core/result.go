package core

import (
	"errors"
	"fmt"
)

// ErrEmptyPayload indicates that a service answered without any usable output.
var ErrEmptyPayload = errors.New("empty payload")

// Result is the output of one Transformer call, tagged with the chunk index it
// belongs to. Exactly one of Text or Audio is meaningful, depending on Capability.
type Result struct {
	Index      int
	Capability Capability
	Text       string
	Audio      []byte
	// Silent marks a synthesis result for a chunk with nothing to speak.
	Silent bool
}

// TextResult builds a cleanup result.
func TextResult(index int, text string) Result {
	return Result{Index: index, Capability: CapabilityTextCleanup, Text: text}
}

// AudioResult builds a synthesis result.
func AudioResult(index int, audio []byte) Result {
	return Result{Index: index, Capability: CapabilitySpeechSynthesis, Audio: audio}
}

// SilentResult builds a synthesis result that contributes no audio.
func SilentResult(index int) Result {
	return Result{Index: index, Capability: CapabilitySpeechSynthesis, Silent: true}
}

// Payload returns the bytes that represent the result on disk.
func (r Result) Payload() []byte {
	if r.Capability == CapabilityTextCleanup {
		return []byte(r.Text)
	}

	return r.Audio
}

// Validate checks the result before it is admitted into the pipeline.
func (r Result) Validate() error {
	switch r.Capability {
	case CapabilityTextCleanup:
		return nil
	case CapabilitySpeechSynthesis:
		if len(r.Audio) == 0 && !r.Silent {
			return fmt.Errorf("chunk %d: %w", r.Index, ErrEmptyPayload)
		}

		return nil
	default:
		return fmt.Errorf("%w: unknown capability %q", ErrInvalidArgument, r.Capability)
	}
}

// Package core defines the contracts shared by the narrator pipelines.
package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	// UploadFile streams the file at path into the store under key.
	UploadFile(ctx context.Context, key, path string) error
}

// Capability identifies what a Transformer does to a chunk.
type Capability string

const (
	// CapabilityTextCleanup turns OCR text into cleaned text.
	CapabilityTextCleanup Capability = "text_cleanup"
	// CapabilitySpeechSynthesis turns text into an encoded audio payload.
	CapabilitySpeechSynthesis Capability = "speech_synthesis"
)

// Transformer is the boundary to an external text-cleanup or speech-synthesis
// service. Implementations never retry; a failed call is reported as a
// *TransformationError and the caller decides what happens next.
type Transformer interface {
	Capability() Capability
	// MaxChunkSize is the largest chunk, in characters, the service accepts.
	MaxChunkSize() int
	Transform(ctx context.Context, index int, text string) (Result, error)
}

// Preprocessor is implemented by transformers that rewrite the whole document
// before it is split, so the chunk limit applies to the text actually sent.
type Preprocessor interface {
	Preprocess(document string) string
}

// Fingerprinter is implemented by transformers whose output depends on
// settings such as model or voice. A checkpoint only resumes under the same
// fingerprint.
type Fingerprinter interface {
	Fingerprint() string
}

// FingerprintOf returns the fingerprint of transformer, or "" when it has none.
func FingerprintOf(transformer Transformer) string {
	fingerprinter, ok := transformer.(Fingerprinter)
	if !ok {
		return ""
	}

	return fingerprinter.Fingerprint()
}

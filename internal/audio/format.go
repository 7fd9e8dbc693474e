// Package audio merges per-chunk audio segments into a single container and
// reports basic facts about finished audio files.
package audio

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format is an audio container produced by the speech backends.
type Format string

// Supported formats.
const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
)

// MIME types of the supported formats.
const (
	mimeMP3 = "audio/mpeg"
	mimeWAV = "audio/wav"
)

// Common errors for the audio package.
var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrNoSegments        = errors.New("no audio segments to merge")
	ErrFormatMismatch    = errors.New("audio segments have different sample formats")
	ErrInvalidSegment    = errors.New("invalid audio segment")
)

// ParseFormat converts a format name such as "mp3" or "WAV" into a Format.
func ParseFormat(name string) (Format, error) {
	format := Format(strings.ToLower(strings.TrimPrefix(name, ".")))

	switch format {
	case FormatMP3, FormatWAV:
		return format, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// FormatOf returns the format implied by the extension of path.
func FormatOf(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// MIMEType returns the content type used when serving the format.
func (f Format) MIMEType() string {
	if f == FormatWAV {
		return mimeWAV
	}

	return mimeMP3
}

// Extension returns the file extension without the leading dot.
func (f Format) Extension() string {
	return string(f)
}

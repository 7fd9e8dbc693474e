package audio

import (
	"bytes"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	id3v2HeaderSize  = 10
	id3v2FooterFlag  = 0x10
	id3v1TagSize     = 128
	wavFormatPCM     = 1
	syncsafeBitWidth = 7
)

var (
	id3v2Magic = []byte("ID3")
	id3v1Magic = []byte("TAG")
)

// Merge writes the segment files, in order, as one container of format to out.
//
// MP3 segments are joined frame stream to frame stream: the first segment keeps
// its leading ID3v2 tag, later segments lose theirs, and trailing ID3v1 tags are
// kept only on the last segment. WAV segments are decoded and re-encoded as a
// single PCM stream; they must share sample rate, bit depth and channel count.
func Merge(out io.WriteSeeker, format Format, segments []string) error {
	if len(segments) == 0 {
		return ErrNoSegments
	}

	switch format {
	case FormatMP3:
		return mergeMP3(out, segments)
	case FormatWAV:
		return mergeWAV(out, segments)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func mergeMP3(out io.Writer, segments []string) error {
	for position, path := range segments {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read segment %s: %w", path, err)
		}

		if position > 0 {
			data = StripID3v2(data)
		}

		if position < len(segments)-1 {
			data = stripID3v1(data)
		}

		_, err = out.Write(data)
		if err != nil {
			return fmt.Errorf("failed to write segment %s: %w", path, err)
		}
	}

	return nil
}

// StripID3v2 removes a leading ID3v2 tag from an MP3 stream.
func StripID3v2(data []byte) []byte {
	if len(data) < id3v2HeaderSize || !bytes.HasPrefix(data, id3v2Magic) {
		return data
	}

	size := id3v2HeaderSize + syncsafe(data[6:10])
	if data[5]&id3v2FooterFlag != 0 {
		size += id3v2HeaderSize
	}

	if size > len(data) {
		return data[:0]
	}

	return data[size:]
}

func stripID3v1(data []byte) []byte {
	if len(data) < id3v1TagSize {
		return data
	}

	tail := data[len(data)-id3v1TagSize:]
	if !bytes.HasPrefix(tail, id3v1Magic) {
		return data
	}

	return data[:len(data)-id3v1TagSize]
}

// syncsafe decodes a 4-byte ID3v2 syncsafe integer.
func syncsafe(raw []byte) int {
	value := 0
	for _, b := range raw {
		value = value<<syncsafeBitWidth | int(b&0x7f)
	}

	return value
}

type wavSpec struct {
	sampleRate int
	bitDepth   int
	channels   int
}

func mergeWAV(out io.WriteSeeker, segments []string) error {
	var (
		encoder *wav.Encoder
		spec    wavSpec
	)

	for _, path := range segments {
		buffer, segmentSpec, err := readWAV(path)
		if err != nil {
			return err
		}

		if encoder == nil {
			spec = segmentSpec
			encoder = wav.NewEncoder(out, spec.sampleRate, spec.bitDepth, spec.channels, wavFormatPCM)
		} else if segmentSpec != spec {
			return fmt.Errorf("%w: %s is %d Hz/%d bit/%d ch, expected %d Hz/%d bit/%d ch",
				ErrFormatMismatch, path,
				segmentSpec.sampleRate, segmentSpec.bitDepth, segmentSpec.channels,
				spec.sampleRate, spec.bitDepth, spec.channels)
		}

		err = encoder.Write(buffer)
		if err != nil {
			return fmt.Errorf("failed to encode segment %s: %w", path, err)
		}
	}

	err := encoder.Close()
	if err != nil {
		return fmt.Errorf("failed to finalize wav stream: %w", err)
	}

	return nil
}

func readWAV(path string) (*goaudio.IntBuffer, wavSpec, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, wavSpec{}, fmt.Errorf("failed to open segment %s: %w", path, err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, wavSpec{}, fmt.Errorf("%w: %s is not a readable wav file", ErrInvalidSegment, path)
	}

	if decoder.WavAudioFormat != wavFormatPCM {
		return nil, wavSpec{}, fmt.Errorf("%w: %s is not linear PCM (format %d)",
			ErrInvalidSegment, path, decoder.WavAudioFormat)
	}

	buffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, wavSpec{}, fmt.Errorf("failed to decode segment %s: %w", path, err)
	}

	spec := wavSpec{
		sampleRate: int(decoder.SampleRate),
		bitDepth:   int(decoder.BitDepth),
		channels:   int(decoder.NumChans),
	}

	return buffer, spec, nil
}

package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/wav"
)

const (
	mp3ScanLimit       = 64 * 1024
	fallbackBitrateBPS = 128000
	layerIII           = 0x1
	mpegVersion1       = 0x3
	mpegVersion2       = 0x2
	mpegVersion25      = 0x0
	channelModeMono    = 0x3
	bitsPerByte        = 8
)

var (
	layerIIIBitratesV1 = []int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320}
	layerIIIBitratesV2 = []int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160}
	sampleRatesV1      = []int{44100, 48000, 32000}
	sampleRatesV2      = []int{22050, 24000, 16000}
	sampleRatesV25     = []int{11025, 12000, 8000}
)

// Info describes a finished audio file.
type Info struct {
	Format     Format
	Duration   time.Duration
	Size       int64
	SampleRate int
	Channels   int
	// Estimated is true when Duration was derived from the file size.
	Estimated bool
}

// Probe reads enough of the file at path to describe it. WAV durations are
// exact; MP3 durations assume a constant bitrate taken from the first frame.
func Probe(path string) (Info, error) {
	format, err := FormatOf(path)
	if err != nil {
		return Info{}, err
	}

	file, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return Info{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if format == FormatWAV {
		return probeWAV(file, stat.Size())
	}

	return probeMP3(file, stat.Size())
}

func probeWAV(file *os.File, size int64) (Info, error) {
	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return Info{}, fmt.Errorf("%w: %s is not a readable wav file", ErrInvalidSegment, file.Name())
	}

	duration, err := decoder.Duration()
	if err != nil {
		return Info{}, fmt.Errorf("failed to read duration of %s: %w", file.Name(), err)
	}

	return Info{
		Format:     FormatWAV,
		Duration:   duration,
		Size:       size,
		SampleRate: int(decoder.SampleRate),
		Channels:   int(decoder.NumChans),
	}, nil
}

func probeMP3(file *os.File, size int64) (Info, error) {
	head := make([]byte, mp3ScanLimit)

	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Info{}, fmt.Errorf("failed to read %s: %w", file.Name(), err)
	}

	head = head[:n]
	tagSize := len(head) - len(StripID3v2(head))
	info := Info{Format: FormatMP3, Size: size, Estimated: true}

	bitrate := fallbackBitrateBPS

	if frame, ok := findFrameHeader(head[tagSize:]); ok {
		bitrate = frame.bitrate
		info.SampleRate = frame.sampleRate
		info.Channels = frame.channels
	}

	audioBytes := size - int64(tagSize)
	if audioBytes > 0 {
		seconds := float64(audioBytes*bitsPerByte) / float64(bitrate)
		info.Duration = time.Duration(seconds * float64(time.Second))
	}

	return info, nil
}

type frameHeader struct {
	bitrate    int
	sampleRate int
	channels   int
}

// findFrameHeader locates the first valid MPEG Layer III frame header in data.
func findFrameHeader(data []byte) (frameHeader, bool) {
	for offset := 0; offset+4 <= len(data); offset++ {
		if data[offset] != 0xFF || data[offset+1]&0xE0 != 0xE0 {
			continue
		}

		header, ok := parseFrameHeader(data[offset : offset+4])
		if ok {
			return header, true
		}
	}

	return frameHeader{}, false
}

func parseFrameHeader(raw []byte) (frameHeader, bool) {
	version := int(raw[1]>>3) & 0x3
	layer := int(raw[1]>>1) & 0x3
	bitrateIndex := int(raw[2]>>4) & 0xF
	sampleRateIndex := int(raw[2]>>2) & 0x3
	channelMode := int(raw[3]>>6) & 0x3

	if layer != layerIII || bitrateIndex == 0 || bitrateIndex == 0xF || sampleRateIndex == 0x3 {
		return frameHeader{}, false
	}

	var (
		bitrates    []int
		sampleRates []int
	)

	switch version {
	case mpegVersion1:
		bitrates, sampleRates = layerIIIBitratesV1, sampleRatesV1
	case mpegVersion2:
		bitrates, sampleRates = layerIIIBitratesV2, sampleRatesV2
	case mpegVersion25:
		bitrates, sampleRates = layerIIIBitratesV2, sampleRatesV25
	default:
		return frameHeader{}, false
	}

	channels := 2
	if channelMode == channelModeMono {
		channels = 1
	}

	return frameHeader{
		bitrate:    bitrates[bitrateIndex] * 1000,
		sampleRate: sampleRates[sampleRateIndex],
		channels:   channels,
	}, true
}

package feed_test

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/book-expert/narrator/internal/audio"
	"github.com/book-expert/narrator/internal/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mp3Frame is a MPEG-1 Layer III, 128 kbps, 44.1 kHz frame header.
var mp3Frame = []byte{0xFF, 0xFB, 0x90, 0x64}

type parsedFeed struct {
	Channel struct {
		Title string `xml:"title"`
		Link  string `xml:"link"`
		Items []struct {
			Title     string `xml:"title"`
			PubDate   string `xml:"pubDate"`
			GUID      string `xml:"guid"`
			Enclosure struct {
				URL    string `xml:"url,attr"`
				Length int64  `xml:"length,attr"`
				Type   string `xml:"type,attr"`
			} `xml:"enclosure"`
		} `xml:"item"`
	} `xml:"channel"`
}

func writeAudiobook(t *testing.T, dir, name string, size int, modified time.Time) {
	t.Helper()

	data := append(append([]byte{}, mp3Frame...), make([]byte, size-len(mp3Frame))...)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	require.NoError(t, os.Chtimes(path, modified, modified))
}

func populate(t *testing.T) (string, time.Time) {
	t.Helper()

	dir := t.TempDir()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	writeAudiobook(t, dir, "moby_dick_audiobook.mp3", 32000, base)
	writeAudiobook(t, dir, "emma_audiobook.mp3", 16000, base.Add(time.Hour))
	writeAudiobook(t, dir, "notes.mp3", 1000, base.Add(2*time.Hour))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "emma.txt"), []byte("text"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "emma_tts_temp"), 0o750))

	return dir, base
}

func TestScan(t *testing.T) {
	t.Parallel()

	dir, base := populate(t)

	episodes, err := feed.Scan(dir)
	require.NoError(t, err)
	require.Len(t, episodes, 2)

	assert.Equal(t, "emma_audiobook.mp3", episodes[0].Name, "newest first")
	assert.Equal(t, "emma", episodes[0].Title)
	assert.Equal(t, audio.FormatMP3, episodes[0].Format)
	assert.Equal(t, int64(16000), episodes[0].Size)
	assert.Equal(t, time.Second, episodes[0].Duration)

	assert.Equal(t, "moby_dick", episodes[1].Title)
	assert.Equal(t, 2*time.Second, episodes[1].Duration)
	assert.Equal(t, "moby_dick_audiobook.mp3_"+strconv.FormatInt(base.Unix(), 10), episodes[1].GUID())
}

func TestScan_MissingDirectory(t *testing.T) {
	t.Parallel()

	_, err := feed.Scan(filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestBuildAndRender(t *testing.T) {
	t.Parallel()

	modified := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	episodes := []feed.Episode{
		{
			Name:     "emma_audiobook.wav",
			Title:    "emma",
			Format:   audio.FormatWAV,
			Size:     2048,
			Modified: modified,
			Duration: 3*time.Hour + 4*time.Minute + 5*time.Second,
		},
		{Name: "dune_audiobook.mp3", Title: "dune", Format: audio.FormatMP3, Size: 10, Modified: modified},
	}

	data, err := feed.Render(feed.Build(episodes, feed.Options{
		Title:       "Books",
		Description: "Narrated books",
		Author:      "narrator",
		Language:    "en-us",
		BaseURL:     "https://books.example.com/",
		BuildTime:   modified,
	}))
	require.NoError(t, err)

	document := string(data)
	assert.True(t, strings.HasPrefix(document, "<?xml"))
	assert.Contains(t, document, `xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd"`)
	assert.Contains(t, document, `<atom:link href="https://books.example.com/feed" rel="self" type="application/rss+xml">`)
	assert.Contains(t, document, "<itunes:author>narrator</itunes:author>")
	assert.Contains(t, document, "<itunes:duration>03:04:05</itunes:duration>")
	assert.Contains(t, document, "<lastBuildDate>Sun, 01 Mar 2026 12:00:00 +0000</lastBuildDate>")
	assert.Equal(t, 1, strings.Count(document, "<itunes:duration>"), "unknown durations are omitted")

	var parsed parsedFeed
	require.NoError(t, xml.Unmarshal(data, &parsed))

	assert.Equal(t, "Books", parsed.Channel.Title)
	assert.Equal(t, "https://books.example.com", parsed.Channel.Link)
	require.Len(t, parsed.Channel.Items, 2)

	first := parsed.Channel.Items[0]
	assert.Equal(t, "emma", first.Title)
	assert.Equal(t, "https://books.example.com/audio/emma_audiobook.wav", first.Enclosure.URL)
	assert.Equal(t, int64(2048), first.Enclosure.Length)
	assert.Equal(t, "audio/wav", first.Enclosure.Type)
	assert.Equal(t, "emma_audiobook.wav_"+strconv.FormatInt(modified.Unix(), 10), first.GUID)
	assert.Equal(t, "audio/mpeg", parsed.Channel.Items[1].Enclosure.Type)
}

func TestWrite(t *testing.T) {
	t.Parallel()

	dir, _ := populate(t)

	path, count, err := feed.Write(dir, feed.Options{Title: "Books", BaseURL: "http://localhost:4699"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, feed.FileName), path)
	assert.Equal(t, 2, count)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var parsed parsedFeed
	require.NoError(t, xml.Unmarshal(data, &parsed))
	require.Len(t, parsed.Channel.Items, 2)
	assert.Equal(t, "emma", parsed.Channel.Items[0].Title)
	assert.Equal(t, "moby_dick", parsed.Channel.Items[1].Title)
}

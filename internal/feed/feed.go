// Package feed builds a podcast RSS feed over the finished audiobooks in a
// directory.
package feed

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/narrator/internal/audio"
	"github.com/book-expert/narrator/internal/fsutil"
)

// FileName is the name of the feed written into the audiobook directory.
const FileName = "podcast.xml"

// ContentType is the MIME type the feed is served with.
const ContentType = "application/rss+xml"

const (
	rssVersion     = "2.0"
	namespaceITune = "http://www.itunes.com/dtds/podcast-1.0.dtd"
	namespaceAtom  = "http://www.w3.org/2005/Atom"
	audioRoute     = "/audio/"
	feedRoute      = "/feed"
	explicitFalse  = "false"
)

// Options holds the channel metadata.
type Options struct {
	Title       string
	Description string
	Author      string
	Language    string
	// BaseURL is the public root the feed and audio are served from.
	BaseURL string
	// BuildTime stamps lastBuildDate; the zero value means now.
	BuildTime time.Time
}

// Episode is one finished audiobook.
type Episode struct {
	Name     string
	Title    string
	Format   audio.Format
	Size     int64
	Modified time.Time
	Duration time.Duration
}

// GUID identifies the episode; it changes when the file is rewritten.
func (e Episode) GUID() string {
	return e.Name + "_" + strconv.FormatInt(e.Modified.Unix(), 10)
}

// RSS is the document root.
type RSS struct {
	XMLName        xml.Name `xml:"rss"`
	Version        string   `xml:"version,attr"`
	NamespaceITune string   `xml:"xmlns:itunes,attr"`
	NamespaceAtom  string   `xml:"xmlns:atom,attr"`
	Channel        Channel  `xml:"channel"`
}

// Channel is the podcast.
type Channel struct {
	Title         string   `xml:"title"`
	Link          string   `xml:"link"`
	Language      string   `xml:"language"`
	Author        string   `xml:"itunes:author,omitempty"`
	Description   string   `xml:"description"`
	Summary       string   `xml:"itunes:summary,omitempty"`
	LastBuildDate string   `xml:"lastBuildDate"`
	AtomLink      AtomLink `xml:"atom:link"`
	Items         []Item   `xml:"item"`
}

// AtomLink is the self reference of the feed.
type AtomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

// Item is one episode.
type Item struct {
	Title       string    `xml:"title"`
	ITunesTitle string    `xml:"itunes:title"`
	PubDate     string    `xml:"pubDate"`
	Enclosure   Enclosure `xml:"enclosure"`
	GUID        GUID      `xml:"guid"`
	Explicit    string    `xml:"itunes:explicit"`
	Duration    string    `xml:"itunes:duration,omitempty"`
}

// Enclosure points at the audio file.
type Enclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

// GUID is the episode identifier.
type GUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// Scan lists the audiobooks in dir, newest first.
func Scan(dir string) ([]Episode, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read audiobook directory %s: %w", dir, err)
	}

	episodes := make([]Episode, 0, len(entries))

	for _, entry := range entries {
		if !entry.Type().IsRegular() || !fsutil.IsAudiobookFile(entry.Name()) {
			continue
		}

		episode, err := describe(dir, entry)
		if err != nil {
			return nil, err
		}

		episodes = append(episodes, episode)
	}

	sort.SliceStable(episodes, func(i, j int) bool {
		if episodes[i].Modified.Equal(episodes[j].Modified) {
			return episodes[i].Name < episodes[j].Name
		}

		return episodes[i].Modified.After(episodes[j].Modified)
	})

	return episodes, nil
}

func describe(dir string, entry os.DirEntry) (Episode, error) {
	info, err := entry.Info()
	if err != nil {
		return Episode{}, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
	}

	format, err := audio.FormatOf(entry.Name())
	if err != nil {
		return Episode{}, err
	}

	episode := Episode{
		Name:     entry.Name(),
		Title:    fsutil.AudiobookTitle(entry.Name()),
		Format:   format,
		Size:     info.Size(),
		Modified: info.ModTime().UTC(),
	}

	probe, err := audio.Probe(filepath.Join(dir, entry.Name()))
	if err == nil {
		episode.Duration = probe.Duration
	}

	return episode, nil
}

// Build creates the feed document for episodes.
func Build(episodes []Episode, opts Options) *RSS {
	base := strings.TrimSuffix(opts.BaseURL, "/")

	buildTime := opts.BuildTime
	if buildTime.IsZero() {
		buildTime = time.Now()
	}

	channel := Channel{
		Title:         opts.Title,
		Link:          base,
		Language:      opts.Language,
		Author:        opts.Author,
		Description:   opts.Description,
		Summary:       opts.Description,
		LastBuildDate: rfc822(buildTime),
		AtomLink:      AtomLink{Href: base + feedRoute, Rel: "self", Type: ContentType},
		Items:         make([]Item, 0, len(episodes)),
	}

	for _, episode := range episodes {
		item := Item{
			Title:       episode.Title,
			ITunesTitle: episode.Title,
			PubDate:     rfc822(episode.Modified),
			Enclosure: Enclosure{
				URL:    base + audioRoute + episode.Name,
				Length: episode.Size,
				Type:   episode.Format.MIMEType(),
			},
			GUID:     GUID{IsPermaLink: false, Value: episode.GUID()},
			Explicit: explicitFalse,
		}

		if episode.Duration > 0 {
			item.Duration = clock(episode.Duration)
		}

		channel.Items = append(channel.Items, item)
	}

	return &RSS{
		Version:        rssVersion,
		NamespaceITune: namespaceITune,
		NamespaceAtom:  namespaceAtom,
		Channel:        channel,
	}
}

// Render encodes the feed with an XML declaration.
func Render(rss *RSS) ([]byte, error) {
	body, err := xml.MarshalIndent(rss, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode feed: %w", err)
	}

	return append([]byte(xml.Header), append(body, '\n')...), nil
}

// Write scans dir and writes its feed to dir/podcast.xml atomically. It
// returns the feed path and the number of episodes.
func Write(dir string, opts Options) (string, int, error) {
	episodes, err := Scan(dir)
	if err != nil {
		return "", 0, err
	}

	data, err := Render(Build(episodes, opts))
	if err != nil {
		return "", 0, err
	}

	path := filepath.Join(dir, FileName)

	err = fsutil.WriteFileAtomic(path, data)
	if err != nil {
		return "", 0, fmt.Errorf("failed to write feed %s: %w", path, err)
	}

	return path, len(episodes), nil
}

func rfc822(t time.Time) string {
	return t.UTC().Format(time.RFC1123Z)
}

// clock formats d as HH:MM:SS.
func clock(d time.Duration) string {
	total := int64(d.Round(time.Second) / time.Second)

	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total%3600/60, total%60)
}

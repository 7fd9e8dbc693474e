package pipeline

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/book-expert/narrator/internal/checkpoint"
	"github.com/book-expert/narrator/internal/core"
	"github.com/book-expert/narrator/internal/fsutil"
)

// SegmentSink stores the payload of a completed chunk and describes it as a
// checkpoint segment.
type SegmentSink interface {
	Store(result core.Result) (checkpoint.Segment, error)
	// Intact reports whether the payload of a recorded segment is still available.
	Intact(segment checkpoint.Segment) bool
	// Cleanup removes whatever Store left on disk. It runs after promotion.
	Cleanup() error
}

// TextSink keeps cleaned text inline in the checkpoint.
type TextSink struct{}

// Store records the cleaned text of result.
func (TextSink) Store(result core.Result) (checkpoint.Segment, error) {
	return checkpoint.Segment{
		Index: result.Index,
		Text:  result.Text,
		Size:  int64(len(result.Text)),
	}, nil
}

// Intact is always true; the text lives in the checkpoint itself.
func (TextSink) Intact(checkpoint.Segment) bool {
	return true
}

// Cleanup is a no-op; inline segments go away with the checkpoint.
func (TextSink) Cleanup() error {
	return nil
}

// FileSink writes each audio payload to its own file in a segment directory.
type FileSink struct {
	dir string
	ext string
}

// NewFileSink creates a sink writing "chunk_NNNN.<ext>" files into dir.
func NewFileSink(dir, ext string) *FileSink {
	return &FileSink{dir: dir, ext: ext}
}

// Dir returns the segment directory.
func (s *FileSink) Dir() string {
	return s.dir
}

// Store writes the payload of result atomically. Silent results get a segment
// without a file.
func (s *FileSink) Store(result core.Result) (checkpoint.Segment, error) {
	if result.Silent {
		return checkpoint.Segment{Index: result.Index}, nil
	}

	err := fsutil.EnsureDir(s.dir)
	if err != nil {
		return checkpoint.Segment{}, core.NewPersistenceError("mkdir", s.dir, err)
	}

	name := fsutil.SegmentFileName(result.Index, s.ext)
	path := filepath.Join(s.dir, name)
	payload := result.Payload()

	err = fsutil.WriteFileAtomic(path, payload)
	if err != nil {
		return checkpoint.Segment{}, core.NewPersistenceError("write", path, err)
	}

	return checkpoint.Segment{Index: result.Index, File: name, Size: int64(len(payload))}, nil
}

// Intact reports whether the segment file exists with its recorded size.
// Silent segments have no file and are always intact.
func (s *FileSink) Intact(segment checkpoint.Segment) bool {
	if segment.File == "" {
		return true
	}

	info, err := os.Stat(filepath.Join(s.dir, segment.File))
	if err != nil {
		return false
	}

	return info.Mode().IsRegular() && info.Size() == segment.Size
}

// Cleanup removes the segment directory and everything in it.
func (s *FileSink) Cleanup() error {
	err := os.RemoveAll(s.dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return core.NewPersistenceError("remove", s.dir, err)
	}

	return nil
}

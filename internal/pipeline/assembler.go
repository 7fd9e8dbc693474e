package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/book-expert/narrator/internal/audio"
	"github.com/book-expert/narrator/internal/checkpoint"
	"github.com/book-expert/narrator/internal/core"
	"github.com/book-expert/narrator/internal/fsutil"
)

// ErrNothingToNarrate is returned when every chunk of a speech run was silent.
var ErrNothingToNarrate = fmt.Errorf("%w: no chunk produced any audio", core.ErrInvalidArgument)

// Assembler writes the segments of a completed checkpoint, in index order, as
// one artifact.
type Assembler interface {
	Assemble(out io.WriteSeeker, cp *checkpoint.Checkpoint) error
}

// TextAssembler concatenates inline text segments.
type TextAssembler struct{}

// Assemble writes every segment text to out.
func (TextAssembler) Assemble(out io.WriteSeeker, cp *checkpoint.Checkpoint) error {
	for _, segment := range cp.Segments {
		_, err := io.WriteString(out, segment.Text)
		if err != nil {
			return fmt.Errorf("failed to write segment %d: %w", segment.Index, err)
		}
	}

	return nil
}

// AudioAssembler merges segment files from a directory into one container.
type AudioAssembler struct {
	Dir    string
	Format audio.Format
}

// Assemble merges the non-silent segment files into out.
func (a AudioAssembler) Assemble(out io.WriteSeeker, cp *checkpoint.Checkpoint) error {
	files := make([]string, 0, len(cp.Segments))

	for _, segment := range cp.Segments {
		if segment.File == "" {
			continue
		}

		files = append(files, filepath.Join(a.Dir, segment.File))
	}

	if len(files) == 0 {
		return ErrNothingToNarrate
	}

	return audio.Merge(out, a.Format, files)
}

// Finalize assembles cp into a temp file beside outputPath and renames it onto
// outputPath. Only after the rename are the checkpoint and the sink's files
// deleted; any earlier failure leaves them in place and no file at outputPath.
// It returns the size of the promoted artifact.
func Finalize(
	outputPath string,
	cp *checkpoint.Checkpoint,
	assembler Assembler,
	store checkpoint.Store,
	sink SegmentSink,
) (int64, error) {
	if !cp.Done() {
		return 0, fmt.Errorf("%w: checkpoint holds %d of %d chunks",
			core.ErrInvalidArgument, cp.Completed(), cp.ChunkCount)
	}

	err := fsutil.WriteAtomic(outputPath, func(file *os.File) error {
		return assembler.Assemble(file, cp)
	})
	if err != nil {
		if errors.Is(err, core.ErrInvalidArgument) {
			return 0, err
		}

		return 0, core.NewPersistenceError("promote", outputPath, err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return 0, core.NewPersistenceError("stat", outputPath, err)
	}

	err = store.Delete()
	if err != nil {
		return info.Size(), err
	}

	err = sink.Cleanup()
	if err != nil {
		return info.Size(), err
	}

	return info.Size(), nil
}

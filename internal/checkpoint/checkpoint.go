// Package checkpoint records how far a chunked run has progressed so that an
// interrupted run can resume at the first incomplete chunk.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/narrator/internal/chunking"
	"github.com/book-expert/narrator/internal/core"
	"github.com/google/uuid"
)

// Version is the checkpoint format version. Loading a different version fails.
const Version = 1

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound indicates no checkpoint exists for the output.
	ErrNotFound = errors.New("checkpoint not found")
	// ErrCorrupt indicates the stored checkpoint cannot be decoded or is inconsistent.
	ErrCorrupt = errors.New("checkpoint corrupt")
	// ErrPlanMismatch indicates the checkpoint belongs to another document,
	// size, capability or transformer setting.
	ErrPlanMismatch = fmt.Errorf("%w: checkpoint does not match the current plan", core.ErrInvalidArgument)
	// ErrLocked indicates another run holds the lock on this checkpoint.
	ErrLocked = errors.New("checkpoint locked by another run")
)

// Segment is the stored output of one completed chunk. Text results are kept
// inline; audio results live in File.
type Segment struct {
	Index int    `json:"index"`
	Text  string `json:"text,omitempty"`
	File  string `json:"file,omitempty"`
	Size  int64  `json:"size"`
}

// Checkpoint is the persisted progress of one run over one plan.
type Checkpoint struct {
	Version      int             `json:"version"`
	RunID        string          `json:"run_id"`
	Capability   core.Capability `json:"capability"`
	Settings     string          `json:"settings,omitempty"`
	PlanDigest   string          `json:"plan_digest"`
	ChunkCount   int             `json:"chunk_count"`
	MaxChunkSize int             `json:"max_chunk_size"`
	Segments     []Segment       `json:"segments"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// New creates an empty checkpoint for plan. Settings fingerprints the
// transformer configuration; it may be empty.
func New(capability core.Capability, settings string, plan chunking.Plan) *Checkpoint {
	return &Checkpoint{
		Version:      Version,
		RunID:        uuid.NewString(),
		Capability:   capability,
		Settings:     settings,
		PlanDigest:   plan.Digest,
		ChunkCount:   plan.Len(),
		MaxChunkSize: plan.MaxChunkSize,
		Segments:     []Segment{},
		UpdatedAt:    time.Now().UTC(),
	}
}

// Completed is the number of chunks already done. Chunks with a lower index
// are never transformed again.
func (c *Checkpoint) Completed() int {
	return len(c.Segments)
}

// Done reports whether every chunk of the plan has a segment.
func (c *Checkpoint) Done() bool {
	return c.Completed() == c.ChunkCount
}

// Matches checks that the checkpoint was produced for plan by a transformer
// with the same capability and settings.
func (c *Checkpoint) Matches(capability core.Capability, settings string, plan chunking.Plan) error {
	if c.Capability != capability {
		return fmt.Errorf("%w: capability %q, want %q", ErrPlanMismatch, c.Capability, capability)
	}

	if c.Settings != settings {
		return fmt.Errorf("%w: settings %q, want %q", ErrPlanMismatch, c.Settings, settings)
	}

	if c.PlanDigest != plan.Digest || c.ChunkCount != plan.Len() || c.MaxChunkSize != plan.MaxChunkSize {
		return fmt.Errorf("%w: %d chunks of %d, want %d chunks of %d",
			ErrPlanMismatch, c.ChunkCount, c.MaxChunkSize, plan.Len(), plan.MaxChunkSize)
	}

	return nil
}

// Append records the segment of the next chunk. Segments must arrive in index order.
func (c *Checkpoint) Append(segment Segment) error {
	if segment.Index != c.Completed() {
		return fmt.Errorf("%w: segment %d appended after %d completed chunks",
			core.ErrInvalidArgument, segment.Index, c.Completed())
	}

	if segment.Index >= c.ChunkCount {
		return fmt.Errorf("%w: segment %d beyond %d chunks",
			core.ErrInvalidArgument, segment.Index, c.ChunkCount)
	}

	c.Segments = append(c.Segments, segment)
	c.UpdatedAt = time.Now().UTC()

	return nil
}

// Truncate drops every segment from index n on, so the run resumes at chunk n.
func (c *Checkpoint) Truncate(n int) {
	if n < 0 || n >= c.Completed() {
		return
	}

	c.Segments = c.Segments[:n]
	c.UpdatedAt = time.Now().UTC()
}

// Validate checks the structural invariants of a loaded checkpoint.
func (c *Checkpoint) Validate() error {
	if c.Version != Version {
		return fmt.Errorf("%w: version %d, want %d", ErrCorrupt, c.Version, Version)
	}

	if c.Completed() > c.ChunkCount {
		return fmt.Errorf("%w: %d segments for %d chunks", ErrCorrupt, c.Completed(), c.ChunkCount)
	}

	for position, segment := range c.Segments {
		if segment.Index != position {
			return fmt.Errorf("%w: segment %d stored at position %d", ErrCorrupt, segment.Index, position)
		}
	}

	return nil
}

// Marshal serializes the checkpoint to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Unmarshal decodes and validates a checkpoint.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var cp Checkpoint

	err := json.Unmarshal(data, &cp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	err = cp.Validate()
	if err != nil {
		return nil, err
	}

	if cp.Segments == nil {
		cp.Segments = []Segment{}
	}

	return &cp, nil
}

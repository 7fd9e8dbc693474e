// Package chunking splits a document into an ordered plan of bounded chunks,
// breaking at newlines first, then at sentence ends, then hard at the limit.
//
// Sizes and offsets are counted in Unicode code points, not bytes.
package chunking

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/book-expert/narrator/internal/core"
)

// Chunk is a contiguous slice [Start, End) of the document.
type Chunk struct {
	Index int
	Start int
	End   int
	Text  string
}

// Len returns the chunk length in characters.
func (c Chunk) Len() int {
	return c.End - c.Start
}

// Plan is the ordered chunk sequence for one document and one size limit.
type Plan struct {
	MaxChunkSize int
	// Digest identifies the document and size the plan was built from.
	Digest string
	Chunks []Chunk
}

// Len returns the number of chunks.
func (p Plan) Len() int {
	return len(p.Chunks)
}

// Text concatenates the chunks back into the document.
func (p Plan) Text() string {
	var builder strings.Builder

	for _, chunk := range p.Chunks {
		builder.WriteString(chunk.Text)
	}

	return builder.String()
}

// Split builds the chunk plan for document. An empty document gives an empty
// plan. A maxChunkSize below one is rejected.
func Split(document string, maxChunkSize int) (Plan, error) {
	if maxChunkSize <= 0 {
		return Plan{}, fmt.Errorf("%w: max chunk size must be positive, got %d",
			core.ErrInvalidArgument, maxChunkSize)
	}

	plan := Plan{
		MaxChunkSize: maxChunkSize,
		Digest:       Digest(document, maxChunkSize),
		Chunks:       nil,
	}

	runes := []rune(document)
	start := 0

	for start < len(runes) {
		end := start + maxChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = cutPoint(runes, start, end)
		}

		plan.Chunks = append(plan.Chunks, Chunk{
			Index: len(plan.Chunks),
			Start: start,
			End:   end,
			Text:  string(runes[start:end]),
		})
		start = end
	}

	return plan, nil
}

// Digest fingerprints a document together with the chunk size used to split it.
func Digest(document string, maxChunkSize int) string {
	hash := sha256.New()
	hash.Write([]byte(strconv.Itoa(maxChunkSize)))
	hash.Write([]byte{0})
	hash.Write([]byte(document))

	return hex.EncodeToString(hash.Sum(nil))
}

// cutPoint picks where the chunk starting at start ends, given that the text
// continues past limit. Candidates lie in (start, limit] so the chunk is never
// empty and never longer than limit-start.
func cutPoint(runes []rune, start, limit int) int {
	// A newline opens the next chunk.
	for cut := limit; cut > start; cut-- {
		if runes[cut] == '\n' {
			return cut
		}
	}

	// Terminal punctuation stays with this chunk, the whitespace after it does not.
	for cut := limit; cut > start; cut-- {
		if isSentenceTerminal(runes[cut-1]) && unicode.IsSpace(runes[cut]) {
			return cut
		}
	}

	return limit
}

func isSentenceTerminal(r rune) bool {
	switch r {
	case '.', '!', '?':
		return true
	default:
		return false
	}
}

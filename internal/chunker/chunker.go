// Package chunker splits normalized document text into overlapping,
// fixed-size windows for embedding and retrieval.
//
// Window size and overlap are measured in characters (bytes of the
// UTF-8 normalized text), not tokens. Character units keep the chunk
// boundaries independent of any provider tokenizer, so the same text
// always produces the same chunk sequence.
package chunker

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned when overlap does not fit inside the
// chunk size. It is a configuration error and is never retried.
var ErrInvalidConfig = errors.New("invalid chunk config")

// Piece is one window of document text. Position is dense and 0-based.
type Piece struct {
	Position int
	Text     string
}

type Chunker struct {
	size    int
	overlap int
}

func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidConfig, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split slices text into windows where window i starts at
// i*(size-overlap) and spans size characters, the last window truncated
// to the remaining text. Empty text yields no pieces; text that fits in
// a single window is returned whole. The output is deterministic, and
// concatenating the pieces with each one's leading overlap removed
// (except the first) reconstructs the input exactly.
func (c *Chunker) Split(text string) []Piece {
	if len(text) == 0 {
		return nil
	}
	if len(text) <= c.size {
		return []Piece{{Position: 0, Text: text}}
	}

	step := c.size - c.overlap
	pieces := make([]Piece, 0, (len(text)+step-1)/step)

	for start := 0; start < len(text); start += step {
		end := start + c.size
		if end > len(text) {
			end = len(text)
		}
		pieces = append(pieces, Piece{
			Position: len(pieces),
			Text:     text[start:end],
		})
	}

	return pieces
}

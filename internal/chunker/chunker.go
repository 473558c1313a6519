// Package chunker splits extracted text into overlapping passages for indexing.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Default sizing mirrors the ingestion pipeline's passage target: roughly 500
// characters per passage with a 10-20% overlap between neighbours.
const (
	DefaultSize    = 500
	DefaultOverlap = 50
)

// ErrInvalidConfig indicates invalid chunker sizing.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// Passage is one contiguous slice of the source text.
//
// Start is the rune offset of the passage within the (trimmed) source text.
// Offsets let callers strip overlap regions exactly: passage i+1 repeats the
// last End(i)-Start(i+1) runes of passage i.
type Passage struct {
	Text  string
	Start int
}

// End returns the rune offset one past the last rune of the passage.
func (p Passage) End() int {
	return p.Start + len([]rune(p.Text))
}

// Chunker splits text into ordered, overlapping passages of bounded size.
//
// Splitting is size-driven, not sentence-driven: each passage targets Size
// runes, but the break point backs up to the nearest whitespace (within the
// overlap window) so words are not cut in half. Adjacent passages share an
// overlap region so retrieval context survives a chunk boundary.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. Overlap must be smaller than size, otherwise the
// passage sequence would never advance.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap cannot be negative, got %d", ErrInvalidConfig, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than size %d", ErrInvalidConfig, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split chunks text into passages in source order.
//
// Leading and trailing whitespace is trimmed once; the passages otherwise
// reproduce the text verbatim, so concatenating them in order with overlap
// regions removed reconstructs the trimmed input exactly. Empty or
// whitespace-only input yields zero passages; callers treat that as "nothing
// to index", not as an error.
func (c *Chunker) Split(text string) []Passage {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	if len(runes) <= c.size {
		return []Passage{{Text: trimmed, Start: 0}}
	}

	var passages []Passage
	start := 0
	for {
		end := start + c.size
		if end >= len(runes) {
			passages = append(passages, Passage{Text: string(runes[start:]), Start: start})
			return passages
		}

		end = breakAtWhitespace(runes, start, end, c.overlap)
		passages = append(passages, Passage{Text: string(runes[start:end]), Start: start})

		next := end - c.overlap
		if next <= start {
			// Overlap would stall progress (e.g. a very early whitespace
			// break); step forward past the current passage instead.
			next = end
		}
		start = next
	}
}

// breakAtWhitespace backs the cut point up to just after the nearest
// whitespace rune, searching at most `window` runes back from the size
// target. If the window holds no whitespace the cut stays mid-word.
func breakAtWhitespace(runes []rune, start, end, window int) int {
	if unicode.IsSpace(runes[end]) || unicode.IsSpace(runes[end-1]) {
		return end
	}
	limit := end - window
	if limit < start+1 {
		limit = start + 1
	}
	for i := end - 1; i > limit; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return end
}

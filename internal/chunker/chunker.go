// Package chunker splits extracted document text into overlapping windows
// with deterministic boundaries. Boundaries prefer semantic breaks
// (paragraph, then line, then word) over mid-word cuts, falling back to a
// raw character split only when a single word exceeds the window.
package chunker

import (
	"fmt"
	"strings"

	qerrors "github.com/quarrydocs/quarry/internal/errors"
)

// Default window sizes, in characters. Chosen so a chunk holds roughly a
// paragraph or two of prose.
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 150
)

// separators is the boundary priority list: paragraph, line, space, raw.
var separators = []string{"\n\n", "\n", " "}

// Span is one chunk draft: a text window plus its character offsets into
// the original document. Offsets are rune-based and half-open [Start, End).
type Span struct {
	Text  string
	Start int
	End   int
	Seq   int
}

// Chunker splits text into overlapping spans.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. overlap must be smaller than size; violating
// that is a configuration error, not a runtime failure.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, qerrors.New(qerrors.ErrCodeChunkOverlap,
			fmt.Sprintf("chunk size must be positive, got %d", size), nil)
	}
	if overlap < 0 || overlap >= size {
		return nil, qerrors.New(qerrors.ErrCodeChunkOverlap,
			fmt.Sprintf("overlap %d must be in [0, %d)", overlap, size), nil)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the configured window size in characters.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap in characters.
func (c *Chunker) Overlap() int { return c.overlap }

// fragment is a half-open rune range into the source text, never longer
// than the window size.
type fragment struct {
	start int
	end   int
}

// Split splits text into ordered overlapping spans. The same input always
// yields the same boundaries. Empty or whitespace-only input produces no
// spans.
func (c *Chunker) Split(text string) []Span {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	frags := splitRange(runes, 0, len(runes), separators, c.size)
	return c.merge(runes, frags)
}

// splitRange recursively splits [start, end) into fragments no longer
// than size, preferring the highest-priority separator that applies.
// Separators stay attached to the preceding fragment so offsets remain
// contiguous.
func splitRange(runes []rune, start, end int, seps []string, size int) []fragment {
	if end-start <= size {
		return []fragment{{start, end}}
	}

	if len(seps) == 0 {
		// Raw character fallback for a single over-long word.
		var out []fragment
		for i := start; i < end; i += size {
			j := i + size
			if j > end {
				j = end
			}
			out = append(out, fragment{i, j})
		}
		return out
	}

	sep := []rune(seps[0])
	var pieces []fragment
	i := start
	for {
		idx := indexRunes(runes, i, end, sep)
		if idx < 0 {
			break
		}
		pieceEnd := idx + len(sep)
		pieces = append(pieces, fragment{i, pieceEnd})
		i = pieceEnd
	}
	if i < end {
		pieces = append(pieces, fragment{i, end})
	}

	if len(pieces) <= 1 {
		// Separator absent at this level; descend to the next one.
		return splitRange(runes, start, end, seps[1:], size)
	}

	var out []fragment
	for _, p := range pieces {
		if p.end-p.start > size {
			out = append(out, splitRange(runes, p.start, p.end, seps[1:], size)...)
		} else {
			out = append(out, p)
		}
	}
	return out
}

// indexRunes finds the first occurrence of sep in runes[from:to].
// Returns the absolute index or -1.
func indexRunes(runes []rune, from, to int, sep []rune) int {
	if len(sep) == 0 {
		return -1
	}
	for i := from; i+len(sep) <= to; i++ {
		match := true
		for j := range sep {
			if runes[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// merge greedily packs fragments into windows up to the configured size,
// then starts the next window far enough back to reuse at most overlap
// characters from the previous one.
func (c *Chunker) merge(runes []rune, frags []fragment) []Span {
	var spans []Span
	seq := 0
	i := 0
	for i < len(frags) {
		chunkStart := frags[i].start
		j := i
		chunkEnd := frags[i].end
		for j < len(frags) && frags[j].end-chunkStart <= c.size {
			chunkEnd = frags[j].end
			j++
		}
		if j == i {
			// Single fragment longer than size cannot happen after
			// splitRange, but guard against infinite loops anyway.
			chunkEnd = frags[i].end
			j = i + 1
		}

		text := string(runes[chunkStart:chunkEnd])
		if strings.TrimSpace(text) != "" {
			spans = append(spans, Span{
				Text:  text,
				Start: chunkStart,
				End:   chunkEnd,
				Seq:   seq,
			})
			seq++
		}

		if j >= len(frags) {
			break
		}

		// Walk back over the tail of this window while it fits the
		// overlap budget; the next window starts there.
		k := j
		for k > i+1 && chunkEnd-frags[k-1].start <= c.overlap {
			k--
		}
		i = k
	}
	return spans
}

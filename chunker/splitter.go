// Package chunker splits text into bounded, overlapping chunks.
//
// Text is first broken recursively on an ordered list of separators, from
// coarsest to finest, until every piece fits the chunk size. The pieces are
// then merged greedily into chunks, each new chunk starting with the tail of
// the previous one. Separators stay attached to the text they end, so the
// pieces always concatenate back to the input.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"ragassist/types"
)

// Sizes used by the indexing pipeline.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators go from paragraph breaks down to "" which splits between
// any two characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Segment is an emitted chunk together with the number of leading characters
// it repeats from the previous chunk.
type Segment struct {
	Text    string
	Overlap int
}

// Splitter is safe for concurrent use.
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

// New validates the parameters. A nil separator list selects DefaultSeparators.
func New(size, overlap int, separators []string) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", types.ErrChunking, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", types.ErrChunking, size, overlap)
	}
	if separators == nil {
		separators = DefaultSeparators
	}
	return &Splitter{
		size:       size,
		overlap:    overlap,
		separators: append([]string(nil), separators...),
	}, nil
}

// Split is a one-shot helper around New and (*Splitter).Split.
func Split(text string, size, overlap int, separators []string) ([]string, error) {
	s, err := New(size, overlap, separators)
	if err != nil {
		return nil, err
	}
	return s.Split(text), nil
}

func (s *Splitter) ChunkSize() int { return s.size }
func (s *Splitter) Overlap() int   { return s.overlap }

// Split returns the chunk texts in document order.
func (s *Splitter) Split(text string) []string {
	segments := s.Segments(text)
	out := make([]string, len(segments))
	for i, seg := range segments {
		out[i] = seg.Text
	}
	return out
}

// Segments splits text and reports the overlap carried into every chunk.
// Concatenating segments[0].Text with segments[i].Text[Overlap:] for the
// remaining segments (in characters) yields the original text.
func (s *Splitter) Segments(text string) []Segment {
	if text == "" {
		return nil
	}
	return s.merge(s.pieces(text, s.separators))
}

// pieces breaks text until every piece fits, or no separator is left.
func (s *Splitter) pieces(text string, separators []string) []string {
	if utf8.RuneCountInString(text) <= s.size {
		return []string{text}
	}

	for i, sep := range separators {
		if sep == "" {
			return strings.Split(text, "")
		}
		if !strings.Contains(text, sep) {
			continue
		}

		finer := separators[i+1:]
		var out []string
		for _, part := range strings.SplitAfter(text, sep) {
			if part == "" {
				continue
			}
			if utf8.RuneCountInString(part) <= s.size {
				out = append(out, part)
				continue
			}
			out = append(out, s.pieces(part, finer)...)
		}
		return out
	}

	// Nothing left to split on; emitted as an oversized chunk.
	return []string{text}
}

// merge works on bytes and counts characters the way utf8.RuneCountInString
// does, so invalid UTF-8 bytes pass through unchanged as one character each.
func (s *Splitter) merge(pieces []string) []Segment {
	var (
		out   []Segment
		buf   []byte
		n     int // characters in buf
		carry int // the first carry characters repeat the tail of the previous chunk
	)

	for _, piece := range pieces {
		pn := utf8.RuneCountInString(piece)

		if n+pn > s.size && n > carry {
			out = append(out, Segment{Text: string(buf), Overlap: carry})
			tail := min(s.overlap, n)
			buf = append([]byte(nil), lastChars(buf, tail)...)
			n, carry = tail, tail
		}

		if n+pn > s.size {
			// Only the carried tail is buffered; shorten it so the piece fits.
			keep := max(s.size-pn, 0)
			if keep < n {
				buf = append([]byte(nil), lastChars(buf, keep)...)
				n, carry = keep, keep
			}
		}

		buf = append(buf, piece...)
		n += pn
	}

	if n > carry {
		out = append(out, Segment{Text: string(buf), Overlap: carry})
	}
	return out
}

// lastChars returns the suffix of b holding its last k characters.
func lastChars(b []byte, k int) []byte {
	i := len(b)
	for ; k > 0 && i > 0; k-- {
		_, size := utf8.DecodeLastRune(b[:i])
		i -= size
	}
	return b[i:]
}

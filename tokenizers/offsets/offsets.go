// Package offsets implements a string that keeps track, for every one of its bytes, of the
// span of the original input it came from.
//
// Normalizers rewrite a Tracked string, pre-tokenizers slice it into pieces, and the
// pipeline maps the spans of the tokens produced by a model back into the original input
// with OriginalSpan.
package offsets

import (
	"unicode/utf8"

	"github.com/gomlx/go-tokenizers/tokenizers/api"
	"github.com/pkg/errors"
)

// Tracked is a string with a per-byte alignment to the original input.
//
// Each byte of the current (normalized) string maps to the span of the whole original
// character it was produced from, so a multi-byte character, or every character produced
// from it, maps to the full span of that character.
type Tracked struct {
	normalized string
	align      []api.TokenSpan

	// bounds is the original span covered by this string, used for empty strings.
	bounds api.TokenSpan
}

// New returns a Tracked with the identity alignment over s.
func New(s string) *Tracked {
	return NewAt(s, 0)
}

// NewAt returns a Tracked over s, where s starts at byte base of the original input.
func NewAt(s string, base int) *Tracked {
	t := &Tracked{
		normalized: s,
		align:      make([]api.TokenSpan, len(s)),
		bounds:     api.TokenSpan{Start: base, End: base + len(s)},
	}
	for pos := 0; pos < len(s); {
		// Invalid bytes decode as a 1-byte RuneError.
		_, size := utf8.DecodeRuneInString(s[pos:])
		span := api.TokenSpan{Start: base + pos, End: base + pos + size}
		for i := pos; i < pos+size; i++ {
			t.align[i] = span
		}
		pos += size
	}
	return t
}

// String returns the current (normalized) content.
func (t *Tracked) String() string {
	return t.normalized
}

// Len returns the length in bytes of the current content.
func (t *Tracked) Len() int {
	return len(t.normalized)
}

// IsEmpty returns whether the current content is empty.
func (t *Tracked) IsEmpty() bool {
	return len(t.normalized) == 0
}

// Bounds returns the span of the original input covered by t.
func (t *Tracked) Bounds() api.TokenSpan {
	return t.bounds
}

// OriginalSpan maps the byte range [start, end) of the current content to the span of
// the original input it was produced from.
//
// An empty range maps to an empty span at the corresponding original position.
func (t *Tracked) OriginalSpan(start, end int) api.TokenSpan {
	start = max(0, min(start, len(t.normalized)))
	end = max(start, min(end, len(t.normalized)))
	if start == end {
		var pos int
		switch {
		case start < len(t.align):
			pos = t.align[start].Start
		case len(t.align) > 0:
			pos = t.align[len(t.align)-1].End
		default:
			pos = t.bounds.Start
		}
		return api.TokenSpan{Start: pos, End: pos}
	}
	span := t.align[start]
	for _, a := range t.align[start+1 : end] {
		span = span.Union(a)
	}
	return span
}

// Slice returns a new Tracked with the byte range [start, end) of the current content,
// keeping the alignments to the original input.
func (t *Tracked) Slice(start, end int) *Tracked {
	start = max(0, min(start, len(t.normalized)))
	end = max(start, min(end, len(t.normalized)))
	align := make([]api.TokenSpan, end-start)
	copy(align, t.align[start:end])
	return &Tracked{
		normalized: t.normalized[start:end],
		align:      align,
		bounds:     t.OriginalSpan(start, end),
	}
}

// Chunk describes the replacement of the byte range [Start, End) of the current content by Text.
// An empty range is an insertion.
type Chunk struct {
	Start, End int
	Text       string
}

// Rewrite replaces the content with the concatenation of the chunks' texts.
//
// Chunks must be ordered, non-overlapping and cover the whole current content. Every byte of
// a chunk's text is aligned to the union of the original spans of the range it replaces.
// Inserted text (empty range) is aligned to the character it precedes, or the last
// character if inserted at the end.
func (t *Tracked) Rewrite(chunks []Chunk) error {
	var (
		size int
		pos  int
	)
	for i, c := range chunks {
		if c.Start != pos || c.End < c.Start || c.End > len(t.normalized) {
			return errors.Errorf("offsets: chunk #%d [%d, %d) does not continue at byte %d (content has %d bytes)",
				i, c.Start, c.End, pos, len(t.normalized))
		}
		pos = c.End
		size += len(c.Text)
	}
	if pos != len(t.normalized) {
		return errors.Errorf("offsets: chunks cover %d bytes out of %d", pos, len(t.normalized))
	}

	normalized := make([]byte, 0, size)
	align := make([]api.TokenSpan, 0, size)
	for _, c := range chunks {
		if c.Text == "" {
			continue
		}
		span := t.chunkSpan(c)
		normalized = append(normalized, c.Text...)
		for range len(c.Text) {
			align = append(align, span)
		}
	}
	t.normalized = string(normalized)
	t.align = align
	return nil
}

// chunkSpan returns the original span the text of c should be aligned to.
func (t *Tracked) chunkSpan(c Chunk) api.TokenSpan {
	if c.End > c.Start {
		return t.OriginalSpan(c.Start, c.End)
	}
	switch {
	case c.Start < len(t.align):
		return t.align[c.Start]
	case len(t.align) > 0:
		return t.align[len(t.align)-1]
	default:
		return api.TokenSpan{Start: t.bounds.Start, End: t.bounds.Start}
	}
}

// Transform replaces every character of the content by fn(r). Returning an empty string
// removes the character. The produced text is aligned to the span of the character it
// replaces.
func (t *Tracked) Transform(fn func(r rune) string) {
	chunks := t.runeChunks(func(r rune, _ string) string { return fn(r) })
	// Chunks are built from the content itself, so Rewrite can't fail.
	_ = t.Rewrite(chunks)
}

// Filter removes every character for which keep returns false.
func (t *Tracked) Filter(keep func(r rune) bool) {
	t.Transform(func(r rune) string {
		if keep(r) {
			return string(r)
		}
		return ""
	})
}

// Prepend inserts s at the start of the content, aligned to the first character.
func (t *Tracked) Prepend(s string) {
	if s == "" {
		return
	}
	_ = t.Rewrite(append([]Chunk{{Start: 0, End: 0, Text: s}}, t.wholeChunks()...))
}

// Append inserts s at the end of the content, aligned to the last character.
func (t *Tracked) Append(s string) {
	if s == "" {
		return
	}
	n := len(t.normalized)
	_ = t.Rewrite(append(t.wholeChunks(), Chunk{Start: n, End: n, Text: s}))
}

// wholeChunks returns one identity chunk per character.
func (t *Tracked) wholeChunks() []Chunk {
	return t.runeChunks(func(_ rune, text string) string { return text })
}

// runeChunks returns one chunk per character, with the text returned by fn for the
// character and its current encoding.
func (t *Tracked) runeChunks(fn func(r rune, text string) string) []Chunk {
	chunks := make([]Chunk, 0, len(t.normalized))
	for pos := 0; pos < len(t.normalized); {
		r, size := utf8.DecodeRuneInString(t.normalized[pos:])
		end := pos + size
		chunks = append(chunks, Chunk{Start: pos, End: end, Text: fn(r, t.normalized[pos:end])})
		pos = end
	}
	return chunks
}

// Trim removes the leading (if left) and trailing (if right) characters for which isCut returns true.
func (t *Tracked) Trim(left, right bool, isCut func(r rune) bool) {
	start, end := 0, len(t.normalized)
	if left {
		for start < end {
			r, size := utf8.DecodeRuneInString(t.normalized[start:])
			if !isCut(r) {
				break
			}
			start += size
		}
	}
	if right {
		for end > start {
			r, size := utf8.DecodeLastRuneInString(t.normalized[start:end])
			if !isCut(r) {
				break
			}
			end -= size
		}
	}
	if start == 0 && end == len(t.normalized) {
		return
	}
	*t = *t.Slice(start, end)
}

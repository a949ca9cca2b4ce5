package addedvocab

import "github.com/gomlx/go-tokenizers/tokenizers/api"

// Segment is a contiguous part of a text: either the span claimed by an added token, or a
// maximal run of normal text to be handled by the tokenization pipeline.
type Segment struct {
	Span api.TokenSpan

	// Added is true if the segment was claimed by the added token with id ID.
	Added bool
	ID    int
}

// Text returns the part of text covered by the segment.
func (s Segment) Text(text string) string {
	return text[s.Span.Start:s.Span.End]
}

// Split splits text in the segments defined by claims, which must be sorted and
// non-overlapping, as returned by Vocabulary.Match.
//
// The returned segments are ordered and partition [0, len(text)): concatenating their
// texts reproduces the input. Normal segments are never empty.
func Split(text string, claims []Claim) []Segment {
	segments := make([]Segment, 0, 2*len(claims)+1)
	pos := 0
	for _, c := range claims {
		if c.Span.Start > pos {
			segments = append(segments, Segment{Span: api.TokenSpan{Start: pos, End: c.Span.Start}})
		}
		segments = append(segments, Segment{Span: c.Span, Added: true, ID: c.ID})
		pos = c.Span.End
	}
	if pos < len(text) {
		segments = append(segments, Segment{Span: api.TokenSpan{Start: pos, End: len(text)}})
	}
	return segments
}

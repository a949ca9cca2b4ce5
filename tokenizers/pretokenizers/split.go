package pretokenizers

import (
	"unicode/utf8"

	"github.com/gomlx/go-tokenizers/tokenizers/api"
	"github.com/gomlx/go-tokenizers/tokenizers/offsets"
	"github.com/pkg/errors"
)

// Behavior defines what happens to the delimiters found when splitting.
type Behavior int

const (
	// Removed drops the delimiters.
	Removed Behavior = iota

	// Isolated keeps each delimiter as its own piece.
	Isolated

	// MergedWithPrevious appends each delimiter to the preceding piece.
	MergedWithPrevious

	// MergedWithNext prepends each delimiter to the following piece.
	MergedWithNext

	// Contiguous keeps delimiters as pieces, joining consecutive ones.
	Contiguous
)

var behaviorNames = map[string]Behavior{
	"Removed":            Removed,
	"Isolated":           Isolated,
	"MergedWithPrevious": MergedWithPrevious,
	"MergedWithNext":     MergedWithNext,
	"Contiguous":         Contiguous,
}

// ParseBehavior parses the behavior names used in tokenizer.json. An empty name is Removed.
func ParseBehavior(name string) (Behavior, error) {
	if name == "" {
		return Removed, nil
	}
	b, found := behaviorNames[name]
	if !found {
		return Removed, errors.Errorf("unknown split behavior %q", name)
	}
	return b, nil
}

// String implements fmt.Stringer.
func (b Behavior) String() string {
	for name, value := range behaviorNames {
		if value == b {
			return name
		}
	}
	return "Behavior(?)"
}

// part is a byte range of the text being split, flagged if it is a delimiter.
type part struct {
	span  api.TokenSpan
	delim bool
}

// splitByMatches splits t around the delimiters at the given (sorted, non-overlapping)
// spans of its content.
func splitByMatches(t *offsets.Tracked, matches []api.TokenSpan, behavior Behavior) []*offsets.Tracked {
	return slicePieces(t, applyBehavior(matchParts(matches, t.Len(), true), behavior))
}

// splitKeepingMatches splits t into the given (sorted, non-overlapping) spans of its content,
// each one a piece of its own: the text between them are the delimiters.
func splitKeepingMatches(t *offsets.Tracked, matches []api.TokenSpan, behavior Behavior) []*offsets.Tracked {
	return slicePieces(t, applyBehavior(matchParts(matches, t.Len(), false), behavior))
}

// matchParts partitions [0, length) into one part per match and one per gap between them.
// Matches are flagged as delimiters if matchIsDelim, otherwise the gaps are.
func matchParts(matches []api.TokenSpan, length int, matchIsDelim bool) []part {
	parts := make([]part, 0, 2*len(matches)+1)
	pos := 0
	for _, m := range matches {
		if m.Start > pos {
			parts = append(parts, part{span: api.TokenSpan{Start: pos, End: m.Start}, delim: !matchIsDelim})
		}
		parts = append(parts, part{span: m, delim: matchIsDelim})
		pos = m.End
	}
	if pos < length {
		parts = append(parts, part{span: api.TokenSpan{Start: pos, End: length}, delim: !matchIsDelim})
	}
	return parts
}

// splitByChars splits t around every character for which isDelim returns true.
func splitByChars(t *offsets.Tracked, isDelim func(r rune) bool, behavior Behavior) []*offsets.Tracked {
	return splitByMatches(t, charMatches(t.String(), isDelim), behavior)
}

// charMatches returns the span of every character of s for which isDelim returns true.
func charMatches(s string, isDelim func(r rune) bool) []api.TokenSpan {
	var matches []api.TokenSpan
	for pos := 0; pos < len(s); {
		r, size := utf8.DecodeRuneInString(s[pos:])
		if isDelim(r) {
			matches = append(matches, api.TokenSpan{Start: pos, End: pos + size})
		}
		pos += size
	}
	return matches
}

func applyBehavior(parts []part, behavior Behavior) []api.TokenSpan {
	var spans []api.TokenSpan
	switch behavior {
	case Removed:
		for _, p := range parts {
			if !p.delim {
				spans = append(spans, p.span)
			}
		}

	case Isolated:
		for _, p := range parts {
			spans = append(spans, p.span)
		}

	case MergedWithPrevious:
		previousDelim := false
		for _, p := range parts {
			if p.delim && !previousDelim && len(spans) > 0 {
				spans[len(spans)-1].End = p.span.End
			} else {
				spans = append(spans, p.span)
			}
			previousDelim = p.delim
		}

	case MergedWithNext:
		// Walk backwards, so delimiters can be merged to the already seen next piece.
		previousDelim := false
		for i := len(parts) - 1; i >= 0; i-- {
			p := parts[i]
			if p.delim && !previousDelim && len(spans) > 0 {
				spans[len(spans)-1].Start = p.span.Start
			} else {
				spans = append(spans, p.span)
			}
			previousDelim = p.delim
		}
		for i, j := 0, len(spans)-1; i < j; i, j = i+1, j-1 {
			spans[i], spans[j] = spans[j], spans[i]
		}

	case Contiguous:
		previousDelim := false
		for i, p := range parts {
			if i > 0 && p.delim && previousDelim {
				spans[len(spans)-1].End = p.span.End
			} else {
				spans = append(spans, p.span)
			}
			previousDelim = p.delim
		}
	}
	return spans
}

func slicePieces(t *offsets.Tracked, spans []api.TokenSpan) []*offsets.Tracked {
	pieces := make([]*offsets.Tracked, 0, len(spans))
	for _, s := range spans {
		if s.IsEmpty() {
			continue
		}
		pieces = append(pieces, t.Slice(s.Start, s.End))
	}
	return pieces
}

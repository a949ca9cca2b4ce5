package addedvocab

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gomlx/go-tokenizers/tokenizers/api"
)

// Claim is a span of text claimed by a matched added token.
//
// Span is the final span of the match, including any whitespace absorbed by LStrip/RStrip.
type Claim struct {
	ID   int
	Span api.TokenSpan
}

// MatchSet selects which added tokens Vocabulary.Match considers.
type MatchSet int

const (
	// MatchAll matches every added token, in registration order.
	MatchAll MatchSet = iota

	// MatchRaw matches only the tokens with Normalized=false: those matched against the raw input.
	MatchRaw

	// MatchNormalized matches only the tokens with Normalized=true.
	MatchNormalized
)

// Match returns the non-overlapping spans of text claimed by the selected added tokens,
// sorted by start.
//
// Tokens are processed one at a time in registration order, and each claims all its
// occurrences that don't overlap with previously claimed bytes, left to right. So when
// occurrences of two tokens overlap, the token registered first always wins, even if its
// occurrence starts later in the text.
func (v *Vocabulary) Match(text string, set MatchSet) []Claim {
	if text == "" || len(v.tokens) == 0 {
		return nil
	}
	m := &matching{
		text:    text,
		claimed: make([]bool, len(text)),
	}
	switch set {
	case MatchRaw:
		m.matchTokens(v.tokens, v.rawOrder)
	case MatchNormalized:
		m.matchTokens(v.tokens, v.normalizedOrder)
	default:
		for i := range v.tokens {
			m.matchToken(v.tokens[i])
		}
	}
	slices.SortFunc(m.claims, func(a, b Claim) int {
		return a.Span.Start - b.Span.Start
	})
	return m.claims
}

// matching holds the state of one Match call.
type matching struct {
	text    string
	claimed []bool
	claims  []Claim
}

func (m *matching) matchTokens(tokens []AddedToken, order []int) {
	for _, idx := range order {
		m.matchToken(tokens[idx])
	}
}

// matchToken claims every acceptable occurrence of tok that lies in unclaimed bytes.
func (m *matching) matchToken(tok AddedToken) {
	content := tok.Content
	if !strings.Contains(m.text, content) {
		return
	}
	for pos := 0; pos <= len(m.text)-len(content); {
		idx := strings.Index(m.text[pos:], content)
		if idx < 0 {
			return
		}
		start := pos + idx
		end := start + len(content)
		if m.isClaimed(start, end) || (tok.SingleWord && !m.isWordBoundary(start, end)) {
			// Look for the next occurrence starting at the next byte: occurrences of a
			// valid UTF-8 content can only start at character boundaries.
			pos = start + 1
			continue
		}
		span := api.TokenSpan{Start: start, End: end}
		if tok.LStrip {
			span.Start = m.extendLeft(start)
		}
		if tok.RStrip {
			span.End = m.extendRight(end)
		}
		for i := span.Start; i < span.End; i++ {
			m.claimed[i] = true
		}
		m.claims = append(m.claims, Claim{ID: tok.ID, Span: span})
		pos = span.End
	}
}

func (m *matching) isClaimed(start, end int) bool {
	return slices.Contains(m.claimed[start:end], true)
}

// isWordBoundary returns whether the text at [start, end) is not preceded nor followed by a
// word character. The string boundaries count as non-word.
func (m *matching) isWordBoundary(start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(m.text[:start])
		if isWordChar(r) {
			return false
		}
	}
	if end < len(m.text) {
		r, _ := utf8.DecodeRuneInString(m.text[end:])
		if isWordChar(r) {
			return false
		}
	}
	return true
}

// extendLeft returns the start of the contiguous unclaimed whitespace preceding pos.
func (m *matching) extendLeft(pos int) int {
	for pos > 0 {
		r, size := utf8.DecodeLastRuneInString(m.text[:pos])
		if !unicode.IsSpace(r) || m.isClaimed(pos-size, pos) {
			break
		}
		pos -= size
	}
	return pos
}

// extendRight returns the end of the contiguous unclaimed whitespace following pos.
func (m *matching) extendRight(pos int) int {
	for pos < len(m.text) {
		r, size := utf8.DecodeRuneInString(m.text[pos:])
		if !unicode.IsSpace(r) || m.isClaimed(pos, pos+size) {
			break
		}
		pos += size
	}
	return pos
}

// isWordChar reports whether r is a letter, a digit or an underscore.
func isWordChar(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

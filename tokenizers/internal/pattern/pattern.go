// Package pattern implements the string or regular expression patterns used by the
// Replace and Split components of tokenizer.json.
//
// Regular expressions use github.com/dlclark/regexp2, which supports the look-around
// assertions used by the GPT-2 family of pre-tokenizers.
package pattern

import (
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
	"github.com/gomlx/go-tokenizers/tokenizers/api"
	"github.com/pkg/errors"
)

// Pattern matches either a literal string or a regular expression.
// It is safe for concurrent use.
type Pattern struct {
	literal string
	re      *regexp2.Regexp
}

// Literal returns a pattern matching s exactly.
func Literal(s string) *Pattern {
	return &Pattern{literal: s}
}

// Regex compiles expr into a pattern.
func Regex(expr string) (*Pattern, error) {
	re, err := regexp2.Compile(expr, regexp2.None)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to compile regular expression %q", expr)
	}
	return &Pattern{re: re}, nil
}

// MustRegex is like Regex but panics on error. Used for package level patterns.
func MustRegex(expr string) *Pattern {
	p, err := Regex(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// New returns a pattern from the "String"/"Regex" pair used in tokenizer.json: exactly one
// of them is expected to be set.
func New(literal, regex string) (*Pattern, error) {
	switch {
	case regex != "":
		return Regex(regex)
	case literal != "":
		return Literal(literal), nil
	default:
		return nil, errors.New("pattern must have either a String or a Regex")
	}
}

// String returns the pattern source.
func (p *Pattern) String() string {
	if p.re != nil {
		return p.re.String()
	}
	return p.literal
}

// FindAll returns the byte spans of all non-overlapping non-empty matches in s, left to right.
func (p *Pattern) FindAll(s string) []api.TokenSpan {
	if p.re == nil {
		return p.findLiteral(s)
	}
	return p.findRegex(s)
}

func (p *Pattern) findLiteral(s string) []api.TokenSpan {
	if p.literal == "" {
		return nil
	}
	var spans []api.TokenSpan
	for pos := 0; pos < len(s); {
		idx := strings.Index(s[pos:], p.literal)
		if idx < 0 {
			break
		}
		start := pos + idx
		spans = append(spans, api.TokenSpan{Start: start, End: start + len(p.literal)})
		pos = start + len(p.literal)
	}
	return spans
}

func (p *Pattern) findRegex(s string) []api.TokenSpan {
	// regexp2 reports positions in runes: byteAt maps rune indices to byte offsets.
	runes := []rune(s)
	byteAt := make([]int, len(runes)+1)
	pos := 0
	for i := range runes {
		byteAt[i] = pos
		_, size := utf8.DecodeRuneInString(s[pos:])
		pos += size
	}
	byteAt[len(runes)] = len(s)

	var spans []api.TokenSpan
	m, err := p.re.FindRunesMatch(runes)
	for err == nil && m != nil {
		if m.Length > 0 {
			spans = append(spans, api.TokenSpan{Start: byteAt[m.Index], End: byteAt[m.Index+m.Length]})
		}
		m, err = p.re.FindNextMatch(m)
	}
	return spans
}

// ReplaceAll returns s with every match replaced by content, as a list of chunks
// (byte range of s, replacement text) covering s, suitable for offsets.Tracked.Rewrite.
func (p *Pattern) ReplaceAll(s, content string) []Replacement {
	var out []Replacement
	pos := 0
	for _, span := range p.FindAll(s) {
		if span.Start > pos {
			out = append(out, Replacement{Span: api.TokenSpan{Start: pos, End: span.Start}, Text: s[pos:span.Start]})
		}
		out = append(out, Replacement{Span: span, Text: content})
		pos = span.End
	}
	if pos < len(s) {
		out = append(out, Replacement{Span: api.TokenSpan{Start: pos, End: len(s)}, Text: s[pos:]})
	}
	return out
}

// Replacement is a byte range of a string and the text that replaces it.
type Replacement struct {
	Span api.TokenSpan
	Text string
}

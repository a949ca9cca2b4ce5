// Package pretokenizers implements the pre-tokenizers of a tokenization pipeline: they split
// the normalized text in pieces (roughly words) that are tokenized independently by the model.
//
// Pieces are offsets.Tracked slices of the input, so the spans of the tokens produced for a
// piece can be mapped back to the original text.
package pretokenizers

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gomlx/go-tokenizers/tokenizers/internal/bytelevel"
	"github.com/gomlx/go-tokenizers/tokenizers/internal/pattern"
	"github.com/gomlx/go-tokenizers/tokenizers/offsets"
	"github.com/pkg/errors"
)

// PreTokenizer splits a text in pieces. Pieces are ordered and don't overlap.
type PreTokenizer interface {
	PreTokenize(t *offsets.Tracked) ([]*offsets.Tracked, error)
}

// Compile time assert that all pre-tokenizers implement the PreTokenizer interface.
var (
	_ PreTokenizer = (*ByteLevel)(nil)
	_ PreTokenizer = Whitespace{}
	_ PreTokenizer = WhitespaceSplit{}
	_ PreTokenizer = Bert{}
	_ PreTokenizer = (*Metaspace)(nil)
	_ PreTokenizer = Punctuation{}
	_ PreTokenizer = Digits{}
	_ PreTokenizer = (*Split)(nil)
	_ PreTokenizer = Sequence{}
)

// GPT2Pattern is the regular expression used by GPT-2 to split text in words.
const GPT2Pattern = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`

var gpt2Pattern = pattern.MustRegex(GPT2Pattern)

// ByteLevel splits the text with the GPT-2 regular expression, and replaces every byte
// by its printable character (see package bytelevel), so byte-level BPE can handle any input.
type ByteLevel struct {
	// AddPrefixSpace adds a space to the start of the text, if it doesn't start with one,
	// so the first word is handled like any other.
	AddPrefixSpace bool

	// UseRegex enables splitting with the GPT-2 regular expression.
	UseRegex bool
}

// NewByteLevel returns a ByteLevel pre-tokenizer with the GPT-2 regular expression enabled.
func NewByteLevel(addPrefixSpace bool) *ByteLevel {
	return &ByteLevel{AddPrefixSpace: addPrefixSpace, UseRegex: true}
}

// PreTokenize implements PreTokenizer.
func (b *ByteLevel) PreTokenize(t *offsets.Tracked) ([]*offsets.Tracked, error) {
	if b.AddPrefixSpace && !strings.HasPrefix(t.String(), " ") {
		t.Prepend(" ")
	}
	pieces := []*offsets.Tracked{t}
	if b.UseRegex {
		pieces = splitByMatches(t, gpt2Pattern.FindAll(t.String()), Isolated)
	}
	for _, piece := range pieces {
		if err := encodeBytes(piece); err != nil {
			return nil, err
		}
	}
	return pieces, nil
}

// encodeBytes replaces every byte of t by its byte-level character. All characters
// produced from the bytes of one character are aligned to that character.
func encodeBytes(t *offsets.Tracked) error {
	s := t.String()
	chunks := make([]offsets.Chunk, 0, len(s))
	for pos := 0; pos < len(s); {
		_, size := utf8.DecodeRuneInString(s[pos:])
		chunks = append(chunks, offsets.Chunk{Start: pos, End: pos + size, Text: bytelevel.Encode(s[pos : pos+size])})
		pos += size
	}
	return errors.WithMessage(t.Rewrite(chunks), "byte-level encoding")
}

// Whitespace splits on whitespace and punctuation: it keeps the runs of word characters and the
// runs of other non-whitespace characters.
type Whitespace struct{}

var wordsPattern = pattern.MustRegex(`\w+|[^\w\s]+`)

// PreTokenize implements PreTokenizer.
func (Whitespace) PreTokenize(t *offsets.Tracked) ([]*offsets.Tracked, error) {
	return splitKeepingMatches(t, wordsPattern.FindAll(t.String()), Removed), nil
}

// WhitespaceSplit splits on whitespace only.
type WhitespaceSplit struct{}

// PreTokenize implements PreTokenizer.
func (WhitespaceSplit) PreTokenize(t *offsets.Tracked) ([]*offsets.Tracked, error) {
	return splitByChars(t, unicode.IsSpace, Removed), nil
}

// Bert splits on whitespace, and isolates every punctuation character.
type Bert struct{}

// PreTokenize implements PreTokenizer.
func (Bert) PreTokenize(t *offsets.Tracked) ([]*offsets.Tracked, error) {
	var pieces []*offsets.Tracked
	for _, word := range splitByChars(t, unicode.IsSpace, Removed) {
		pieces = append(pieces, splitByChars(word, isPunctuation, Isolated)...)
	}
	return pieces, nil
}

// Punctuation splits around punctuation characters.
type Punctuation struct {
	Behavior Behavior
}

// PreTokenize implements PreTokenizer.
func (p Punctuation) PreTokenize(t *offsets.Tracked) ([]*offsets.Tracked, error) {
	return splitByChars(t, isPunctuation, p.Behavior), nil
}

// Digits splits numbers from the rest of the text.
type Digits struct {
	// IndividualDigits isolates every digit, instead of keeping runs of digits together.
	IndividualDigits bool
}

// PreTokenize implements PreTokenizer.
func (d Digits) PreTokenize(t *offsets.Tracked) ([]*offsets.Tracked, error) {
	behavior := Contiguous
	if d.IndividualDigits {
		behavior = Isolated
	}
	return splitByChars(t, unicode.IsDigit, behavior), nil
}

// PrependScheme defines when Metaspace adds the replacement character to the start of the text.
type PrependScheme int

const (
	// PrependAlways adds the replacement to every piece of text not starting with it.
	PrependAlways PrependScheme = iota

	// PrependFirst only adds the replacement at the start of the input.
	PrependFirst

	// PrependNever never adds the replacement.
	PrependNever
)

// ParsePrependScheme parses the prepend_scheme names used in tokenizer.json.
func ParsePrependScheme(name string) (PrependScheme, error) {
	switch name {
	case "always", "":
		return PrependAlways, nil
	case "first":
		return PrependFirst, nil
	case "never":
		return PrependNever, nil
	}
	return PrependAlways, errors.Errorf("unknown Metaspace prepend_scheme %q", name)
}

// DefaultReplacement is the "▁" (U+2581) character used by SentencePiece to mark spaces.
const DefaultReplacement = "▁"

// Metaspace replaces spaces with a replacement character (usually "▁"), and splits the text
// before every replacement.
type Metaspace struct {
	Replacement   string
	PrependScheme PrependScheme

	// Split the text in words starting with the replacement.
	Split bool
}

// NewMetaspace returns a Metaspace pre-tokenizer with the "▁" replacement.
func NewMetaspace(scheme PrependScheme, split bool) *Metaspace {
	return &Metaspace{Replacement: DefaultReplacement, PrependScheme: scheme, Split: split}
}

// PreTokenize implements PreTokenizer.
func (m *Metaspace) PreTokenize(t *offsets.Tracked) ([]*offsets.Tracked, error) {
	if t.IsEmpty() {
		return nil, nil
	}
	replacement := m.Replacement
	if replacement == "" {
		replacement = DefaultReplacement
	}
	t.Transform(func(r rune) string {
		if r == ' ' {
			return replacement
		}
		return string(r)
	})
	if !strings.HasPrefix(t.String(), replacement) {
		switch m.PrependScheme {
		case PrependAlways:
			t.Prepend(replacement)
		case PrependFirst:
			if t.Bounds().Start == 0 {
				t.Prepend(replacement)
			}
		}
	}
	if !m.Split {
		return []*offsets.Tracked{t}, nil
	}
	return splitByMatches(t, pattern.Literal(replacement).FindAll(t.String()), MergedWithNext), nil
}

// Split splits the text with a pattern.
type Split struct {
	Pattern  *pattern.Pattern
	Behavior Behavior

	// Invert makes the pattern match the pieces, instead of the delimiters.
	Invert bool
}

// PreTokenize implements PreTokenizer.
func (s *Split) PreTokenize(t *offsets.Tracked) ([]*offsets.Tracked, error) {
	matches := s.Pattern.FindAll(t.String())
	if s.Invert {
		return splitKeepingMatches(t, matches, s.Behavior), nil
	}
	return splitByMatches(t, matches, s.Behavior), nil
}

// Sequence applies pre-tokenizers in order, each one to the pieces produced by the previous.
type Sequence []PreTokenizer

// PreTokenize implements PreTokenizer.
func (s Sequence) PreTokenize(t *offsets.Tracked) ([]*offsets.Tracked, error) {
	pieces := []*offsets.Tracked{t}
	for i, pt := range s {
		var next []*offsets.Tracked
		for _, piece := range pieces {
			split, err := pt.PreTokenize(piece)
			if err != nil {
				return nil, errors.WithMessagef(err, "pre-tokenizer #%d of sequence", i)
			}
			next = append(next, split...)
		}
		pieces = next
	}
	return pieces, nil
}

// Strings returns the content of the pieces text is split into. Mostly useful for debugging and tests.
func Strings(pt PreTokenizer, text string) ([]string, error) {
	pieces, err := pt.PreTokenize(offsets.New(text))
	if err != nil {
		return nil, err
	}
	result := make([]string, len(pieces))
	for i, p := range pieces {
		result[i] = p.String()
	}
	return result, nil
}

func isPunctuation(r rune) bool {
	// ASCII symbols are all treated as punctuation.
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

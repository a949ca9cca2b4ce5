// Package normalizers implements the text normalizers of a tokenization pipeline.
//
// Normalizers rewrite an offsets.Tracked string in place, so every normalized character
// keeps track of the original characters it came from.
package normalizers

import (
	"unicode"

	"github.com/gomlx/go-tokenizers/tokenizers/internal/pattern"
	"github.com/gomlx/go-tokenizers/tokenizers/offsets"
	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Normalizer rewrites text, keeping the alignment to the original input.
type Normalizer interface {
	Normalize(t *offsets.Tracked) error
}

// Compile time assert that all normalizers implement the Normalizer interface.
var (
	_ Normalizer = Lowercase{}
	_ Normalizer = Unicode{}
	_ Normalizer = StripAccents{}
	_ Normalizer = Strip{}
	_ Normalizer = (*Replace)(nil)
	_ Normalizer = Prepend{}
	_ Normalizer = Bert{}
	_ Normalizer = Sequence{}
)

// Lowercase lowers the case of all characters.
type Lowercase struct{}

// Normalize implements Normalizer.
func (Lowercase) Normalize(t *offsets.Tracked) error {
	// A cases.Caser is stateful: create one per call.
	caser := cases.Lower(language.Und)
	t.Transform(func(r rune) string {
		if r < unicode.MaxASCII {
			return string(unicode.ToLower(r))
		}
		return caser.String(string(r))
	})
	return nil
}

// Unicode applies one of the unicode normalization forms (NFC, NFD, NFKC or NFKD).
type Unicode struct {
	Form norm.Form
}

var (
	NFC  = Unicode{Form: norm.NFC}
	NFD  = Unicode{Form: norm.NFD}
	NFKC = Unicode{Form: norm.NFKC}
	NFKD = Unicode{Form: norm.NFKD}
)

// Normalize implements Normalizer.
//
// The text is processed one normalization segment at a time, and every produced segment is
// aligned to the original segment it came from.
func (u Unicode) Normalize(t *offsets.Tracked) error {
	s := t.String()
	if u.Form.IsNormalString(s) {
		return nil
	}
	var (
		it     norm.Iter
		chunks []offsets.Chunk
	)
	it.InitString(u.Form, s)
	for !it.Done() {
		start := it.Pos()
		segment := string(it.Next())
		chunks = append(chunks, offsets.Chunk{Start: start, End: it.Pos(), Text: segment})
	}
	return errors.WithMessagef(t.Rewrite(chunks), "unicode normalization")
}

// StripAccents removes the non-spacing marks (unicode category Mn). It's usually used after
// NFD or NFKD, which decompose accented characters.
type StripAccents struct{}

// Normalize implements Normalizer.
func (StripAccents) Normalize(t *offsets.Tracked) error {
	t.Filter(func(r rune) bool { return !unicode.Is(unicode.Mn, r) })
	return nil
}

// Strip removes the leading (Left) and trailing (Right) whitespace.
type Strip struct {
	Left, Right bool
}

// Normalize implements Normalizer.
func (s Strip) Normalize(t *offsets.Tracked) error {
	t.Trim(s.Left, s.Right, unicode.IsSpace)
	return nil
}

// Replace replaces every match of a pattern by Content.
type Replace struct {
	Pattern *pattern.Pattern
	Content string
}

// NewReplace creates a Replace normalizer for the String/Regex pattern pair of tokenizer.json.
func NewReplace(literal, regex, content string) (*Replace, error) {
	p, err := pattern.New(literal, regex)
	if err != nil {
		return nil, errors.WithMessage(err, "Replace normalizer")
	}
	return &Replace{Pattern: p, Content: content}, nil
}

// Normalize implements Normalizer.
func (r *Replace) Normalize(t *offsets.Tracked) error {
	replacements := r.Pattern.ReplaceAll(t.String(), r.Content)
	chunks := make([]offsets.Chunk, len(replacements))
	for i, rep := range replacements {
		chunks[i] = offsets.Chunk{Start: rep.Span.Start, End: rep.Span.End, Text: rep.Text}
	}
	return errors.WithMessagef(t.Rewrite(chunks), "replacing %q", r.Pattern)
}

// Prepend adds Prefix to the start of any non-empty text.
type Prepend struct {
	Prefix string
}

// Normalize implements Normalizer.
func (p Prepend) Normalize(t *offsets.Tracked) error {
	if !t.IsEmpty() {
		t.Prepend(p.Prefix)
	}
	return nil
}

// Bert is the normalizer used by BERT models.
type Bert struct {
	// CleanText removes control characters and replaces all whitespace by a plain space.
	CleanText bool

	// HandleChineseChars puts spaces around CJK ideographs.
	HandleChineseChars bool

	// StripAccents removes accents. If nil, it follows Lowercase.
	StripAccents *bool

	Lowercase bool
}

// Normalize implements Normalizer.
func (b Bert) Normalize(t *offsets.Tracked) error {
	if b.CleanText {
		t.Transform(func(r rune) string {
			switch {
			case r == 0 || r == unicode.ReplacementChar || isControl(r):
				return ""
			case isWhitespace(r):
				return " "
			default:
				return string(r)
			}
		})
	}
	if b.HandleChineseChars {
		t.Transform(func(r rune) string {
			if isChineseChar(r) {
				return " " + string(r) + " "
			}
			return string(r)
		})
	}
	stripAccents := b.Lowercase
	if b.StripAccents != nil {
		stripAccents = *b.StripAccents
	}
	if stripAccents {
		if err := NFD.Normalize(t); err != nil {
			return err
		}
		if err := (StripAccents{}).Normalize(t); err != nil {
			return err
		}
	}
	if b.Lowercase {
		return Lowercase{}.Normalize(t)
	}
	return nil
}

// Sequence applies normalizers in order.
type Sequence []Normalizer

// Normalize implements Normalizer.
func (s Sequence) Normalize(t *offsets.Tracked) error {
	for i, n := range s {
		if err := n.Normalize(t); err != nil {
			return errors.WithMessagef(err, "normalizer #%d of sequence", i)
		}
	}
	return nil
}

// String returns the result of normalizing text with n, without the alignments.
// Mostly useful for debugging and tests.
func String(n Normalizer, text string) (string, error) {
	t := offsets.New(text)
	if err := n.Normalize(t); err != nil {
		return "", err
	}
	return t.String(), nil
}

func isWhitespace(r rune) bool {
	if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r) || unicode.In(r, unicode.Cf, unicode.Co, unicode.Cs)
}

// isChineseChar reports whether r is in one of the CJK Unified Ideographs blocks.
func isChineseChar(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF,
		r >= 0x3400 && r <= 0x4DBF,
		r >= 0x20000 && r <= 0x2A6DF,
		r >= 0x2A700 && r <= 0x2B73F,
		r >= 0x2B740 && r <= 0x2B81F,
		r >= 0x2B820 && r <= 0x2CEAF,
		r >= 0xF900 && r <= 0xFAFF,
		r >= 0x2F800 && r <= 0x2FA1F:
		return true
	}
	return false
}

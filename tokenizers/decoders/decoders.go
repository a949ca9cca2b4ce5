// Package decoders implements the decoders of a tokenization pipeline, which convert the
// tokens produced by a model back to text, undoing the pre-tokenizer and model markers.
//
// Decoders work as a chain: each one transforms the list of token strings, and the final
// text is the concatenation of the resulting strings.
package decoders

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gomlx/go-tokenizers/tokenizers/internal/bytelevel"
	"github.com/gomlx/go-tokenizers/tokenizers/internal/pattern"
	"github.com/pkg/errors"
)

// Decoder converts tokens back to text.
//
// atStart tells whether the tokens start the decoded output: the decoded ids may be
// interleaved with added tokens, and markers like the prefix space are only removed at the
// very start of the output.
type Decoder interface {
	Decode(tokens []string, atStart bool) (string, error)
}

// Step is a decoder that can be chained in a Sequence.
type Step interface {
	Decoder
	DecodeChain(tokens []string, atStart bool) ([]string, error)
}

// Compile time assert that all decoders implement the Step interface.
var (
	_ Step = ByteLevel{}
	_ Step = WordPiece{}
	_ Step = Metaspace{}
	_ Step = BPEDecoder{}
	_ Step = (*Replace)(nil)
	_ Step = Strip{}
	_ Step = ByteFallback{}
	_ Step = Fuse{}
	_ Step = Sequence{}
)

func decode(s Step, tokens []string, atStart bool) (string, error) {
	chain, err := s.DecodeChain(tokens, atStart)
	if err != nil {
		return "", err
	}
	return strings.Join(chain, ""), nil
}

// ByteLevel maps the byte-level characters back to bytes. Invalid UTF-8 is replaced by U+FFFD.
type ByteLevel struct{}

// Decode implements Decoder.
func (d ByteLevel) Decode(tokens []string, atStart bool) (string, error) {
	return decode(d, tokens, atStart)
}

// DecodeChain implements Step. It returns a single string.
func (ByteLevel) DecodeChain(tokens []string, _ bool) ([]string, error) {
	text := bytelevel.Decode(strings.Join(tokens, ""))
	return []string{strings.ToValidUTF8(text, string(utf8.RuneError))}, nil
}

// WordPiece joins the words with spaces, removing the continuing subword prefix.
type WordPiece struct {
	Prefix string

	// Cleanup removes the spaces before punctuation and in English contractions.
	Cleanup bool
}

// Decode implements Decoder.
func (d WordPiece) Decode(tokens []string, atStart bool) (string, error) {
	return decode(d, tokens, atStart)
}

// DecodeChain implements Step.
func (d WordPiece) DecodeChain(tokens []string, atStart bool) ([]string, error) {
	prefix := d.Prefix
	if prefix == "" {
		prefix = "##"
	}
	result := make([]string, len(tokens))
	for i, token := range tokens {
		if i > 0 || !atStart {
			if strings.HasPrefix(token, prefix) {
				token = strings.Replace(token, prefix, "", 1)
			} else {
				token = " " + token
			}
		}
		if d.Cleanup {
			token = cleanup(token)
		}
		result[i] = token
	}
	return result, nil
}

var cleanupReplacer = strings.NewReplacer(
	" .", ".",
	" ?", "?",
	" !", "!",
	" ,", ",",
	" ' ", "'",
	" n't", "n't",
	" 'm", "'m",
	" do not", " don't",
	" 's", "'s",
	" 've", "'ve",
	" 're", "'re",
)

func cleanup(s string) string {
	return cleanupReplacer.Replace(s)
}

// Metaspace replaces the replacement character ("▁") by spaces, and removes the prefix space
// at the start of the output.
type Metaspace struct {
	Replacement string

	// AddPrefixSpace tells whether the pre-tokenizer added a prefix space, to be removed.
	AddPrefixSpace bool
}

// Decode implements Decoder.
func (d Metaspace) Decode(tokens []string, atStart bool) (string, error) {
	return decode(d, tokens, atStart)
}

// DecodeChain implements Step.
func (d Metaspace) DecodeChain(tokens []string, atStart bool) ([]string, error) {
	replacement := d.Replacement
	if replacement == "" {
		replacement = "▁"
	}
	result := make([]string, len(tokens))
	for i, token := range tokens {
		token = strings.ReplaceAll(token, replacement, " ")
		if i == 0 && atStart && d.AddPrefixSpace {
			token = strings.TrimPrefix(token, " ")
		}
		result[i] = token
	}
	return result, nil
}

// BPEDecoder replaces the end-of-word suffix by spaces.
type BPEDecoder struct {
	Suffix string
}

// Decode implements Decoder.
func (d BPEDecoder) Decode(tokens []string, atStart bool) (string, error) {
	return decode(d, tokens, atStart)
}

// DecodeChain implements Step.
func (d BPEDecoder) DecodeChain(tokens []string, _ bool) ([]string, error) {
	suffix := d.Suffix
	if suffix == "" {
		suffix = "</w>"
	}
	result := make([]string, len(tokens))
	for i, token := range tokens {
		separator := " "
		if i == len(tokens)-1 {
			separator = ""
		}
		result[i] = strings.ReplaceAll(token, suffix, separator)
	}
	return result, nil
}

// Replace replaces a pattern in every token.
type Replace struct {
	Pattern *pattern.Pattern
	Content string
}

// NewReplace creates a Replace decoder for the String/Regex pattern pair of tokenizer.json.
func NewReplace(literal, regex, content string) (*Replace, error) {
	p, err := pattern.New(literal, regex)
	if err != nil {
		return nil, errors.WithMessage(err, "Replace decoder")
	}
	return &Replace{Pattern: p, Content: content}, nil
}

// Decode implements Decoder.
func (d *Replace) Decode(tokens []string, atStart bool) (string, error) {
	return decode(d, tokens, atStart)
}

// DecodeChain implements Step.
func (d *Replace) DecodeChain(tokens []string, _ bool) ([]string, error) {
	result := make([]string, len(tokens))
	for i, token := range tokens {
		var sb strings.Builder
		for _, r := range d.Pattern.ReplaceAll(token, d.Content) {
			sb.WriteString(r.Text)
		}
		result[i] = sb.String()
	}
	return result, nil
}

// Strip removes up to Start leading and Stop trailing occurrences of Content from every token.
type Strip struct {
	Content     rune
	Start, Stop int
}

// Decode implements Decoder.
func (d Strip) Decode(tokens []string, atStart bool) (string, error) {
	return decode(d, tokens, atStart)
}

// DecodeChain implements Step.
func (d Strip) DecodeChain(tokens []string, _ bool) ([]string, error) {
	content := string(d.Content)
	result := make([]string, len(tokens))
	for i, token := range tokens {
		for range d.Start {
			trimmed, found := strings.CutPrefix(token, content)
			if !found {
				break
			}
			token = trimmed
		}
		for range d.Stop {
			trimmed, found := strings.CutSuffix(token, content)
			if !found {
				break
			}
			token = trimmed
		}
		result[i] = token
	}
	return result, nil
}

// ByteFallback converts the runs of "<0xXX>" byte tokens to text. Runs that are not valid
// UTF-8 become one U+FFFD per byte.
type ByteFallback struct{}

// Decode implements Decoder.
func (d ByteFallback) Decode(tokens []string, atStart bool) (string, error) {
	return decode(d, tokens, atStart)
}

// DecodeChain implements Step.
func (ByteFallback) DecodeChain(tokens []string, _ bool) ([]string, error) {
	result := make([]string, 0, len(tokens))
	var pending []byte
	flush := func() {
		if len(pending) == 0 {
			return
		}
		if utf8.Valid(pending) {
			result = append(result, string(pending))
		} else {
			for range pending {
				result = append(result, string(utf8.RuneError))
			}
		}
		pending = pending[:0]
	}
	for _, token := range tokens {
		if b, ok := parseByteToken(token); ok {
			pending = append(pending, b)
			continue
		}
		flush()
		result = append(result, token)
	}
	flush()
	return result, nil
}

// parseByteToken parses tokens like "<0x0A>".
func parseByteToken(token string) (byte, bool) {
	if len(token) != 6 || !strings.HasPrefix(token, "<0x") || token[5] != '>' {
		return 0, false
	}
	b, err := strconv.ParseUint(token[3:5], 16, 8)
	if err != nil {
		return 0, false
	}
	return byte(b), true
}

// Fuse joins all tokens in one.
type Fuse struct{}

// Decode implements Decoder.
func (d Fuse) Decode(tokens []string, atStart bool) (string, error) {
	return decode(d, tokens, atStart)
}

// DecodeChain implements Step.
func (Fuse) DecodeChain(tokens []string, _ bool) ([]string, error) {
	return []string{strings.Join(tokens, "")}, nil
}

// Sequence chains decoders, in order.
type Sequence []Step

// Decode implements Decoder.
func (d Sequence) Decode(tokens []string, atStart bool) (string, error) {
	return decode(d, tokens, atStart)
}

// DecodeChain implements Step.
func (d Sequence) DecodeChain(tokens []string, atStart bool) ([]string, error) {
	var err error
	for i, step := range d {
		tokens, err = step.DecodeChain(tokens, atStart)
		if err != nil {
			return nil, errors.WithMessagef(err, "decoder #%d of sequence", i)
		}
	}
	return tokens, nil
}

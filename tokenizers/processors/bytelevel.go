package processors

import (
	"unicode"
	"unicode/utf8"

	"github.com/gomlx/go-tokenizers/tokenizers/api"
	"github.com/gomlx/go-tokenizers/tokenizers/internal/bytelevel"
	"github.com/pkg/errors"
)

// SequenceProcessor is implemented by post-processors that transform each sequence on its
// own, without combining them. They can be chained in a Chain before the post-processor
// that adds the special tokens.
type SequenceProcessor interface {
	ProcessSequence(enc *api.EncodingResult)
}

// Compile time assert that ByteLevel and Chain implement the PostProcessor interface.
var (
	_ PostProcessor     = ByteLevel{}
	_ SequenceProcessor = ByteLevel{}
	_ PostProcessor     = Chain{}
)

// ByteLevel is the post-processor of byte-level BPE tokenizers (GPT-2, RoBERTa).
//
// With TrimOffsets, the spans of tokens starting or ending with (byte-level encoded)
// whitespace are shrunk to exclude it, so "Ġsaw" covers "saw" and not " saw".
type ByteLevel struct {
	TrimOffsets bool

	// AddPrefixSpace tells the pre-tokenizer added a space at the start of the text: a single
	// leading space of the first token is then kept, since it covers a real character.
	AddPrefixSpace bool
}

var byteLevelSpace = bytelevel.Char(' ')

// ProcessSequence implements SequenceProcessor.
func (p ByteLevel) ProcessSequence(enc *api.EncodingResult) {
	if !p.TrimOffsets {
		return
	}
	for i, token := range enc.Tokens {
		span := &enc.Spans[i]
		leadingChars, leading := countSpaces(token, false)
		_, trailing := countSpaces(token, true)
		if leading > 0 {
			isFirst := i == 0 || span.Start == 0
			if !(isFirst && p.AddPrefixSpace && leadingChars == 1) {
				span.Start = min(span.Start+leading, span.End)
			}
		}
		if trailing > 0 && span.End >= trailing {
			span.End = max(span.End-trailing, span.Start)
		}
	}
}

// countSpaces returns the number of leading (or trailing if fromEnd) whitespace characters of
// token, and the number of original bytes they stand for.
func countSpaces(token string, fromEnd bool) (chars, size int) {
	for len(token) > 0 {
		var r rune
		var n int
		if fromEnd {
			r, n = utf8.DecodeLastRuneInString(token)
		} else {
			r, n = utf8.DecodeRuneInString(token)
		}
		switch {
		case r == byteLevelSpace:
			size++
		case unicode.IsSpace(r):
			size += n
		default:
			return chars, size
		}
		chars++
		if fromEnd {
			token = token[:len(token)-n]
		} else {
			token = token[n:]
		}
	}
	return chars, size
}

// Process implements PostProcessor: it trims the spans of both sequences and concatenates them.
func (p ByteLevel) Process(a, b *api.EncodingResult, addSpecial bool) (*api.EncodingResult, error) {
	return Chain{p}.Process(a, b, addSpecial)
}

// Chain chains post-processors: the SequenceProcessor ones are applied to each sequence in
// order, and at most one other post-processor combines the sequences (adding special tokens).
// Without one, the sequences are concatenated with type ids 0 and 1.
type Chain []PostProcessor

// Validate checks that at most one post-processor combines the sequences.
func (s Chain) Validate() error {
	combiners := 0
	for _, p := range s {
		if _, ok := p.(SequenceProcessor); !ok {
			combiners++
		}
	}
	if combiners > 1 {
		return errors.Errorf("post-processor sequence has %d processors adding special tokens, at most 1 is supported", combiners)
	}
	return nil
}

// Process implements PostProcessor.
func (s Chain) Process(a, b *api.EncodingResult, addSpecial bool) (*api.EncodingResult, error) {
	if a == nil {
		return nil, errors.New("post-processing requires at least one sequence")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	var combiner PostProcessor
	for _, p := range s {
		sp, ok := p.(SequenceProcessor)
		if !ok {
			combiner = p
			continue
		}
		sp.ProcessSequence(a)
		if b != nil {
			sp.ProcessSequence(b)
		}
	}
	if combiner != nil {
		return combiner.Process(a, b, addSpecial)
	}
	out := &api.EncodingResult{}
	appendSequence(out, a, 0)
	if b != nil {
		appendSequence(out, b, 1)
	}
	return out, nil
}

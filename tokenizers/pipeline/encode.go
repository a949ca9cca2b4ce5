package pipeline

import (
	"github.com/gomlx/go-tokenizers/tokenizers/addedvocab"
	"github.com/gomlx/go-tokenizers/tokenizers/api"
	"github.com/gomlx/go-tokenizers/tokenizers/offsets"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Encode text into tokens, with spans in text coordinates.
//
// If addSpecial is true, the post-processor (if any) adds its special tokens.
func (t *Tokenizer) Encode(text string, addSpecial bool) (*api.EncodingResult, error) {
	return t.encode(t.registry.Snapshot(), text, addSpecial)
}

// EncodePair encodes a pair of texts (e.g. question and context). Spans of each sequence are
// in the coordinates of its own text.
func (t *Tokenizer) EncodePair(a, b string, addSpecial bool) (*api.EncodingResult, error) {
	vocab := t.registry.Snapshot()
	encA, err := t.encodeSequence(vocab, a)
	if err != nil {
		return nil, err
	}
	encB, err := t.encodeSequence(vocab, b)
	if err != nil {
		return nil, err
	}
	if t.postProcessor == nil {
		for i := range encB.TypeIDs {
			encB.TypeIDs[i] = 1
		}
		encA.Extend(encB)
		return encA, nil
	}
	return t.postProcessor.Process(encA, encB, addSpecial)
}

func (t *Tokenizer) encode(vocab *addedvocab.Vocabulary, text string, addSpecial bool) (*api.EncodingResult, error) {
	enc, err := t.encodeSequence(vocab, text)
	if err != nil {
		return nil, err
	}
	if t.postProcessor == nil {
		return enc, nil
	}
	return t.postProcessor.Process(enc, nil, addSpecial)
}

// encodeSequence encodes text using the given snapshot of the added vocabulary.
func (t *Tokenizer) encodeSequence(vocab *addedvocab.Vocabulary, text string) (*api.EncodingResult, error) {
	// Without a normalizer all added tokens match the raw text, otherwise only the
	// non-normalized ones do and the others are matched after normalization.
	set := addedvocab.MatchRaw
	if t.normalizer == nil {
		set = addedvocab.MatchAll
	}
	segments := addedvocab.Split(text, vocab.Match(text, set))
	klog.V(2).Infof("encoding %d bytes: %d segments, added vocabulary v%d", len(text), len(segments), vocab.Version())

	enc := &api.EncodingResult{}
	for _, seg := range segments {
		if seg.Added {
			enc.Append(api.Token{Value: seg.Text(text), ID: seg.ID, Span: seg.Span}, 0, false)
			continue
		}
		tracked := offsets.NewAt(seg.Text(text), seg.Span.Start)
		if err := t.encodeNormal(vocab, tracked, enc); err != nil {
			return nil, errors.WithMessagef(err, "encoding text at %s", seg.Span)
		}
	}
	return enc, nil
}

// encodeNormal normalizes and tokenizes a normal segment.
func (t *Tokenizer) encodeNormal(vocab *addedvocab.Vocabulary, tracked *offsets.Tracked, enc *api.EncodingResult) error {
	if t.normalizer == nil {
		return t.tokenize(tracked, enc)
	}
	if err := t.normalizer.Normalize(tracked); err != nil {
		return errors.WithMessage(err, "normalizer failed")
	}
	if !vocab.HasNormalizedTokens() {
		return t.tokenize(tracked, enc)
	}

	normalized := tracked.String()
	for _, seg := range addedvocab.Split(normalized, vocab.Match(normalized, addedvocab.MatchNormalized)) {
		if seg.Added {
			span := tracked.OriginalSpan(seg.Span.Start, seg.Span.End)
			enc.Append(api.Token{Value: seg.Text(normalized), ID: seg.ID, Span: span}, 0, false)
			continue
		}
		if err := t.tokenize(tracked.Slice(seg.Span.Start, seg.Span.End), enc); err != nil {
			return err
		}
	}
	return nil
}

// tokenize pre-tokenizes the normalized text, and tokenizes every piece with the model.
func (t *Tokenizer) tokenize(tracked *offsets.Tracked, enc *api.EncodingResult) error {
	if tracked.IsEmpty() {
		return nil
	}
	pieces := []*offsets.Tracked{tracked}
	if t.preTokenizer != nil {
		var err error
		pieces, err = t.preTokenizer.PreTokenize(tracked)
		if err != nil {
			return errors.WithMessage(err, "pre-tokenizer failed")
		}
	}
	for _, piece := range pieces {
		tokens, err := t.model.Tokenize(piece.String())
		if err != nil {
			return errors.WithMessagef(err, "model failed to tokenize %q", piece.String())
		}
		for _, tok := range tokens {
			tok.Span = piece.OriginalSpan(tok.Span.Start, tok.Span.End)
			enc.Append(tok, 0, false)
		}
	}
	return nil
}

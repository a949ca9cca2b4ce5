// Package pipeline implements a complete tokenizer: the added vocabulary matching and the
// Normalizer, PreTokenizer, Model, Decoder and PostProcessor stages.
//
// Encoding a text goes as follows:
//
//  1. The added tokens are matched in the raw text, in registration order, and the text is
//     split in segments: the added tokens, and the normal text between them.
//  2. Each normal segment is normalized, and if any added token is to be matched on the
//     normalized text, matched again.
//  3. The remaining normal text is pre-tokenized, and each piece is tokenized by the Model.
//  4. All tokens get their spans mapped back to the original text, and are concatenated in order.
//  5. Optionally the PostProcessor adds the special tokens (e.g. [CLS] and [SEP]).
//
// Decoding emits the added tokens verbatim, and hands the runs of other ids to the Decoder.
package pipeline

import (
	"github.com/gomlx/go-tokenizers/tokenizers/addedvocab"
	"github.com/gomlx/go-tokenizers/tokenizers/api"
	"github.com/gomlx/go-tokenizers/tokenizers/offsets"
)

// Normalizer rewrites text, keeping the alignment to the original input.
// See package normalizers.
type Normalizer interface {
	Normalize(t *offsets.Tracked) error
}

// PreTokenizer splits text in pieces. See package pretokenizers.
type PreTokenizer interface {
	PreTokenize(t *offsets.Tracked) ([]*offsets.Tracked, error)
}

// Model converts a piece of text to tokens, with spans relative to the piece.
// See package models.
type Model interface {
	Tokenize(piece string) ([]api.Token, error)
	TokenToID(token string) (int, bool)
	IDToToken(id int) (string, bool)
	VocabSize() int
}

// IDsDecoder is implemented by models that decode ids directly (e.g. SentencePiece), in which
// case the Decoder is not used.
type IDsDecoder interface {
	DecodeIDs(ids []int) (string, error)
}

// Decoder converts tokens back to text. See package decoders.
type Decoder interface {
	Decode(tokens []string, atStart bool) (string, error)
}

// PostProcessor adds special tokens to one or a pair of encodings. See package processors.
type PostProcessor interface {
	Process(a, b *api.EncodingResult, addSpecial bool) (*api.EncodingResult, error)
}

// Compile time assert that Tokenizer implements api.Tokenizer interface.
var _ api.Tokenizer = (*Tokenizer)(nil)

// Tokenizer is a complete tokenization pipeline.
//
// Encode, Decode and the lookups are safe for concurrent use, also concurrently with
// AddTokens/AddSpecialTokens: each call works on one snapshot of the added vocabulary.
// The With* methods configure the pipeline, and must be called before it is used.
type Tokenizer struct {
	model         Model
	normalizer    Normalizer
	preTokenizer  PreTokenizer
	decoder       Decoder
	postProcessor PostProcessor

	registry *addedvocab.Registry

	config     *api.Config
	specialIDs map[api.SpecialToken]int
}

// New creates a tokenizer for the given model, with no normalizer, pre-tokenizer, decoder or
// post-processor, and an empty added vocabulary.
func New(model Model) *Tokenizer {
	return &Tokenizer{
		model:      model,
		registry:   addedvocab.NewRegistry(model),
		specialIDs: make(map[api.SpecialToken]int),
	}
}

// WithNormalizer sets the normalizer. It returns the tokenizer itself, to allow cascading calls.
func (t *Tokenizer) WithNormalizer(n Normalizer) *Tokenizer {
	t.normalizer = n
	return t
}

// WithPreTokenizer sets the pre-tokenizer. It returns the tokenizer itself, to allow cascading calls.
func (t *Tokenizer) WithPreTokenizer(pt PreTokenizer) *Tokenizer {
	t.preTokenizer = pt
	return t
}

// WithDecoder sets the decoder. It returns the tokenizer itself, to allow cascading calls.
func (t *Tokenizer) WithDecoder(d Decoder) *Tokenizer {
	t.decoder = d
	return t
}

// WithPostProcessor sets the post-processor. It returns the tokenizer itself, to allow cascading calls.
func (t *Tokenizer) WithPostProcessor(p PostProcessor) *Tokenizer {
	t.postProcessor = p
	return t
}

// WithConfig sets the names of the special tokens, used by SpecialTokenID.
// It returns the tokenizer itself, to allow cascading calls.
func (t *Tokenizer) WithConfig(config *api.Config) *Tokenizer {
	t.config = config
	return t
}

// WithSpecialTokenID sets the id of a special token, as read from the tokenizer's files.
// It takes precedence over the names in the Config.
func (t *Tokenizer) WithSpecialTokenID(token api.SpecialToken, id int) *Tokenizer {
	t.specialIDs[token] = id
	return t
}

// Model returns the tokenizer's model.
func (t *Tokenizer) Model() Model { return t.model }

// Normalizer returns the configured normalizer, or nil.
func (t *Tokenizer) Normalizer() Normalizer { return t.normalizer }

// PreTokenizer returns the configured pre-tokenizer, or nil.
func (t *Tokenizer) PreTokenizer() PreTokenizer { return t.preTokenizer }

// Decoder returns the configured decoder, or nil.
func (t *Tokenizer) Decoder() Decoder { return t.decoder }

// PostProcessor returns the configured post-processor, or nil.
func (t *Tokenizer) PostProcessor() PostProcessor { return t.postProcessor }

// Registry returns the registry of added tokens.
func (t *Tokenizer) Registry() *addedvocab.Registry { return t.registry }

// AddedTokens returns the added tokens, in registration (priority) order.
func (t *Tokenizer) AddedTokens() []addedvocab.AddedToken {
	return t.registry.Snapshot().Tokens()
}

// AddTokens registers ordinary added tokens, and returns how many were new.
func (t *Tokenizer) AddTokens(tokens ...addedvocab.AddedToken) (int, error) {
	return t.registry.Register(tokens...)
}

// AddSpecialTokens registers special added tokens, and returns how many were new.
func (t *Tokenizer) AddSpecialTokens(tokens ...addedvocab.AddedToken) (int, error) {
	return t.registry.RegisterSpecial(tokens...)
}

// TokenToID returns the id of token, looking first at the added tokens, then at the model.
func (t *Tokenizer) TokenToID(token string) (int, bool) {
	if added, found := t.registry.Snapshot().LookupContent(token); found {
		return added.ID, true
	}
	return t.model.TokenToID(token)
}

// IDToToken returns the token with the given id, looking first at the added tokens, then at the model.
func (t *Tokenizer) IDToToken(id int) (string, bool) {
	if added, found := t.registry.Snapshot().LookupID(id); found {
		return added.Content, true
	}
	return t.model.IDToToken(id)
}

// VocabSize returns one past the largest id known: the model's or the added tokens'.
func (t *Tokenizer) VocabSize() int {
	return max(t.model.VocabSize(), t.registry.Snapshot().MaxID()+1)
}

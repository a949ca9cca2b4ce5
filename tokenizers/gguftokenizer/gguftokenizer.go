// Package gguftokenizer creates a tokenizer from the "tokenizer.ggml.*" metadata of a GGUF file,
// as written by llama.cpp's conversion scripts.
//
// Three tokenizer models are supported:
//
//   - "gpt2": byte-level BPE, with the merges in "tokenizer.ggml.merges".
//   - "llama": SentencePiece, with the scores in "tokenizer.ggml.scores" and byte fallback.
//   - "bert": WordPiece.
//
// Tokens of type control and unknown become special added tokens, and user defined tokens
// become (non-special) added tokens, all keeping their ids.
package gguftokenizer

import (
	"strings"

	"github.com/gomlx/go-tokenizers/models/gguf"
	"github.com/gomlx/go-tokenizers/tokenizers/addedvocab"
	"github.com/gomlx/go-tokenizers/tokenizers/api"
	"github.com/gomlx/go-tokenizers/tokenizers/decoders"
	"github.com/gomlx/go-tokenizers/tokenizers/models"
	"github.com/gomlx/go-tokenizers/tokenizers/normalizers"
	"github.com/gomlx/go-tokenizers/tokenizers/pipeline"
	"github.com/gomlx/go-tokenizers/tokenizers/pretokenizers"
	"github.com/gomlx/go-tokenizers/tokenizers/processors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Metadata keys of the tokenizer in a GGUF file.
const (
	KeyModel        = "tokenizer.ggml.model"
	KeyTokens       = "tokenizer.ggml.tokens"
	KeyScores       = "tokenizer.ggml.scores"
	KeyTokenType    = "tokenizer.ggml.token_type"
	KeyMerges       = "tokenizer.ggml.merges"
	KeyBosID        = "tokenizer.ggml.bos_token_id"
	KeyEosID        = "tokenizer.ggml.eos_token_id"
	KeyUnknownID    = "tokenizer.ggml.unknown_token_id"
	KeySeparatorID  = "tokenizer.ggml.seperator_token_id" // Sic, as written by llama.cpp.
	KeyPaddingID    = "tokenizer.ggml.padding_token_id"
	KeyClsID        = "tokenizer.ggml.cls_token_id"
	KeyMaskID       = "tokenizer.ggml.mask_token_id"
	KeyAddBos       = "tokenizer.ggml.add_bos_token"
	KeyAddEos       = "tokenizer.ggml.add_eos_token"
	KeyAddSpace     = "tokenizer.ggml.add_space_prefix"
	wordPiecePrefix = "##"
)

// TokenType is the type of each token, in "tokenizer.ggml.token_type".
type TokenType int

const (
	TypeNormal      TokenType = 1
	TypeUnknown     TokenType = 2
	TypeControl     TokenType = 3
	TypeUserDefined TokenType = 4
	TypeUnused      TokenType = 5
	TypeByte        TokenType = 6
)

// New opens the GGUF file and creates its tokenizer. The config is optional (it can be nil).
func New(config *api.Config, filePath string) (*pipeline.Tokenizer, error) {
	f, err := gguf.Open(filePath)
	if err != nil {
		return nil, err
	}
	tok, err := NewFromFile(config, f)
	if err != nil {
		return nil, errors.WithMessagef(err, "tokenizer of %q", filePath)
	}
	return tok, nil
}

// vocabulary holds the token arrays of the GGUF metadata.
type vocabulary struct {
	tokens []string
	scores []float64
	types  []TokenType
}

// NewFromFile creates the tokenizer described by the metadata of a parsed GGUF file.
func NewFromFile(config *api.Config, f *gguf.File) (*pipeline.Tokenizer, error) {
	modelKV, found := f.GetKeyValue(KeyModel)
	if !found {
		return nil, errors.Errorf("GGUF file has no %q key, it doesn't include a tokenizer", KeyModel)
	}
	v, err := readVocabulary(f)
	if err != nil {
		return nil, err
	}

	var tok *pipeline.Tokenizer
	switch modelType := modelKV.String(); modelType {
	case "gpt2":
		tok, err = newGPT2(f, v)
	case "llama":
		tok, err = newLlama(f, v)
	case "bert":
		tok, err = newBert(f, v)
	default:
		return nil, errors.Errorf("GGUF tokenizer model %q not supported", modelType)
	}
	if err != nil {
		return nil, err
	}
	tok.WithConfig(config)

	if err := registerAddedTokens(tok, v); err != nil {
		return nil, err
	}
	for token, key := range map[api.SpecialToken]string{
		api.TokBeginningOfSentence: KeyBosID,
		api.TokEndOfSentence:       KeyEosID,
		api.TokUnknown:             KeyUnknownID,
		api.TokPad:                 KeyPaddingID,
		api.TokMask:                KeyMaskID,
		api.TokClassification:      KeyClsID,
	} {
		if id, found := tokenID(f, key, len(v.tokens)); found {
			tok.WithSpecialTokenID(token, id)
		}
	}
	klog.V(1).Infof("GGUF tokenizer %q with %d tokens, %d added tokens",
		modelKV.String(), len(v.tokens), len(tok.AddedTokens()))
	return tok, nil
}

func readVocabulary(f *gguf.File) (*vocabulary, error) {
	kv, found := f.GetKeyValue(KeyTokens)
	if !found || len(kv.Strings()) == 0 {
		return nil, errors.Errorf("GGUF tokenizer has no %q", KeyTokens)
	}
	v := &vocabulary{tokens: kv.Strings()}
	if kv, found := f.GetKeyValue(KeyScores); found {
		v.scores = kv.Floats()
		if len(v.scores) != len(v.tokens) {
			return nil, errors.Errorf("GGUF tokenizer has %d scores for %d tokens", len(v.scores), len(v.tokens))
		}
	}
	v.types = make([]TokenType, len(v.tokens))
	if kv, found := f.GetKeyValue(KeyTokenType); found {
		types := kv.Ints()
		if len(types) != len(v.tokens) {
			return nil, errors.Errorf("GGUF tokenizer has %d token types for %d tokens", len(types), len(v.tokens))
		}
		for i, t := range types {
			v.types[i] = TokenType(t)
		}
	} else {
		for i := range v.types {
			v.types[i] = TypeNormal
		}
	}
	return v, nil
}

// tokenID returns the token id stored under key, if present and valid.
func tokenID(f *gguf.File, key string, vocabSize int) (int, bool) {
	kv, found := f.GetKeyValue(key)
	if !found || !kv.IsInt() {
		return 0, false
	}
	id := int(kv.Int())
	if id < 0 || id >= vocabSize {
		klog.Warningf("GGUF tokenizer %s=%d out of range, ignored", key, id)
		return 0, false
	}
	return id, true
}

func flag(f *gguf.File, key string, defaultValue bool) bool {
	kv, found := f.GetKeyValue(key)
	if !found {
		return defaultValue
	}
	return kv.Bool()
}

// registerAddedTokens registers control, unknown and user defined tokens, keeping their ids.
func registerAddedTokens(tok *pipeline.Tokenizer, v *vocabulary) error {
	var added []addedvocab.AddedToken
	for id, tokenType := range v.types {
		var at addedvocab.AddedToken
		switch tokenType {
		case TypeUnknown, TypeControl:
			at = addedvocab.NewToken(v.tokens[id], true)
		case TypeUserDefined:
			at = addedvocab.NewToken(v.tokens[id], false).WithNormalized(false)
		default:
			continue
		}
		if at.Content == "" {
			continue
		}
		at.ID = id
		added = append(added, at)
	}
	if _, err := tok.Registry().RegisterWithIDs(added...); err != nil {
		return errors.WithMessage(err, "registering GGUF control tokens")
	}
	return nil
}

// unkToken returns the unknown token, from the unknown_token_id key or the token types.
func unkToken(f *gguf.File, v *vocabulary) (string, int) {
	if id, found := tokenID(f, KeyUnknownID, len(v.tokens)); found {
		return v.tokens[id], id
	}
	for id, t := range v.types {
		if t == TypeUnknown {
			return v.tokens[id], id
		}
	}
	return "", -1
}

// bosEosTemplate adds the bos and eos tokens, if configured with add_bos_token and add_eos_token.
func bosEosTemplate(f *gguf.File, v *vocabulary, addBosDefault bool) *processors.Template {
	t := &processors.Template{SpecialTokens: make(map[string]processors.SpecialToken)}
	var single, pairB []processors.Piece
	if id, found := tokenID(f, KeyBosID, len(v.tokens)); found && flag(f, KeyAddBos, addBosDefault) {
		name := v.tokens[id]
		t.SpecialTokens[name] = processors.SpecialToken{ID: name, IDs: []int{id}, Tokens: []string{name}}
		single = append(single, processors.Piece{Special: name})
		pairB = append(pairB, processors.Piece{Special: name, TypeID: 1})
	}
	single = append(single, processors.Piece{Sequence: processors.SequenceA})
	pairB = append(pairB, processors.Piece{Sequence: processors.SequenceB, TypeID: 1})
	if id, found := tokenID(f, KeyEosID, len(v.tokens)); found && flag(f, KeyAddEos, false) {
		name := v.tokens[id]
		t.SpecialTokens[name] = processors.SpecialToken{ID: name, IDs: []int{id}, Tokens: []string{name}}
		single = append(single, processors.Piece{Special: name})
		pairB = append(pairB, processors.Piece{Special: name, TypeID: 1})
	}
	if len(t.SpecialTokens) == 0 {
		return nil
	}
	t.Single = single
	t.Pair = append(append([]processors.Piece(nil), single...), pairB...)
	return t
}

func vocabMap(tokens []string) map[string]int {
	vocab := make(map[string]int, len(tokens))
	for id, token := range tokens {
		if _, found := vocab[token]; !found {
			vocab[token] = id
		}
	}
	return vocab
}

// newGPT2 creates a byte-level BPE tokenizer.
func newGPT2(f *gguf.File, v *vocabulary) (*pipeline.Tokenizer, error) {
	kv, _ := f.GetKeyValue(KeyMerges)
	merges, err := models.ParseMerges(kv.Strings())
	if err != nil {
		return nil, errors.WithMessagef(err, "GGUF %q", KeyMerges)
	}
	unk, _ := unkToken(f, v)
	model, err := models.NewBPE(vocabMap(v.tokens), merges, models.BPEConfig{UnkToken: unk})
	if err != nil {
		return nil, errors.WithMessage(err, "GGUF gpt2 tokenizer")
	}
	tok := pipeline.New(model).
		WithPreTokenizer(&pretokenizers.ByteLevel{UseRegex: true}).
		WithDecoder(decoders.ByteLevel{})
	if t := bosEosTemplate(f, v, false); t != nil {
		tok.WithPostProcessor(t)
	}
	return tok, nil
}

// newLlama creates a SentencePiece tokenizer, using the scores with the Unigram model.
func newLlama(f *gguf.File, v *vocabulary) (*pipeline.Tokenizer, error) {
	pieces := make([]models.UnigramPiece, len(v.tokens))
	byteFallback := false
	for id, token := range v.tokens {
		pieces[id].Token = token
		if v.scores != nil {
			pieces[id].Score = v.scores[id]
		}
		if v.types[id] == TypeByte {
			byteFallback = true
		}
	}
	_, unkID := unkToken(f, v)
	model, err := models.NewUnigram(pieces, unkID, byteFallback)
	if err != nil {
		return nil, errors.WithMessage(err, "GGUF llama tokenizer")
	}

	addSpace := flag(f, KeyAddSpace, true)
	scheme := pretokenizers.PrependFirst
	if !addSpace {
		scheme = pretokenizers.PrependNever
	}
	strip := 0
	if addSpace {
		strip = 1
	}
	replace, err := decoders.NewReplace(pretokenizers.DefaultReplacement, "", " ")
	if err != nil {
		return nil, err
	}
	tok := pipeline.New(model).
		WithPreTokenizer(pretokenizers.NewMetaspace(scheme, false)).
		WithDecoder(decoders.Sequence{replace, decoders.ByteFallback{}, decoders.Fuse{}, decoders.Strip{Content: ' ', Start: strip}})
	if t := bosEosTemplate(f, v, true); t != nil {
		tok.WithPostProcessor(t)
	}
	return tok, nil
}

// newBert creates a WordPiece tokenizer.
//
// llama.cpp stores BERT vocabularies with the words prefixed by "▁" and the continuing
// subwords without the "##" prefix: they are converted back.
func newBert(f *gguf.File, v *vocabulary) (*pipeline.Tokenizer, error) {
	tokens := make([]string, len(v.tokens))
	for id, token := range v.tokens {
		tokens[id] = wordPieceToken(token, v.types[id])
	}
	unk, _ := unkToken(f, v)
	if unk == "" {
		unk = "[UNK]"
	}
	model, err := models.NewWordPiece(vocabMap(tokens), unk, wordPiecePrefix, 0)
	if err != nil {
		return nil, errors.WithMessage(err, "GGUF bert tokenizer")
	}
	tok := pipeline.New(model).
		WithNormalizer(normalizers.Bert{CleanText: true, HandleChineseChars: true, Lowercase: true}).
		WithPreTokenizer(pretokenizers.Bert{}).
		WithDecoder(decoders.WordPiece{Prefix: wordPiecePrefix, Cleanup: true})

	cls, hasCls := tokenID(f, KeyClsID, len(v.tokens))
	if !hasCls {
		cls, hasCls = tokenID(f, KeyBosID, len(v.tokens))
	}
	sep, hasSep := tokenID(f, KeySeparatorID, len(v.tokens))
	if !hasSep {
		sep, hasSep = tokenID(f, KeyEosID, len(v.tokens))
	}
	if hasCls && hasSep {
		tok.WithPostProcessor(processors.NewBert(tokens[sep], sep, tokens[cls], cls))
	}
	return tok, nil
}

func wordPieceToken(token string, tokenType TokenType) string {
	if tokenType != TypeNormal {
		return token
	}
	if word, found := strings.CutPrefix(token, pretokenizers.DefaultReplacement); found {
		return word
	}
	return wordPiecePrefix + token
}

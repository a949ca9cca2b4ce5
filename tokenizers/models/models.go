// Package models implements the sub-word tokenization models: BPE, WordPiece, WordLevel and
// Unigram.
//
// A model tokenizes one piece of text (as produced by a pre-tokenizer) at a time, and reports
// the byte span of each token within the piece.
package models

import (
	"fmt"
	"slices"

	"github.com/gomlx/go-tokenizers/tokenizers/api"
)

// Model converts pieces of text to tokens.
type Model interface {
	// Tokenize piece into tokens, with spans relative to piece.
	Tokenize(piece string) ([]api.Token, error)

	TokenToID(token string) (int, bool)
	IDToToken(id int) (string, bool)

	// VocabSize is one past the largest id of the model.
	VocabSize() int
}

// Compile time assert that all models implement the Model interface.
var (
	_ Model = (*BPE)(nil)
	_ Model = (*WordPiece)(nil)
	_ Model = (*WordLevel)(nil)
	_ Model = (*Unigram)(nil)
)

// Vocab is a bidirectional token <-> id mapping.
type Vocab struct {
	tokenToID map[string]int
	idToToken map[int]string
	size      int
}

// NewVocab creates a Vocab from a token to id map.
func NewVocab(tokens map[string]int) *Vocab {
	v := &Vocab{
		tokenToID: make(map[string]int, len(tokens)),
		idToToken: make(map[int]string, len(tokens)),
	}
	for token, id := range tokens {
		v.set(token, id)
	}
	return v
}

// NewVocabFromList creates a Vocab where each token's id is its index in tokens.
func NewVocabFromList(tokens []string) *Vocab {
	v := &Vocab{
		tokenToID: make(map[string]int, len(tokens)),
		idToToken: make(map[int]string, len(tokens)),
	}
	for id, token := range tokens {
		v.set(token, id)
	}
	return v
}

func (v *Vocab) set(token string, id int) {
	v.tokenToID[token] = id
	v.idToToken[id] = token
	v.size = max(v.size, id+1)
}

// TokenToID returns the id of token, if in the vocabulary.
func (v *Vocab) TokenToID(token string) (int, bool) {
	id, found := v.tokenToID[token]
	return id, found
}

// IDToToken returns the token with the given id, if in the vocabulary.
func (v *Vocab) IDToToken(id int) (string, bool) {
	token, found := v.idToToken[id]
	return token, found
}

// VocabSize returns one past the largest id.
func (v *Vocab) VocabSize() int {
	return v.size
}

// Len returns the number of tokens.
func (v *Vocab) Len() int {
	return len(v.tokenToID)
}

// Map returns a copy of the token to id mapping.
func (v *Vocab) Map() map[string]int {
	m := make(map[string]int, len(v.tokenToID))
	for token, id := range v.tokenToID {
		m[token] = id
	}
	return m
}

// Tokens returns the tokens sorted by id.
func (v *Vocab) Tokens() []string {
	ids := make([]int, 0, len(v.idToToken))
	for id := range v.idToToken {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	tokens := make([]string, len(ids))
	for i, id := range ids {
		tokens[i] = v.idToToken[id]
	}
	return tokens
}

// byteToken returns the name of the byte fallback token for b, e.g. "<0x0A>".
func byteToken(b byte) string {
	return fmt.Sprintf("<0x%02X>", b)
}

// byteFallback returns the tokens for the bytes of text[start:end], or false if any of the
// byte tokens is missing from the vocabulary.
func (v *Vocab) byteFallback(text string, start, end int) ([]api.Token, bool) {
	tokens := make([]api.Token, 0, end-start)
	for i := start; i < end; i++ {
		name := byteToken(text[i])
		id, found := v.tokenToID[name]
		if !found {
			return nil, false
		}
		tokens = append(tokens, api.Token{Value: name, ID: id, Span: api.TokenSpan{Start: i, End: i + 1}})
	}
	return tokens, true
}

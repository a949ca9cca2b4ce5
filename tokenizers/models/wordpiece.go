package models

import (
	"unicode/utf8"

	"github.com/gomlx/go-tokenizers/tokenizers/api"
	"github.com/pkg/errors"
)

// WordPiece is the greedy longest-match-first model used by BERT.
type WordPiece struct {
	vocab *Vocab
	unkID int

	UnkToken                string
	ContinuingSubwordPrefix string
	MaxInputCharsPerWord    int
}

// NewWordPiece creates a WordPiece model. Empty continuingSubwordPrefix defaults to "##", and
// maxInputCharsPerWord <= 0 defaults to 100.
func NewWordPiece(vocab map[string]int, unkToken, continuingSubwordPrefix string, maxInputCharsPerWord int) (*WordPiece, error) {
	if continuingSubwordPrefix == "" {
		continuingSubwordPrefix = "##"
	}
	if maxInputCharsPerWord <= 0 {
		maxInputCharsPerWord = 100
	}
	w := &WordPiece{
		vocab:                   NewVocab(vocab),
		UnkToken:                unkToken,
		ContinuingSubwordPrefix: continuingSubwordPrefix,
		MaxInputCharsPerWord:    maxInputCharsPerWord,
	}
	id, found := w.vocab.TokenToID(unkToken)
	if !found {
		return nil, errors.Errorf("WordPiece unk_token %q is not in the vocabulary", unkToken)
	}
	w.unkID = id
	return w, nil
}

// TokenToID implements Model.
func (w *WordPiece) TokenToID(token string) (int, bool) { return w.vocab.TokenToID(token) }

// IDToToken implements Model.
func (w *WordPiece) IDToToken(id int) (string, bool) { return w.vocab.IDToToken(id) }

// VocabSize implements Model.
func (w *WordPiece) VocabSize() int { return w.vocab.VocabSize() }

// Vocab returns the model's vocabulary.
func (w *WordPiece) Vocab() *Vocab { return w.vocab }

// Tokenize implements Model.
//
// The whole piece becomes the unknown token if it's longer than MaxInputCharsPerWord, or if
// any part of it can't be matched.
func (w *WordPiece) Tokenize(piece string) ([]api.Token, error) {
	if piece == "" {
		return nil, nil
	}
	unknown := []api.Token{{Value: w.UnkToken, ID: w.unkID, Span: api.TokenSpan{Start: 0, End: len(piece)}}}
	if utf8.RuneCountInString(piece) > w.MaxInputCharsPerWord {
		return unknown, nil
	}

	var tokens []api.Token
	for start := 0; start < len(piece); {
		end := len(piece)
		found := false
		for start < end {
			substr := piece[start:end]
			if start > 0 {
				substr = w.ContinuingSubwordPrefix + substr
			}
			if id, ok := w.vocab.TokenToID(substr); ok {
				tokens = append(tokens, api.Token{Value: substr, ID: id, Span: api.TokenSpan{Start: start, End: end}})
				found = true
				break
			}
			// Shrink by one character.
			_, size := utf8.DecodeLastRuneInString(piece[start:end])
			end -= size
		}
		if !found {
			return unknown, nil
		}
		start = end
	}
	return tokens, nil
}

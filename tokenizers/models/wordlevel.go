package models

import (
	"github.com/gomlx/go-tokenizers/tokenizers/api"
	"github.com/pkg/errors"
)

// WordLevel maps each piece as a whole to its id.
type WordLevel struct {
	vocab    *Vocab
	unkToken string
	unkID    int
}

// NewWordLevel creates a WordLevel model. unkToken may be empty, in which case tokenizing
// an unknown piece is an error.
func NewWordLevel(vocab map[string]int, unkToken string) (*WordLevel, error) {
	w := &WordLevel{vocab: NewVocab(vocab), unkToken: unkToken, unkID: -1}
	if unkToken != "" {
		id, found := w.vocab.TokenToID(unkToken)
		if !found {
			return nil, errors.Errorf("WordLevel unk_token %q is not in the vocabulary", unkToken)
		}
		w.unkID = id
	}
	return w, nil
}

// TokenToID implements Model.
func (w *WordLevel) TokenToID(token string) (int, bool) { return w.vocab.TokenToID(token) }

// IDToToken implements Model.
func (w *WordLevel) IDToToken(id int) (string, bool) { return w.vocab.IDToToken(id) }

// VocabSize implements Model.
func (w *WordLevel) VocabSize() int { return w.vocab.VocabSize() }

// Vocab returns the model's vocabulary.
func (w *WordLevel) Vocab() *Vocab { return w.vocab }

// Tokenize implements Model.
func (w *WordLevel) Tokenize(piece string) ([]api.Token, error) {
	if piece == "" {
		return nil, nil
	}
	span := api.TokenSpan{Start: 0, End: len(piece)}
	if id, found := w.vocab.TokenToID(piece); found {
		return []api.Token{{Value: piece, ID: id, Span: span}}, nil
	}
	if w.unkID < 0 {
		return nil, errors.Errorf("WordLevel: %q is not in the vocabulary and there is no unk_token", piece)
	}
	return []api.Token{{Value: w.unkToken, ID: w.unkID, Span: span}}, nil
}

package models

import (
	"math"
	"unicode/utf8"

	"github.com/gomlx/go-tokenizers/tokenizers/api"
	"github.com/pkg/errors"
)

// unknownScorePenalty is subtracted from the lowest score of the vocabulary to score unknown characters.
const unknownScorePenalty = 10.0

// UnigramPiece is an entry of a Unigram vocabulary.
type UnigramPiece struct {
	Token string
	Score float64
}

// Unigram is the unigram language model used by SentencePiece: a piece is split in the
// sequence of tokens with the highest sum of scores (log probabilities), found with the
// Viterbi algorithm.
type Unigram struct {
	vocab        *Vocab
	scores       []float64
	unkID        int
	byteFallback bool
	unkScore     float64
	trie         *byteTrie
}

// NewUnigram creates a Unigram model, where the id of each piece is its index.
// unkID < 0 means there is no unknown token.
func NewUnigram(pieces []UnigramPiece, unkID int, byteFallback bool) (*Unigram, error) {
	if len(pieces) == 0 {
		return nil, errors.New("Unigram vocabulary is empty")
	}
	if unkID >= len(pieces) {
		return nil, errors.Errorf("Unigram unk_id %d out of range (vocabulary size %d)", unkID, len(pieces))
	}
	tokens := make([]string, len(pieces))
	u := &Unigram{
		scores:       make([]float64, len(pieces)),
		unkID:        unkID,
		byteFallback: byteFallback,
		trie:         &byteTrie{id: -1},
	}
	minScore := math.Inf(1)
	for id, p := range pieces {
		tokens[id] = p.Token
		u.scores[id] = p.Score
		minScore = min(minScore, p.Score)
		if id != unkID && p.Token != "" {
			u.trie.insert(p.Token, id)
		}
	}
	u.vocab = NewVocabFromList(tokens)
	u.unkScore = minScore - unknownScorePenalty
	return u, nil
}

// TokenToID implements Model.
func (u *Unigram) TokenToID(token string) (int, bool) { return u.vocab.TokenToID(token) }

// IDToToken implements Model.
func (u *Unigram) IDToToken(id int) (string, bool) { return u.vocab.IDToToken(id) }

// VocabSize implements Model.
func (u *Unigram) VocabSize() int { return u.vocab.VocabSize() }

// Vocab returns the model's vocabulary.
func (u *Unigram) Vocab() *Vocab { return u.vocab }

// Pieces returns the vocabulary with the scores, in id order.
func (u *Unigram) Pieces() []UnigramPiece {
	pieces := make([]UnigramPiece, len(u.scores))
	for id, score := range u.scores {
		token, _ := u.vocab.IDToToken(id)
		pieces[id] = UnigramPiece{Token: token, Score: score}
	}
	return pieces
}

// UnkID returns the id of the unknown token, or -1.
func (u *Unigram) UnkID() int { return u.unkID }

// ByteFallback reports whether unknown characters are encoded as byte tokens.
func (u *Unigram) ByteFallback() bool { return u.byteFallback }

// bestPath is a node of the lattice: the best tokenization ending at a byte position.
type bestPath struct {
	score   float64
	start   int // Start of the last token.
	id      int // Id of the last token.
	unknown bool
}

// Tokenize implements Model.
func (u *Unigram) Tokenize(piece string) ([]api.Token, error) {
	if piece == "" {
		return nil, nil
	}
	best := make([]bestPath, len(piece)+1)
	for i := 1; i < len(best); i++ {
		best[i].score = math.Inf(-1)
	}

	// Every character boundary is reachable, if only through the unknown token.
	for pos := 0; pos < len(piece); {
		_, charLen := utf8.DecodeRuneInString(piece[pos:])
		singleChar := false
		node := u.trie
		for end := pos; end < len(piece); end++ {
			node = node.children[piece[end]]
			if node == nil {
				break
			}
			if node.id < 0 {
				continue
			}
			if end+1-pos == charLen {
				singleChar = true
			}
			score := best[pos].score + u.scores[node.id]
			if score > best[end+1].score {
				best[end+1] = bestPath{score: score, start: pos, id: node.id}
			}
		}
		if !singleChar {
			score := best[pos].score + u.unkScore
			if score > best[pos+charLen].score {
				best[pos+charLen] = bestPath{score: score, start: pos, id: u.unkID, unknown: true}
			}
		}
		pos += charLen
	}

	var path []bestPath
	var ends []int
	for end := len(piece); end > 0; end = best[end].start {
		path = append(path, best[end])
		ends = append(ends, end)
	}

	tokens := make([]api.Token, 0, len(path))
	for i := len(path) - 1; i >= 0; i-- {
		node, span := path[i], api.TokenSpan{Start: path[i].start, End: ends[i]}
		if !node.unknown {
			value, _ := u.vocab.IDToToken(node.id)
			tokens = append(tokens, api.Token{Value: value, ID: node.id, Span: span})
			continue
		}
		if u.byteFallback {
			if bytes, ok := u.vocab.byteFallback(piece, span.Start, span.End); ok {
				tokens = append(tokens, bytes...)
				continue
			}
		}
		if u.unkID < 0 {
			return nil, errors.Errorf("Unigram: character %q is not in the vocabulary and there is no unknown token",
				piece[span.Start:span.End])
		}
		// Consecutive unknown characters are fused.
		if n := len(tokens); n > 0 && tokens[n-1].ID == u.unkID && tokens[n-1].Span.End == span.Start {
			tokens[n-1].Span.End = span.End
			continue
		}
		value, _ := u.vocab.IDToToken(u.unkID)
		tokens = append(tokens, api.Token{Value: value, ID: u.unkID, Span: span})
	}
	return tokens, nil
}

// byteTrie is a trie over the bytes of the tokens.
type byteTrie struct {
	children map[byte]*byteTrie
	id       int
}

func (n *byteTrie) insert(key string, id int) {
	node := n
	for i := 0; i < len(key); i++ {
		if node.children == nil {
			node.children = make(map[byte]*byteTrie)
		}
		child, found := node.children[key[i]]
		if !found {
			child = &byteTrie{id: -1}
			node.children[key[i]] = child
		}
		node = child
	}
	node.id = id
}

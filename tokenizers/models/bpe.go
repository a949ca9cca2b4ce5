package models

import (
	"cmp"
	"strings"
	"unicode/utf8"

	heap "github.com/emirpasic/gods/v2/trees/binaryheap"
	"github.com/gomlx/go-tokenizers/tokenizers/api"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// BPEConfig holds the optional parameters of a BPE model.
type BPEConfig struct {
	// UnkToken is used for characters not in the vocabulary. If empty, they are dropped.
	UnkToken string

	// ContinuingSubwordPrefix is prepended to every character but the first of a word.
	ContinuingSubwordPrefix string

	// EndOfWordSuffix is appended to the last character of a word.
	EndOfWordSuffix string

	// FuseUnk merges consecutive unknown characters in one unknown token.
	FuseUnk bool

	// ByteFallback uses the "<0xXX>" byte tokens for unknown characters, instead of UnkToken.
	ByteFallback bool

	// IgnoreMerges returns whole words found in the vocabulary without applying merges.
	IgnoreMerges bool
}

// BPE is the byte-pair encoding model: words start as characters, and the pairs of adjacent
// symbols are merged following the merges' ranks, lowest rank first.
type BPE struct {
	vocab  *Vocab
	config BPEConfig
	unkID  int

	// merges maps a pair of token ids to the rank of the merge and the id of the merged token.
	merges map[[2]int]bpeMerge
}

type bpeMerge struct {
	rank, id int
}

// NewBPE creates a BPE model. Merges are given in rank order, as the pair of tokens to merge.
func NewBPE(vocab map[string]int, merges [][2]string, config BPEConfig) (*BPE, error) {
	b := &BPE{
		vocab:  NewVocab(vocab),
		config: config,
		unkID:  -1,
		merges: make(map[[2]int]bpeMerge, len(merges)),
	}
	if config.UnkToken != "" {
		id, found := b.vocab.TokenToID(config.UnkToken)
		if !found {
			return nil, errors.Errorf("BPE unk_token %q is not in the vocabulary", config.UnkToken)
		}
		b.unkID = id
	}
	prefixLen := len(config.ContinuingSubwordPrefix)
	for rank, m := range merges {
		left, found := b.vocab.TokenToID(m[0])
		if !found {
			return nil, errors.Errorf("BPE merge #%d %q: %q is not in the vocabulary", rank, m, m[0])
		}
		right, found := b.vocab.TokenToID(m[1])
		if !found {
			return nil, errors.Errorf("BPE merge #%d %q: %q is not in the vocabulary", rank, m, m[1])
		}
		merged := m[0] + m[1]
		if prefixLen > 0 && strings.HasPrefix(m[1], config.ContinuingSubwordPrefix) {
			merged = m[0] + m[1][prefixLen:]
		}
		id, found := b.vocab.TokenToID(merged)
		if !found {
			return nil, errors.Errorf("BPE merge #%d %q: merged token %q is not in the vocabulary", rank, m, merged)
		}
		key := [2]int{left, right}
		if _, dup := b.merges[key]; !dup {
			b.merges[key] = bpeMerge{rank: rank, id: id}
		}
	}
	return b, nil
}

// ParseMerges parses merges given as "left right" strings.
func ParseMerges(lines []string) ([][2]string, error) {
	merges := make([][2]string, len(lines))
	for i, line := range lines {
		left, right, found := strings.Cut(line, " ")
		if !found || left == "" || right == "" || strings.Contains(right, " ") {
			return nil, errors.Errorf("invalid BPE merge #%d %q", i, line)
		}
		merges[i] = [2]string{left, right}
	}
	return merges, nil
}

// Config returns the model's configuration.
func (b *BPE) Config() BPEConfig {
	return b.config
}

// TokenToID implements Model.
func (b *BPE) TokenToID(token string) (int, bool) { return b.vocab.TokenToID(token) }

// IDToToken implements Model.
func (b *BPE) IDToToken(id int) (string, bool) { return b.vocab.IDToToken(id) }

// VocabSize implements Model.
func (b *BPE) VocabSize() int { return b.vocab.VocabSize() }

// Vocab returns the model's vocabulary.
func (b *BPE) Vocab() *Vocab { return b.vocab }

// symbol is a node of the linked list of symbols of a word being merged.
type symbol struct {
	id         int
	start, end int // Byte span in the piece.
	prev, next int // Indices of the neighbour symbols, -1 if none.
}

// candidate is a pair of adjacent symbols that can be merged.
type candidate struct {
	left, right     int // Indices of the symbols.
	leftID, rightID int // Ids of the symbols when the candidate was created.
	rank, mergedID  int
}

// Tokenize implements Model.
func (b *BPE) Tokenize(piece string) ([]api.Token, error) {
	if piece == "" {
		return nil, nil
	}
	if b.config.IgnoreMerges {
		if id, found := b.vocab.TokenToID(piece); found {
			return []api.Token{{Value: piece, ID: id, Span: api.TokenSpan{Start: 0, End: len(piece)}}}, nil
		}
	}

	symbols := b.initialSymbols(piece)
	b.merge(symbols)

	tokens := make([]api.Token, 0, len(symbols))
	for i := 0; i >= 0 && i < len(symbols); i = symbols[i].next {
		s := symbols[i]
		value, _ := b.vocab.IDToToken(s.id)
		tokens = append(tokens, api.Token{Value: value, ID: s.id, Span: api.TokenSpan{Start: s.start, End: s.end}})
	}
	return tokens, nil
}

// initialSymbols returns the linked list of symbols for the characters of piece, with the
// first symbol at index 0.
func (b *BPE) initialSymbols(piece string) []symbol {
	symbols := make([]symbol, 0, len(piece))
	add := func(id, start, end int) {
		last := len(symbols) - 1
		if b.config.FuseUnk && id == b.unkID && last >= 0 && symbols[last].id == b.unkID {
			symbols[last].end = end
			return
		}
		symbols = append(symbols, symbol{id: id, start: start, end: end, prev: last, next: -1})
		if last >= 0 {
			symbols[last].next = len(symbols) - 1
		}
	}

	for pos := 0; pos < len(piece); {
		_, size := utf8.DecodeRuneInString(piece[pos:])
		end := pos + size
		s := piece[pos:end]
		if pos > 0 && b.config.ContinuingSubwordPrefix != "" {
			s = b.config.ContinuingSubwordPrefix + s
		}
		if end == len(piece) && b.config.EndOfWordSuffix != "" {
			s += b.config.EndOfWordSuffix
		}

		if id, found := b.vocab.TokenToID(s); found {
			add(id, pos, end)
		} else if bytes, ok := b.byteFallback(piece, pos, end); ok {
			for _, t := range bytes {
				add(t.ID, t.Span.Start, t.Span.End)
			}
		} else if b.unkID >= 0 {
			add(b.unkID, pos, end)
		} else {
			klog.V(2).Infof("BPE: dropping character %q not in the vocabulary", piece[pos:end])
		}
		pos = end
	}
	return symbols
}

func (b *BPE) byteFallback(piece string, start, end int) ([]api.Token, bool) {
	if !b.config.ByteFallback {
		return nil, false
	}
	return b.vocab.byteFallback(piece, start, end)
}

// merge applies the merges to the symbols, lowest rank first, leftmost first among equal ranks.
func (b *BPE) merge(symbols []symbol) {
	if len(symbols) < 2 {
		return
	}
	pairs := heap.NewWith(func(x, y *candidate) int {
		if c := cmp.Compare(x.rank, y.rank); c != 0 {
			return c
		}
		return cmp.Compare(x.left, y.left)
	})
	push := func(left, right int) {
		if left < 0 || right < 0 {
			return
		}
		m, found := b.merges[[2]int{symbols[left].id, symbols[right].id}]
		if !found {
			return
		}
		pairs.Push(&candidate{
			left: left, right: right,
			leftID: symbols[left].id, rightID: symbols[right].id,
			rank: m.rank, mergedID: m.id,
		})
	}
	for i := 0; i < len(symbols)-1; i++ {
		push(i, i+1)
	}

	for !pairs.Empty() {
		c, _ := pairs.Pop()
		left, right := &symbols[c.left], &symbols[c.right]
		// Skip candidates invalidated by previous merges.
		if left.next != c.right || left.id != c.leftID || right.id != c.rightID || right.end == right.start {
			continue
		}
		left.id = c.mergedID
		left.end = right.end
		left.next = right.next
		if right.next >= 0 {
			symbols[right.next].prev = c.left
		}
		right.start, right.end = 0, 0
		right.next, right.prev = -1, -1

		push(left.prev, c.left)
		push(c.left, left.next)
	}
}

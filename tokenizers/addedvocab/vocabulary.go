package addedvocab

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrEmptyContent is returned when registering an added token with empty content.
var ErrEmptyContent = errors.New("added token content can't be empty")

// ModelVocab is the view of the model's vocabulary used to assign ids to added tokens.
type ModelVocab interface {
	TokenToID(token string) (int, bool)
	VocabSize() int
}

// Vocabulary is an immutable snapshot of the added tokens, in registration order.
//
// It is safe for concurrent use. A Registry publishes a new Vocabulary on every change,
// and callers hold one snapshot for the duration of an encode or decode call.
type Vocabulary struct {
	version uint64
	tokens  []AddedToken

	// Indices into tokens.
	byContent map[string]int
	byID      map[int]int

	// nextID is the id the next registered token receives, unless the model already knows it.
	nextID int

	// Indices into tokens, in registration order, of the tokens matched on the raw input
	// (Normalized=false) and on the normalized input (Normalized=true).
	rawOrder, normalizedOrder []int
}

// NewVocabulary returns a snapshot with the given tokens, keeping their ids.
// Tokens are prioritized in the order given.
func NewVocabulary(tokens ...AddedToken) (*Vocabulary, error) {
	v := emptyVocabulary(0)
	for i, tok := range tokens {
		if tok.Content == "" {
			return nil, errors.Wrapf(ErrEmptyContent, "added token #%d", i)
		}
		if prev, found := v.byContent[tok.Content]; found {
			return nil, errors.Errorf("added token #%d %q is a duplicate of added token #%d", i, tok.Content, prev)
		}
		if prev, found := v.byID[tok.ID]; found {
			return nil, errors.Errorf("added token #%d %q reuses id %d of %q", i, tok.Content, tok.ID, v.tokens[prev].Content)
		}
		v.append(tok)
	}
	return v, nil
}

func emptyVocabulary(nextID int) *Vocabulary {
	return &Vocabulary{
		byContent: make(map[string]int),
		byID:      make(map[int]int),
		nextID:    nextID,
	}
}

// clone returns a copy of v that can be modified without affecting v.
func (v *Vocabulary) clone() *Vocabulary {
	c := &Vocabulary{
		version:         v.version,
		tokens:          make([]AddedToken, len(v.tokens), len(v.tokens)+1),
		byContent:       make(map[string]int, len(v.byContent)+1),
		byID:            make(map[int]int, len(v.byID)+1),
		nextID:          v.nextID,
		rawOrder:        make([]int, len(v.rawOrder), len(v.rawOrder)+1),
		normalizedOrder: make([]int, len(v.normalizedOrder), len(v.normalizedOrder)+1),
	}
	copy(c.tokens, v.tokens)
	copy(c.rawOrder, v.rawOrder)
	copy(c.normalizedOrder, v.normalizedOrder)
	for k, idx := range v.byContent {
		c.byContent[k] = idx
	}
	for k, idx := range v.byID {
		c.byID[k] = idx
	}
	return c
}

// append adds tok, with its id already set, as the lowest priority token.
func (v *Vocabulary) append(tok AddedToken) {
	idx := len(v.tokens)
	v.tokens = append(v.tokens, tok)
	v.byContent[tok.Content] = idx
	v.byID[tok.ID] = idx
	if tok.Normalized {
		v.normalizedOrder = append(v.normalizedOrder, idx)
	} else {
		v.rawOrder = append(v.rawOrder, idx)
	}
	v.nextID = max(v.nextID, tok.ID+1)
}

// Version is incremented every time the Registry publishes a changed snapshot.
func (v *Vocabulary) Version() uint64 {
	return v.version
}

// Len returns the number of added tokens.
func (v *Vocabulary) Len() int {
	return len(v.tokens)
}

// Tokens returns the added tokens in registration (priority) order.
func (v *Vocabulary) Tokens() []AddedToken {
	tokens := make([]AddedToken, len(v.tokens))
	copy(tokens, v.tokens)
	return tokens
}

// LookupContent returns the added token with the given content.
func (v *Vocabulary) LookupContent(content string) (AddedToken, bool) {
	idx, found := v.byContent[content]
	if !found {
		return AddedToken{}, false
	}
	return v.tokens[idx], true
}

// LookupID returns the added token with the given id.
func (v *Vocabulary) LookupID(id int) (AddedToken, bool) {
	idx, found := v.byID[id]
	if !found {
		return AddedToken{}, false
	}
	return v.tokens[idx], true
}

// IsSpecial returns whether id is the id of a special added token.
func (v *Vocabulary) IsSpecial(id int) bool {
	idx, found := v.byID[id]
	return found && v.tokens[idx].Special
}

// MaxID returns the largest id of the added tokens, or -1 if there are none.
func (v *Vocabulary) MaxID() int {
	maxID := -1
	for _, tok := range v.tokens {
		maxID = max(maxID, tok.ID)
	}
	return maxID
}

// SpecialIDs returns the ids of the special tokens, in registration order.
func (v *Vocabulary) SpecialIDs() []int {
	var ids []int
	for _, tok := range v.tokens {
		if tok.Special {
			ids = append(ids, tok.ID)
		}
	}
	return ids
}

// HasNormalizedTokens returns whether any token is matched against normalized text.
func (v *Vocabulary) HasNormalizedTokens() bool {
	return len(v.normalizedOrder) > 0
}

// Registry owns the added tokens of a tokenizer and assigns their ids.
//
// Registration is serialized, and every change publishes a new immutable Vocabulary:
// concurrent readers see either the previous or the new snapshot, never a partial update.
type Registry struct {
	mu      sync.Mutex
	model   ModelVocab
	current atomic.Pointer[Vocabulary]
}

// NewRegistry creates an empty registry. Fresh ids start after the model's vocabulary,
// and tokens the model already knows keep the model's id. model may be nil.
func NewRegistry(model ModelVocab) *Registry {
	r := &Registry{model: model}
	nextID := 0
	if model != nil {
		nextID = model.VocabSize()
	}
	r.current.Store(emptyVocabulary(nextID))
	return r
}

// Snapshot returns the current vocabulary.
func (r *Registry) Snapshot() *Vocabulary {
	return r.current.Load()
}

// Register adds the tokens, in order, with the lowest priority, and returns how many were
// new. Tokens whose content is already registered are ignored: the first registration's
// id and flags win.
//
// If any token has empty content nothing is registered and an error wrapping
// ErrEmptyContent is returned.
func (r *Registry) Register(tokens ...AddedToken) (int, error) {
	return r.register(tokens, false, false)
}

// RegisterSpecial is like Register, but marks the tokens as special.
func (r *Registry) RegisterSpecial(tokens ...AddedToken) (int, error) {
	return r.register(tokens, true, false)
}

// RegisterWithIDs registers tokens keeping the ids they carry, as loaded from a serialized
// tokenizer. It fails if an id is already used by a token with different content.
func (r *Registry) RegisterWithIDs(tokens ...AddedToken) (int, error) {
	return r.register(tokens, false, true)
}

func (r *Registry) register(tokens []AddedToken, special, keepIDs bool) (int, error) {
	for i, tok := range tokens {
		if tok.Content == "" {
			return 0, errors.Wrapf(ErrEmptyContent, "registering added token #%d", i)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.current.Load()
	next := current.clone()
	var added int
	for _, tok := range tokens {
		if special {
			tok.Special = true
		}
		if existing, found := next.LookupContent(tok.Content); found {
			if keepIDs && existing.ID != tok.ID {
				return 0, errors.Errorf("added token %q already registered with id %d, can't re-register it with id %d",
					tok.Content, existing.ID, tok.ID)
			}
			if existing.Special != tok.Special || existing.SingleWord != tok.SingleWord ||
				existing.LStrip != tok.LStrip || existing.RStrip != tok.RStrip || existing.Normalized != tok.Normalized {
				klog.V(1).Infof("added token %q re-registered with different flags, keeping %s", tok.Content, existing)
			}
			continue
		}
		if keepIDs {
			if idx, found := next.byID[tok.ID]; found {
				return 0, errors.Errorf("added token %q: id %d already used by %q", tok.Content, tok.ID, next.tokens[idx].Content)
			}
		} else {
			tok.ID = r.assignID(next, tok.Content)
		}
		next.append(tok)
		added++
		klog.V(2).Infof("registered %s", tok)
	}
	if added == 0 {
		return 0, nil
	}
	next.version = current.version + 1
	r.current.Store(next)
	klog.V(1).Infof("added vocabulary v%d: %d new tokens, %d in total", next.version, added, next.Len())
	return added, nil
}

// assignID returns the id for a new token with the given content.
func (r *Registry) assignID(v *Vocabulary, content string) int {
	if r.model != nil {
		if id, found := r.model.TokenToID(content); found {
			if _, taken := v.byID[id]; !taken {
				return id
			}
		}
		v.nextID = max(v.nextID, r.model.VocabSize())
	}
	for {
		id := v.nextID
		v.nextID++
		if _, taken := v.byID[id]; !taken {
			return id
		}
	}
}

// Package processors implements the post-processors of a tokenization pipeline: they add the
// special tokens (e.g. [CLS] and [SEP]) around one or a pair of encoded sequences.
package processors

import (
	"strconv"
	"strings"

	"github.com/gomlx/go-tokenizers/tokenizers/api"
	"github.com/pkg/errors"
)

// PostProcessor combines the encodings of one (b == nil) or two sequences.
// If addSpecial is false, sequences are only concatenated.
type PostProcessor interface {
	Process(a, b *api.EncodingResult, addSpecial bool) (*api.EncodingResult, error)
}

// Compile time assert that Template implements the PostProcessor interface.
var _ PostProcessor = (*Template)(nil)

// Sequence identifies the input sequences of a template.
type Sequence int

const (
	SequenceA Sequence = iota
	SequenceB
)

// Piece is an element of a template: either one of the input sequences or a special token.
type Piece struct {
	// Special is the name of the special token, or empty for a sequence.
	Special string

	Sequence Sequence
	TypeID   int
}

// String returns the piece in the template syntax, e.g. "$A:0" or "[CLS]:0".
func (p Piece) String() string {
	name := p.Special
	if name == "" {
		name = "$A"
		if p.Sequence == SequenceB {
			name = "$B"
		}
	}
	return name + ":" + strconv.Itoa(p.TypeID)
}

// SpecialToken is a named special token of a template. It may expand to several ids.
type SpecialToken struct {
	ID     string
	IDs    []int
	Tokens []string
}

// Template inserts special tokens following a template for single sequences and one for pairs.
type Template struct {
	Single, Pair  []Piece
	SpecialTokens map[string]SpecialToken
}

// ParseTemplate parses a template given as space separated pieces, e.g. "[CLS] $A [SEP] $B:1 [SEP]:1".
//
// "$A" (or "$"), "$B" refer to the input sequences, "$<n>" to sequence A with type id n, and
// anything else to a special token. A ":<n>" suffix sets the type id.
func ParseTemplate(template string) ([]Piece, error) {
	var pieces []Piece
	for _, field := range strings.Fields(template) {
		p, err := parsePiece(field)
		if err != nil {
			return nil, err
		}
		pieces = append(pieces, p)
	}
	return pieces, nil
}

func parsePiece(field string) (Piece, error) {
	name, typeID := field, 0
	if idx := strings.LastIndexByte(field, ':'); idx > 0 {
		n, err := strconv.Atoi(field[idx+1:])
		if err == nil {
			name, typeID = field[:idx], n
		}
	}
	rest, isSequence := strings.CutPrefix(name, "$")
	if !isSequence {
		return Piece{Special: name, TypeID: typeID}, nil
	}
	switch rest {
	case "", "A", "a":
		return Piece{Sequence: SequenceA, TypeID: typeID}, nil
	case "B", "b":
		return Piece{Sequence: SequenceB, TypeID: typeID}, nil
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return Piece{}, errors.Errorf("invalid template piece %q", field)
	}
	return Piece{Sequence: SequenceA, TypeID: n}, nil
}

// Validate checks that the templates refer to the right sequences and known special tokens.
func (t *Template) Validate() error {
	check := func(name string, pieces []Piece, maxSequence Sequence) error {
		for _, p := range pieces {
			if p.Special == "" {
				if p.Sequence > maxSequence {
					return errors.Errorf("%s template refers to sequence B", name)
				}
				continue
			}
			st, found := t.SpecialTokens[p.Special]
			if !found {
				return errors.Errorf("%s template refers to undefined special token %q", name, p.Special)
			}
			if len(st.IDs) != len(st.Tokens) {
				return errors.Errorf("special token %q has %d ids and %d tokens", p.Special, len(st.IDs), len(st.Tokens))
			}
		}
		return nil
	}
	if err := check("single", t.Single, SequenceA); err != nil {
		return err
	}
	return check("pair", t.Pair, SequenceB)
}

// Process implements PostProcessor.
//
// Special tokens get an empty span at the end of what precedes them in the same sequence,
// so spans stay non-decreasing within a sequence.
func (t *Template) Process(a, b *api.EncodingResult, addSpecial bool) (*api.EncodingResult, error) {
	if a == nil {
		return nil, errors.New("post-processing requires at least one sequence")
	}
	out := &api.EncodingResult{}
	if !addSpecial {
		appendSequence(out, a, 0)
		if b != nil {
			appendSequence(out, b, 1)
		}
		return out, nil
	}

	pieces := t.Single
	if b != nil {
		pieces = t.Pair
		if len(pieces) == 0 {
			return nil, errors.New("post-processor has no template for pairs of sequences")
		}
	}
	pos := 0
	for _, p := range pieces {
		if p.Special == "" {
			seq := a
			if p.Sequence == SequenceB {
				if b == nil {
					return nil, errors.New("template for single sequences refers to sequence B")
				}
				seq, pos = b, 0
			}
			appendSequence(out, seq, p.TypeID)
			if n := len(seq.Spans); n > 0 {
				pos = seq.Spans[n-1].End
			}
			continue
		}
		st, found := t.SpecialTokens[p.Special]
		if !found {
			return nil, errors.Errorf("undefined special token %q in template", p.Special)
		}
		for i, id := range st.IDs {
			out.Append(api.Token{Value: st.Tokens[i], ID: id, Span: api.TokenSpan{Start: pos, End: pos}}, p.TypeID, true)
		}
	}
	return out, nil
}

func appendSequence(out, seq *api.EncodingResult, typeID int) {
	for i, id := range seq.IDs {
		special := i < len(seq.SpecialTokensMask) && seq.SpecialTokensMask[i] != 0
		out.Append(api.Token{Value: seq.Tokens[i], ID: id, Span: seq.Spans[i]}, typeID, special)
	}
}

// NewBert returns the BERT post-processor: "[CLS] $A [SEP]" and "[CLS] $A [SEP] $B:1 [SEP]:1".
func NewBert(sep string, sepID int, cls string, clsID int) *Template {
	return &Template{
		Single: []Piece{{Special: cls}, {Sequence: SequenceA}, {Special: sep}},
		Pair: []Piece{
			{Special: cls}, {Sequence: SequenceA}, {Special: sep},
			{Sequence: SequenceB, TypeID: 1}, {Special: sep, TypeID: 1},
		},
		SpecialTokens: map[string]SpecialToken{
			sep: {ID: sep, IDs: []int{sepID}, Tokens: []string{sep}},
			cls: {ID: cls, IDs: []int{clsID}, Tokens: []string{cls}},
		},
	}
}

// NewRoberta returns the RoBERTa post-processor: "<s> $A </s>" and "<s> $A </s> </s> $B </s>",
// all with type id 0.
func NewRoberta(sep string, sepID int, cls string, clsID int) *Template {
	return &Template{
		Single: []Piece{{Special: cls}, {Sequence: SequenceA}, {Special: sep}},
		Pair: []Piece{
			{Special: cls}, {Sequence: SequenceA}, {Special: sep},
			{Special: sep}, {Sequence: SequenceB}, {Special: sep},
		},
		SpecialTokens: map[string]SpecialToken{
			sep: {ID: sep, IDs: []int{sepID}, Tokens: []string{sep}},
			cls: {ID: cls, IDs: []int{clsID}, Tokens: []string{cls}},
		},
	}
}

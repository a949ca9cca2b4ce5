// Package sentencepiece implements a tokenizer Model based on Google's SentencePiece, using
// github.com/eliben/go-sentencepiece to encode and decode.
//
// The Model plugs into a pipeline.Tokenizer with no normalizer nor pre-tokenizer: the
// SentencePiece processor does its own normalization. The control and user defined pieces
// of the model become added tokens.
package sentencepiece

import (
	"bytes"
	"os"
	"strings"
	"unicode"

	esentencepiece "github.com/eliben/go-sentencepiece"
	"github.com/gomlx/go-tokenizers/tokenizers/addedvocab"
	"github.com/gomlx/go-tokenizers/tokenizers/api"
	"github.com/gomlx/go-tokenizers/tokenizers/pipeline"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ModelFile is the usual name of the SentencePiece model file.
const ModelFile = "tokenizer.model"

// metaspace is the U+2581 character SentencePiece uses to mark spaces.
const metaspace = "▁"

// Model implements pipeline.Model and pipeline.IDsDecoder with a SentencePiece processor.
type Model struct {
	*esentencepiece.Processor
	Info *esentencepiece.ModelInfo

	pieces []Piece
	toID   map[string]int
}

// Compile time assert that Model implements the pipeline interfaces.
var (
	_ pipeline.Model      = (*Model)(nil)
	_ pipeline.IDsDecoder = (*Model)(nil)
)

// NewModelFromPath creates a Model from a SentencePiece model file (usually "tokenizer.model").
func NewModelFromPath(filePath string) (*Model, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read SentencePiece model %q", filePath)
	}
	m, err := NewModel(content)
	if err != nil {
		return nil, errors.WithMessagef(err, "in file %q", filePath)
	}
	return m, nil
}

// NewModel creates a Model from the contents of a SentencePiece model proto.
func NewModel(content []byte) (*Model, error) {
	pieces, err := ParsePieces(content)
	if err != nil {
		return nil, err
	}
	proc, err := esentencepiece.NewProcessor(bytes.NewReader(content))
	if err != nil {
		return nil, errors.Wrapf(err, "can't create sentencepiece processor")
	}
	m := &Model{
		Processor: proc,
		Info:      proc.ModelInfo(),
		pieces:    pieces,
		toID:      make(map[string]int, len(pieces)),
	}
	for id, p := range pieces {
		if _, found := m.toID[p.Piece]; !found {
			m.toID[p.Piece] = id
		}
	}
	return m, nil
}

// Pieces returns the pieces of the model, indexed by id.
func (m *Model) Pieces() []Piece {
	return m.pieces
}

// TokenToID implements pipeline.Model.
func (m *Model) TokenToID(token string) (int, bool) {
	id, found := m.toID[token]
	return id, found
}

// IDToToken implements pipeline.Model.
func (m *Model) IDToToken(id int) (string, bool) {
	if id < 0 || id >= len(m.pieces) {
		return "", false
	}
	return m.pieces[id].Piece, true
}

// VocabSize implements pipeline.Model.
func (m *Model) VocabSize() int {
	return len(m.pieces)
}

// Tokenize implements pipeline.Model. Spans are recovered by matching the pieces back to the text.
func (m *Model) Tokenize(piece string) ([]api.Token, error) {
	encoded := m.Processor.Encode(piece)
	spans := recoverSpans(piece, encoded)
	tokens := make([]api.Token, len(encoded))
	for i, tok := range encoded {
		tokens[i] = api.Token{Value: tok.Text, ID: tok.ID, Span: spans[i]}
	}
	return tokens, nil
}

// DecodeIDs implements pipeline.IDsDecoder.
func (m *Model) DecodeIDs(ids []int) (string, error) {
	for _, id := range ids {
		if id < 0 || id >= len(m.pieces) {
			return "", errors.Errorf("id %d out of range (vocabulary size %d)", id, len(m.pieces))
		}
	}
	return m.Processor.Decode(ids), nil
}

// recoverSpans finds the byte span in text of each encoded token.
//
// A leading "▁" matches the whitespace before the token's text. Byte fallback tokens ("<0xXX>")
// cover one byte each. Tokens that can't be found (e.g. the unknown token) get an empty span
// at the current position.
func recoverSpans(text string, encoded []esentencepiece.Token) []api.TokenSpan {
	spans := make([]api.TokenSpan, len(encoded))
	pos := 0
	for i, tok := range encoded {
		if isByteToken(tok.Text) {
			end := min(pos+1, len(text))
			spans[i] = api.TokenSpan{Start: pos, End: end}
			pos = end
			continue
		}
		content, hasSpace := strings.CutPrefix(tok.Text, metaspace)
		start := pos
		if hasSpace {
			for pos < len(text) && unicode.IsSpace(rune(text[pos])) {
				pos++
			}
		}
		content = strings.ReplaceAll(content, metaspace, " ")
		if content == "" {
			spans[i] = api.TokenSpan{Start: start, End: pos}
			continue
		}
		idx := strings.Index(text[pos:], content)
		if idx < 0 {
			spans[i] = api.TokenSpan{Start: pos, End: pos}
			continue
		}
		if !hasSpace || idx > 0 {
			start = pos + idx
		}
		pos += idx + len(content)
		spans[i] = api.TokenSpan{Start: start, End: pos}
	}
	return spans
}

func isByteToken(piece string) bool {
	return len(piece) == 6 && strings.HasPrefix(piece, "<0x") && piece[5] == '>'
}

// New creates a SentencePiece tokenizer from a model file (usually "tokenizer.model").
//
// The unknown, control and user defined pieces are registered as added tokens, keeping their
// ids; the first two as special tokens. The config is optional (it can be nil).
func New(config *api.Config, filePath string) (*pipeline.Tokenizer, error) {
	model, err := NewModelFromPath(filePath)
	if err != nil {
		return nil, err
	}
	return NewFromModel(config, model)
}

// NewFromModel creates a tokenizer for the given Model. See New.
func NewFromModel(config *api.Config, model *Model) (*pipeline.Tokenizer, error) {
	tok := pipeline.New(model).WithConfig(config)
	var added []addedvocab.AddedToken
	for id, p := range model.Pieces() {
		switch p.Type {
		case PieceUnknown, PieceControl:
			at := addedvocab.NewToken(p.Piece, true)
			at.ID = id
			added = append(added, at)
		case PieceUserDefined:
			at := addedvocab.NewToken(p.Piece, false).WithNormalized(false)
			at.ID = id
			added = append(added, at)
		}
	}
	if _, err := tok.Registry().RegisterWithIDs(added...); err != nil {
		return nil, errors.WithMessage(err, "registering SentencePiece control pieces")
	}
	for token, id := range map[api.SpecialToken]int{
		api.TokUnknown:             model.Info.UnknownID,
		api.TokBeginningOfSentence: model.Info.BeginningOfSentenceID,
		api.TokEndOfSentence:       model.Info.EndOfSentenceID,
		api.TokPad:                 model.Info.PadID,
	} {
		if id >= 0 && id < model.VocabSize() {
			tok.WithSpecialTokenID(token, id)
		}
	}
	klog.V(1).Infof("SentencePiece model with %d pieces, %d added tokens", model.VocabSize(), len(added))
	return tok, nil
}

package sentencepiece

import (
	"math"
	"os"
	"testing"

	esentencepiece "github.com/eliben/go-sentencepiece"
	"github.com/gomlx/go-tokenizers/tokenizers/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

// appendPiece appends a ModelProto.pieces entry to b.
func appendPiece(b []byte, piece string, score float32, pieceType PieceType) []byte {
	var msg []byte
	msg = protowire.AppendTag(msg, piecePieceField, protowire.BytesType)
	msg = protowire.AppendString(msg, piece)
	msg = protowire.AppendTag(msg, pieceScoreField, protowire.Fixed32Type)
	msg = protowire.AppendFixed32(msg, math.Float32bits(score))
	if pieceType != PieceNormal {
		msg = protowire.AppendTag(msg, pieceTypeField, protowire.VarintType)
		msg = protowire.AppendVarint(msg, uint64(pieceType))
	}
	b = protowire.AppendTag(b, modelPiecesField, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func TestParsePieces(t *testing.T) {
	var content []byte
	content = appendPiece(content, "<unk>", 0, PieceUnknown)
	content = appendPiece(content, "<s>", 0, PieceControl)
	content = appendPiece(content, "<mask>", 0, PieceUserDefined)
	// A trainer_spec, to be skipped.
	content = protowire.AppendTag(content, 2, protowire.BytesType)
	content = protowire.AppendBytes(content, []byte{0x08, 0x01})
	content = appendPiece(content, "▁hi", -1.5, PieceNormal)
	content = appendPiece(content, "<0x41>", 0, PieceByte)

	pieces, err := ParsePieces(content)
	require.NoError(t, err)
	assert.Equal(t, []Piece{
		{Piece: "<unk>", Type: PieceUnknown},
		{Piece: "<s>", Type: PieceControl},
		{Piece: "<mask>", Type: PieceUserDefined},
		{Piece: "▁hi", Score: -1.5, Type: PieceNormal},
		{Piece: "<0x41>", Type: PieceByte},
	}, pieces)

	t.Run("Errors", func(t *testing.T) {
		_, err := ParsePieces(nil)
		assert.Error(t, err)
		_, err = ParsePieces(content[:len(content)-2])
		assert.Error(t, err)
		_, err = ParsePieces([]byte{0xff})
		assert.Error(t, err)
	})
}

func TestRecoverSpans(t *testing.T) {
	testCases := []struct {
		name   string
		text   string
		pieces []string
		want   []api.TokenSpan
	}{
		{"Words", "hello world", []string{"▁hello", "▁wor", "ld"},
			[]api.TokenSpan{{Start: 0, End: 5}, {Start: 5, End: 9}, {Start: 9, End: 11}}},
		{"MultipleSpaces", "a  b", []string{"▁a", "▁b"},
			[]api.TokenSpan{{Start: 0, End: 1}, {Start: 1, End: 4}}},
		{"ByteFallback", "a€", []string{"▁a", "<0xE2>", "<0x82>", "<0xAC>"},
			[]api.TokenSpan{{Start: 0, End: 1}, {Start: 1, End: 2}, {Start: 2, End: 3}, {Start: 3, End: 4}}},
		{"Unknown", "a b", []string{"▁a", "▁", "<unk>"},
			[]api.TokenSpan{{Start: 0, End: 1}, {Start: 1, End: 2}, {Start: 2, End: 2}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := make([]esentencepiece.Token, len(tc.pieces))
			for i, p := range tc.pieces {
				encoded[i] = esentencepiece.Token{ID: i, Text: p}
			}
			assert.Equal(t, tc.want, recoverSpans(tc.text, encoded))
		})
	}
}

// TestModelFile runs on a real SentencePiece model, given by $SENTENCEPIECE_MODEL
// (e.g. the "tokenizer.model" of google/flan-t5-small).
func TestModelFile(t *testing.T) {
	path := os.Getenv("SENTENCEPIECE_MODEL")
	if path == "" {
		t.Skip("SENTENCEPIECE_MODEL not set")
	}
	tok, err := New(nil, path)
	require.NoError(t, err)

	inputs := []string{
		"hello",
		"hello world",
		"The quick brown fox jumps over the lazy dog.",
		"Multiple  spaces   here",
	}
	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			enc, err := tok.Encode(input, false)
			require.NoError(t, err)
			require.Len(t, enc.Spans, len(enc.IDs))
			prevEnd := 0
			for i, span := range enc.Spans {
				assert.GreaterOrEqual(t, span.Start, prevEnd, "token %d", i)
				assert.LessOrEqual(t, span.Start, span.End, "token %d", i)
				assert.LessOrEqual(t, span.End, len(input), "token %d", i)
				prevEnd = span.End
			}
			decoded, err := tok.Decode(enc.IDs, true)
			require.NoError(t, err)
			assert.NotEmpty(t, decoded)
		})
	}

	id, err := tok.SpecialTokenID(api.TokUnknown)
	require.NoError(t, err)
	token, found := tok.IDToToken(id)
	assert.True(t, found)
	assert.NotEmpty(t, token)
}

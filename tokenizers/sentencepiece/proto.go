package sentencepiece

import (
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// PieceType is the type of a piece in the SentencePiece model proto.
type PieceType int

const (
	PieceNormal      PieceType = 1
	PieceUnknown     PieceType = 2
	PieceControl     PieceType = 3
	PieceUserDefined PieceType = 4
	PieceUnused      PieceType = 5
	PieceByte        PieceType = 6
)

// Piece is an entry of the SentencePiece vocabulary.
type Piece struct {
	Piece string
	Score float32
	Type  PieceType
}

// Field numbers in the sentencepiece.ModelProto message.
const (
	modelPiecesField protowire.Number = 1

	piecePieceField protowire.Number = 1
	pieceScoreField protowire.Number = 2
	pieceTypeField  protowire.Number = 3
)

// ParsePieces reads the vocabulary of a SentencePiece model proto: the pieces (field 1 of
// ModelProto), indexed by id. All other fields are skipped.
func ParsePieces(content []byte) ([]Piece, error) {
	var pieces []Piece
	b := content
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, errors.Wrap(protowire.ParseError(n), "invalid SentencePiece model")
		}
		b = b[n:]
		if num == modelPiecesField && typ == protowire.BytesType {
			msg, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, errors.Wrapf(protowire.ParseError(n), "invalid SentencePiece piece #%d", len(pieces))
			}
			piece, err := parsePiece(msg)
			if err != nil {
				return nil, errors.WithMessagef(err, "SentencePiece piece #%d", len(pieces))
			}
			pieces = append(pieces, piece)
			b = b[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return nil, errors.Wrapf(protowire.ParseError(n), "invalid SentencePiece model field %d", num)
		}
		b = b[n:]
	}
	if len(pieces) == 0 {
		return nil, errors.New("SentencePiece model has no pieces")
	}
	return pieces, nil
}

func parsePiece(b []byte) (Piece, error) {
	p := Piece{Type: PieceNormal}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return p, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == piecePieceField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			p.Piece = string(v)
			b = b[n:]
		case num == pieceScoreField && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			p.Score = math.Float32frombits(v)
			b = b[n:]
		case num == pieceTypeField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			p.Type = PieceType(v)
			b = b[n:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return p, nil
}

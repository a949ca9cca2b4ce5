// Package api defines the Tokenizer API and the types shared by all the tokenizer components.
// It's just a hack to break the cyclic dependency, and allow the users to import `tokenizers` and get the
// default implementations.
package api

import "fmt"

// TokenSpan represents the byte span of a token in the original text.
// Start and End are byte offsets (not rune offsets), suitable for slicing
// Go strings directly: originalText[span.Start:span.End].
// This is useful for token classification tasks (NER, chunking) where you need
// to map token predictions back to positions in the original text.
type TokenSpan struct {
	Start int // start byte position (inclusive)
	End   int // end byte position (exclusive)
}

// Len returns the number of bytes covered by the span.
func (s TokenSpan) Len() int {
	return s.End - s.Start
}

// IsEmpty returns whether the span covers no bytes.
func (s TokenSpan) IsEmpty() bool {
	return s.End <= s.Start
}

// Shift returns the span moved by delta bytes.
func (s TokenSpan) Shift(delta int) TokenSpan {
	return TokenSpan{Start: s.Start + delta, End: s.End + delta}
}

// Union returns the smallest span covering both s and other.
func (s TokenSpan) Union(other TokenSpan) TokenSpan {
	return TokenSpan{Start: min(s.Start, other.Start), End: max(s.End, other.End)}
}

func (s TokenSpan) String() string {
	return fmt.Sprintf("(%d,%d)", s.Start, s.End)
}

// Token is the unit produced by tokenization: the token string, its id and its span.
//
// For tokens produced by a Model, Span is relative to the piece given to the Model.
// In an EncodingResult spans are always in the coordinates of the original input.
type Token struct {
	Value string
	ID    int
	Span  TokenSpan
}

// EncodingResult contains tokens with their spans in the original text.
type EncodingResult struct {
	IDs    []int       // token IDs
	Tokens []string    // token strings, as produced by the model or the matched added token
	Spans  []TokenSpan // byte spans for each token (use originalText[span.Start:span.End] to extract)

	// TypeIDs holds the sequence index (0 or 1) of each token, set by the post-processor for pairs.
	TypeIDs []int

	// SpecialTokensMask is 1 for tokens inserted by a post-processor template, 0 otherwise.
	SpecialTokensMask []int
}

// Len returns the number of tokens in the encoding.
func (e *EncodingResult) Len() int {
	return len(e.IDs)
}

// Append adds a token to the encoding.
func (e *EncodingResult) Append(tok Token, typeID int, special bool) {
	e.IDs = append(e.IDs, tok.ID)
	e.Tokens = append(e.Tokens, tok.Value)
	e.Spans = append(e.Spans, tok.Span)
	e.TypeIDs = append(e.TypeIDs, typeID)
	mask := 0
	if special {
		mask = 1
	}
	e.SpecialTokensMask = append(e.SpecialTokensMask, mask)
}

// Extend appends all tokens of other to e.
func (e *EncodingResult) Extend(other *EncodingResult) {
	if other == nil {
		return
	}
	e.IDs = append(e.IDs, other.IDs...)
	e.Tokens = append(e.Tokens, other.Tokens...)
	e.Spans = append(e.Spans, other.Spans...)
	e.TypeIDs = append(e.TypeIDs, other.TypeIDs...)
	e.SpecialTokensMask = append(e.SpecialTokensMask, other.SpecialTokensMask...)
}

// Tokenizer interface allows one convert test to "tokens" (integer ids) and back.
//
// It also allows mapping of special tokens: tokens with a common semantic (like padding) but that
// may map to different ids (int) for different tokenizers.
type Tokenizer interface {
	// Encode text into tokens. If addSpecial is true the configured post-processor
	// (e.g. adding [CLS] and [SEP]) is applied.
	Encode(text string, addSpecial bool) (*EncodingResult, error)

	// Decode ids back to text. If skipSpecial is true, special added tokens are omitted.
	Decode(ids []int, skipSpecial bool) (string, error)

	// TokenToID returns the id of the given token, if known.
	TokenToID(token string) (int, bool)

	// IDToToken returns the token for the given id, if known.
	IDToToken(id int) (string, bool)

	// SpecialTokenID returns ID for given special token if registered, or an error if not.
	SpecialTokenID(token SpecialToken) (int, error)
}

// Config holds the special token names of a tokenizer, usually from tokenizer_config.json.
// They are used to resolve SpecialTokenID when the tokenizer itself doesn't name them.
type Config struct {
	BosToken  string `json:"bos_token"`
	EosToken  string `json:"eos_token"`
	UnkToken  string `json:"unk_token"`
	PadToken  string `json:"pad_token"`
	ClsToken  string `json:"cls_token"`
	SepToken  string `json:"sep_token"`
	MaskToken string `json:"mask_token"`
}

// SpecialToken is an enum of commonly used special tokens.
type SpecialToken int

const (
	TokBeginningOfSentence SpecialToken = iota
	TokEndOfSentence
	TokUnknown
	TokPad
	TokMask
	TokClassification
	TokSpecialTokensCount
)

var specialTokenNames = [...]string{
	TokBeginningOfSentence: "beginning_of_sentence",
	TokEndOfSentence:       "end_of_sentence",
	TokUnknown:             "unknown",
	TokPad:                 "pad",
	TokMask:                "mask",
	TokClassification:      "classification",
	TokSpecialTokensCount:  "special_tokens_count",
}

func (t SpecialToken) String() string {
	if t < 0 || int(t) >= len(specialTokenNames) {
		return fmt.Sprintf("SpecialToken(%d)", int(t))
	}
	return specialTokenNames[t]
}

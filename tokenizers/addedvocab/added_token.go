// Package addedvocab implements the added vocabulary of a tokenizer: literal strings
// ("added tokens", including special/control tokens) registered on top of the model's
// vocabulary, that are recognized in the raw text before the general tokenization
// pipeline runs.
//
// The Registry owns the registered tokens and publishes immutable Vocabulary snapshots.
// A Vocabulary finds the spans claimed by its tokens in a text (Vocabulary.Match), and
// Split splits a text into added and normal segments from those claims.
//
// Tokens are matched in registration order: the earliest registered token claims its
// occurrences first, and later tokens can only match in the bytes left unclaimed.
package addedvocab

import (
	"fmt"
	"strings"
)

// AddedToken is a literal string recognized ahead of the model tokenization.
// It is immutable once registered.
type AddedToken struct {
	// Content is the exact literal to match. It can't be empty.
	Content string `json:"content"`

	// ID is assigned at registration.
	ID int `json:"id"`

	// Special tokens are omitted on decoding when the caller asks to skip special tokens.
	Special bool `json:"special"`

	// SingleWord tokens only match when not preceded nor followed by a word character
	// (letter, digit or underscore).
	SingleWord bool `json:"single_word"`

	// LStrip and RStrip absorb the whitespace preceding (LStrip) or following (RStrip) a match
	// into the token's span.
	LStrip bool `json:"lstrip"`
	RStrip bool `json:"rstrip"`

	// Normalized tokens are matched against the normalized text, instead of the raw input.
	Normalized bool `json:"normalized"`
}

// NewToken returns an added token with the given content.
//
// As with the HuggingFace tokenizers, ordinary tokens default to Normalized=true and
// special tokens to Normalized=false. Use the With* methods to change the flags.
func NewToken(content string, special bool) AddedToken {
	return AddedToken{
		Content:    content,
		Special:    special,
		Normalized: !special,
	}
}

// WithSingleWord returns a copy of the token with SingleWord set.
func (t AddedToken) WithSingleWord(v bool) AddedToken {
	t.SingleWord = v
	return t
}

// WithLStrip returns a copy of the token with LStrip set.
func (t AddedToken) WithLStrip(v bool) AddedToken {
	t.LStrip = v
	return t
}

// WithRStrip returns a copy of the token with RStrip set.
func (t AddedToken) WithRStrip(v bool) AddedToken {
	t.RStrip = v
	return t
}

// WithNormalized returns a copy of the token with Normalized set.
func (t AddedToken) WithNormalized(v bool) AddedToken {
	t.Normalized = v
	return t
}

// String implements fmt.Stringer.
func (t AddedToken) String() string {
	var flags []string
	if t.Special {
		flags = append(flags, "special")
	}
	if t.SingleWord {
		flags = append(flags, "single_word")
	}
	if t.LStrip {
		flags = append(flags, "lstrip")
	}
	if t.RStrip {
		flags = append(flags, "rstrip")
	}
	if t.Normalized {
		flags = append(flags, "normalized")
	}
	return fmt.Sprintf("AddedToken(%q, id=%d, [%s])", t.Content, t.ID, strings.Join(flags, ","))
}

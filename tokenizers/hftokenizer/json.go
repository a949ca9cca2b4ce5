package hftokenizer

import (
	"encoding/json"

	"github.com/gomlx/go-tokenizers/tokenizers/addedvocab"
	"github.com/gomlx/go-tokenizers/tokenizers/models"
	"github.com/pkg/errors"
)

// TokenizerJSON represents the structure of HuggingFace's tokenizer.json file.
type TokenizerJSON struct {
	Version       string                  `json:"version"`
	AddedTokens   []addedvocab.AddedToken `json:"added_tokens"`
	Normalizer    *Normalizer             `json:"normalizer"`
	PreTokenizer  *PreTokenizer           `json:"pre_tokenizer"`
	PostProcessor *PostProcessor          `json:"post_processor"`
	Decoder       *Decoder                `json:"decoder"`
	Model         Model                   `json:"model"`
}

// Pattern for regex-based operations: exactly one of String and Regex is set.
type Pattern struct {
	Regex  string `json:"Regex,omitempty"`
	String string `json:"String,omitempty"`
}

// Normalizer represents the normalizer configuration.
type Normalizer struct {
	Type        string       `json:"type"`
	Normalizers []Normalizer `json:"normalizers"`

	// BertNormalizer.
	CleanText          bool  `json:"clean_text"`
	HandleChineseChars bool  `json:"handle_chinese_chars"`
	StripAccents       *bool `json:"strip_accents"`
	Lowercase          bool  `json:"lowercase"`

	// Replace.
	Pattern *Pattern `json:"pattern"`
	Content string   `json:"content"`

	// Prepend.
	Prepend string `json:"prepend"`

	// Strip.
	Left  bool `json:"left"`
	Right bool `json:"right"`
}

// PreTokenizer represents the pre-tokenizer configuration.
type PreTokenizer struct {
	Type          string         `json:"type"`
	PreTokenizers []PreTokenizer `json:"pretokenizers"`

	// ByteLevel and (legacy) Metaspace.
	AddPrefixSpace bool  `json:"add_prefix_space"`
	UseRegex       *bool `json:"use_regex"`

	// Metaspace.
	Replacement   string `json:"replacement"`
	PrependScheme string `json:"prepend_scheme"`
	Split         *bool  `json:"split"`

	// Split and Punctuation.
	Pattern  *Pattern `json:"pattern"`
	Behavior string   `json:"behavior"`
	Invert   bool     `json:"invert"`

	// Digits.
	IndividualDigits bool `json:"individual_digits"`
}

// Model represents the tokenizer model (BPE, WordPiece, WordLevel or Unigram).
//
// Vocab is a map of token to id, except for Unigram where it is a list of [token, score] pairs.
type Model struct {
	Type  string          `json:"type"`
	Vocab json.RawMessage `json:"vocab"`

	// Merges are either "a b" strings or ["a", "b"] pairs.
	Merges json.RawMessage `json:"merges"`

	UnkToken                *string  `json:"unk_token"`
	UnkID                   *int     `json:"unk_id"`
	ContinuingSubwordPrefix *string  `json:"continuing_subword_prefix"`
	EndOfWordSuffix         *string  `json:"end_of_word_suffix"`
	MaxInputCharsPerWord    int      `json:"max_input_chars_per_word"`
	FuseUnk                 bool     `json:"fuse_unk"`
	ByteFallback            bool     `json:"byte_fallback"`
	IgnoreMerges            bool     `json:"ignore_merges"`
	Dropout                 *float64 `json:"dropout"`
}

// Decoder represents the decoder configuration.
type Decoder struct {
	Type     string    `json:"type"`
	Decoders []Decoder `json:"decoders"`

	// WordPiece.
	Prefix  string `json:"prefix"`
	Cleanup *bool  `json:"cleanup"`

	// BPEDecoder.
	Suffix string `json:"suffix"`

	// Metaspace.
	Replacement    string `json:"replacement"`
	AddPrefixSpace *bool  `json:"add_prefix_space"`
	PrependScheme  string `json:"prepend_scheme"`

	// Replace and Strip.
	Pattern *Pattern `json:"pattern"`
	Content string   `json:"content"`
	Start   int      `json:"start"`
	Stop    int      `json:"stop"`
}

// PostProcessor represents the post-processor configuration.
type PostProcessor struct {
	Type       string          `json:"type"`
	Processors []PostProcessor `json:"processors"`

	// TemplateProcessing.
	Single        []TemplateItem                  `json:"single"`
	Pair          []TemplateItem                  `json:"pair"`
	SpecialTokens map[string]PostProcSpecialToken `json:"special_tokens"`

	// BertProcessing and RobertaProcessing.
	Sep *TokenRef `json:"sep"`
	Cls *TokenRef `json:"cls"`

	// ByteLevel and RobertaProcessing: both default to true when missing.
	TrimOffsets    *bool `json:"trim_offsets"`
	AddPrefixSpace *bool `json:"add_prefix_space"`
}

// TemplateItem is an item of a template: either a special token or one of the input sequences.
type TemplateItem struct {
	SpecialToken *struct {
		ID     string `json:"id"`
		TypeID int    `json:"type_id"`
	} `json:"SpecialToken,omitempty"`
	Sequence *struct {
		ID     string `json:"id"`
		TypeID int    `json:"type_id"`
	} `json:"Sequence,omitempty"`
}

// PostProcSpecialToken defines a special token for post-processing.
type PostProcSpecialToken struct {
	ID     string   `json:"id"`
	IDs    []int    `json:"ids"`
	Tokens []string `json:"tokens"`
}

// TokenRef is a token given as a ["token", id] pair.
type TokenRef struct {
	Token string
	ID    int
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *TokenRef) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return errors.Wrap(err, "token reference must be a [token, id] pair")
	}
	if len(pair) != 2 {
		return errors.Errorf("token reference must be a [token, id] pair, got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &r.Token); err != nil {
		return errors.Wrap(err, "token reference")
	}
	return errors.Wrap(json.Unmarshal(pair[1], &r.ID), "token reference")
}

// MarshalJSON implements json.Marshaler.
func (r TokenRef) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{r.Token, r.ID})
}

// parseVocab parses the token to id map of BPE, WordPiece and WordLevel models.
func parseVocab(raw json.RawMessage) (map[string]int, error) {
	vocab := make(map[string]int)
	if len(raw) == 0 {
		return vocab, nil
	}
	if err := json.Unmarshal(raw, &vocab); err != nil {
		return nil, errors.Wrap(err, "failed to parse model vocab")
	}
	return vocab, nil
}

// parseMerges accepts both formats of the BPE merges: "a b" strings (older files) and
// ["a", "b"] pairs, that allow tokens with spaces.
func parseMerges(raw json.RawMessage) ([][2]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return models.ParseMerges(lines)
	}
	var pairs [][2]string
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, errors.Wrap(err, "failed to parse model merges")
	}
	return pairs, nil
}

// parseUnigramVocab parses the [token, score] pairs of Unigram models.
func parseUnigramVocab(raw json.RawMessage) ([]unigramEntry, error) {
	var entries []unigramEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errors.Wrap(err, "failed to parse Unigram vocab")
	}
	return entries, nil
}

type unigramEntry struct {
	Token string
	Score float64
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *unigramEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return errors.Errorf("Unigram vocab entries must be [token, score] pairs, got %s", data)
	}
	if err := json.Unmarshal(pair[0], &e.Token); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &e.Score)
}

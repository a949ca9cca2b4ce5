// Package hftokenizer implements a tokenizer for HuggingFace's tokenizer.json format.
// This format is used by the HuggingFace Tokenizers library (the "fast" tokenizers)
// and supports WordPiece (BERT), BPE (GPT-2, RoBERTa), WordLevel and Unigram models.
//
// The tokenizer.json components are mapped to the pipeline stages (see package pipeline),
// and its "added_tokens" to the added vocabulary, with their ids and flags.
package hftokenizer

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/gomlx/go-tokenizers/internal/files"
	"github.com/gomlx/go-tokenizers/tokenizers/api"
	"github.com/gomlx/go-tokenizers/tokenizers/pipeline"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// TokenizerFile is the name of the tokenizer file in a HuggingFace model directory.
	TokenizerFile = "tokenizer.json"

	// ConfigFile is the name of the file with the special token names.
	ConfigFile = "tokenizer_config.json"
)

// Tokenizer is a pipeline.Tokenizer built from a tokenizer.json file.
type Tokenizer struct {
	*pipeline.Tokenizer

	modelType string

	// raw holds the top-level entries of the loaded file, so Save preserves what isn't
	// interpreted here (truncation, padding, ...).
	raw map[string]json.RawMessage
}

// Compile time assert that Tokenizer implements api.Tokenizer interface.
var _ api.Tokenizer = &Tokenizer{}

// NewFromDir creates a HuggingFace tokenizer from a model directory with a tokenizer.json file,
// and optionally a tokenizer_config.json with the names of the special tokens.
func NewFromDir(dir string) (*Tokenizer, error) {
	var config *api.Config
	if configPath := filepath.Join(dir, ConfigFile); files.Exists(configPath) {
		var err error
		config, err = LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
	}
	return NewFromFile(config, filepath.Join(dir, TokenizerFile))
}

// NewFromFile creates a HuggingFace tokenizer from a local tokenizer.json file path.
// The config is optional (it can be nil).
func NewFromFile(config *api.Config, filePath string) (*Tokenizer, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tokenizer.json file %q", filePath)
	}
	t, err := NewFromContent(config, content)
	if err != nil {
		return nil, errors.WithMessagef(err, "in file %q", filePath)
	}
	return t, nil
}

// NewFromContent creates a HuggingFace tokenizer from tokenizer.json content.
func NewFromContent(config *api.Config, content []byte) (*Tokenizer, error) {
	var tj TokenizerJSON
	if err := json.Unmarshal(content, &tj); err != nil {
		return nil, errors.Wrapf(err, "failed to parse tokenizer.json")
	}
	t := &Tokenizer{modelType: tj.Model.Type}
	if err := json.Unmarshal(content, &t.raw); err != nil {
		return nil, errors.Wrapf(err, "failed to parse tokenizer.json")
	}

	model, unkToken, err := buildModel(&tj.Model)
	if err != nil {
		return nil, errors.WithMessage(err, "tokenizer.json model")
	}
	t.Tokenizer = pipeline.New(model).WithConfig(config)

	normalizer, err := buildNormalizer(tj.Normalizer)
	if err != nil {
		return nil, errors.WithMessage(err, "tokenizer.json normalizer")
	}
	if normalizer != nil {
		t.WithNormalizer(normalizer)
	}
	preTokenizer, err := buildPreTokenizer(tj.PreTokenizer)
	if err != nil {
		return nil, errors.WithMessage(err, "tokenizer.json pre_tokenizer")
	}
	if preTokenizer != nil {
		t.WithPreTokenizer(preTokenizer)
	}
	decoder, err := buildDecoder(tj.Decoder)
	if err != nil {
		return nil, errors.WithMessage(err, "tokenizer.json decoder")
	}
	if decoder != nil {
		t.WithDecoder(decoder)
	}
	postProcessor, err := buildPostProcessor(tj.PostProcessor)
	if err != nil {
		return nil, errors.WithMessage(err, "tokenizer.json post_processor")
	}
	if postProcessor != nil {
		t.WithPostProcessor(postProcessor)
	}

	if _, err := t.Registry().RegisterWithIDs(tj.AddedTokens...); err != nil {
		return nil, errors.WithMessage(err, "tokenizer.json added_tokens")
	}
	if unkToken != "" {
		if id, found := t.TokenToID(unkToken); found {
			t.WithSpecialTokenID(api.TokUnknown, id)
		}
	}
	klog.V(1).Infof("tokenizer.json: %s model with %d tokens and %d added tokens",
		t.modelType, model.VocabSize(), len(tj.AddedTokens))
	return t, nil
}

// ModelType returns the type of the model: "BPE", "WordPiece", "WordLevel" or "Unigram".
func (t *Tokenizer) ModelType() string {
	return t.modelType
}

// Save writes the tokenizer to filePath in the tokenizer.json format, with the current added tokens.
//
// The file is written atomically, so it can be saved over the file it was loaded from.
func (t *Tokenizer) Save(filePath string) error {
	doc := make(map[string]json.RawMessage, len(t.raw)+1)
	for key, value := range t.raw {
		doc[key] = value
	}
	added, err := json.Marshal(t.AddedTokens())
	if err != nil {
		return errors.Wrap(err, "failed to serialize added tokens")
	}
	doc["added_tokens"] = added
	content, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to serialize tokenizer.json")
	}
	return files.WriteLocked(filePath, content, 0644)
}

// specialName is a special token name in tokenizer_config.json: either a string or an
// object with the token's "content".
type specialName string

// UnmarshalJSON implements json.Unmarshaler.
func (n *specialName) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != nil {
			*n = specialName(*s)
		}
		return nil
	}
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return errors.Wrapf(err, "special token must be a string or an object with \"content\", got %s", data)
	}
	*n = specialName(obj.Content)
	return nil
}

type configJSON struct {
	BosToken  specialName `json:"bos_token"`
	EosToken  specialName `json:"eos_token"`
	UnkToken  specialName `json:"unk_token"`
	PadToken  specialName `json:"pad_token"`
	ClsToken  specialName `json:"cls_token"`
	SepToken  specialName `json:"sep_token"`
	MaskToken specialName `json:"mask_token"`
}

// LoadConfig reads the special token names from a tokenizer_config.json file.
func LoadConfig(filePath string) (*api.Config, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tokenizer config %q", filePath)
	}
	config, err := ParseConfig(content)
	if err != nil {
		return nil, errors.WithMessagef(err, "in file %q", filePath)
	}
	return config, nil
}

// ParseConfig parses the special token names of the tokenizer_config.json content.
func ParseConfig(content []byte) (*api.Config, error) {
	var cj configJSON
	if err := json.Unmarshal(content, &cj); err != nil {
		return nil, errors.Wrap(err, "failed to parse tokenizer config")
	}
	return &api.Config{
		BosToken:  string(cj.BosToken),
		EosToken:  string(cj.EosToken),
		UnkToken:  string(cj.UnkToken),
		PadToken:  string(cj.PadToken),
		ClsToken:  string(cj.ClsToken),
		SepToken:  string(cj.SepToken),
		MaskToken: string(cj.MaskToken),
	}, nil
}

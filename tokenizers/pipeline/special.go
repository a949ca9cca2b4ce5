package pipeline

import (
	"github.com/gomlx/go-tokenizers/tokenizers/api"
	"github.com/pkg/errors"
)

// conventionalNames are the usual names of the special tokens, used when neither the
// tokenizer files nor the Config name them.
var conventionalNames = map[api.SpecialToken][]string{
	api.TokBeginningOfSentence: {"<s>", "<bos>", "<|begin_of_text|>"},
	api.TokEndOfSentence:       {"</s>", "<eos>", "<|endoftext|>", "<|end_of_text|>"},
	api.TokUnknown:             {"[UNK]", "<unk>"},
	api.TokPad:                 {"[PAD]", "<pad>"},
	api.TokMask:                {"[MASK]", "<mask>"},
	api.TokClassification:      {"[CLS]", "<s>"},
}

// configName returns the name of the special token in the Config, if set.
func configName(config *api.Config, token api.SpecialToken) string {
	if config == nil {
		return ""
	}
	switch token {
	case api.TokBeginningOfSentence:
		return config.BosToken
	case api.TokEndOfSentence:
		return config.EosToken
	case api.TokUnknown:
		return config.UnkToken
	case api.TokPad:
		return config.PadToken
	case api.TokMask:
		return config.MaskToken
	case api.TokClassification:
		return config.ClsToken
	}
	return ""
}

// SpecialTokenID returns the id of the given special token.
//
// Ids set with WithSpecialTokenID come first, then the names in the Config, and then the
// conventional names ("[UNK]", "<unk>", ...). BERT-style tokenizers fall back to [CLS] for the
// beginning of sentence and [SEP] for the end of sentence.
func (t *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	if id, found := t.specialIDs[token]; found {
		return id, nil
	}
	if name := configName(t.config, token); name != "" {
		if id, found := t.TokenToID(name); found {
			return id, nil
		}
	}
	for _, name := range conventionalNames[token] {
		if id, found := t.TokenToID(name); found {
			return id, nil
		}
	}
	switch token {
	case api.TokBeginningOfSentence:
		if id, found := t.TokenToID("[CLS]"); found {
			return id, nil
		}
	case api.TokEndOfSentence:
		sep := "[SEP]"
		if t.config != nil && t.config.SepToken != "" {
			sep = t.config.SepToken
		}
		if id, found := t.TokenToID(sep); found {
			return id, nil
		}
	}
	return 0, errors.Errorf("special token %s not found", token)
}

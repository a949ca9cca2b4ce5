// Package tokenizers creates a tokenizer from any of the supported file formats:
//
//   - HuggingFace "tokenizer.json" (package hftokenizer), optionally with a "tokenizer_config.json"
//     next to it.
//   - SentencePiece "tokenizer.model" (package sentencepiece).
//   - GGUF model files (package gguftokenizer).
//
// All of them return a pipeline.Tokenizer, with the same added vocabulary handling.
package tokenizers

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/go-tokenizers/internal/files"
	"github.com/gomlx/go-tokenizers/tokenizers/api"
	"github.com/gomlx/go-tokenizers/tokenizers/gguftokenizer"
	"github.com/gomlx/go-tokenizers/tokenizers/hftokenizer"
	"github.com/gomlx/go-tokenizers/tokenizers/pipeline"
	"github.com/gomlx/go-tokenizers/tokenizers/sentencepiece"
	"github.com/pkg/errors"
)

// New creates the tokenizer stored in path, which can be a directory (with a "tokenizer.json"
// or a "tokenizer.model" file) or a file, whose format is given by its extension.
func New(path string) (*pipeline.Tokenizer, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "tokenizer path %q", path)
	}
	if info.IsDir() {
		for _, name := range []string{hftokenizer.TokenizerFile, sentencepiece.ModelFile} {
			if filePath := filepath.Join(path, name); files.Exists(filePath) {
				return New(filePath)
			}
		}
		return nil, errors.Errorf("directory %q has no %q nor %q", path,
			hftokenizer.TokenizerFile, sentencepiece.ModelFile)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		config, err := siblingConfig(path)
		if err != nil {
			return nil, err
		}
		tok, err := hftokenizer.NewFromFile(config, path)
		if err != nil {
			return nil, err
		}
		return tok.Tokenizer, nil
	case ".model":
		config, err := siblingConfig(path)
		if err != nil {
			return nil, err
		}
		return sentencepiece.New(config, path)
	case ".gguf":
		return gguftokenizer.New(nil, path)
	default:
		return nil, errors.Errorf("unknown tokenizer file format %q for %q", ext, path)
	}
}

// siblingConfig loads the "tokenizer_config.json" in the same directory as filePath, if it exists.
func siblingConfig(filePath string) (*api.Config, error) {
	configPath := filepath.Join(filepath.Dir(filePath), hftokenizer.ConfigFile)
	if !files.Exists(configPath) {
		return nil, nil
	}
	return hftokenizer.LoadConfig(configPath)
}

package main

import (
	"os"
	"path/filepath"

	"github.com/gomlx/go-tokenizers/tokenizers/addedvocab"
	"github.com/gomlx/go-tokenizers/tokenizers/hftokenizer"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func newAddCmd() *cobra.Command {
	var (
		special, singleWord, lstrip, rstrip bool
		normalized                          string
		output                              string
	)
	cmd := &cobra.Command{
		Use:   "add token...",
		Short: "Add tokens to a tokenizer.json and save it",
		Long: "Register the given added tokens, in order, and save the updated tokenizer.json (in place, or to --output).\n" +
			"Tokens already registered keep their ids. The full list of added tokens is printed.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := activeCfg.Tokenizer.Path
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				path = filepath.Join(path, hftokenizer.TokenizerFile)
			}
			tok, err := hftokenizer.NewFromFile(nil, path)
			if err != nil {
				return errors.WithMessage(err, "add requires a tokenizer.json")
			}

			tokens := make([]addedvocab.AddedToken, len(args))
			for i, content := range args {
				tokens[i] = addedvocab.NewToken(content, special).
					WithSingleWord(singleWord).WithLStrip(lstrip).WithRStrip(rstrip)
				switch normalized {
				case "true":
					tokens[i] = tokens[i].WithNormalized(true)
				case "false":
					tokens[i] = tokens[i].WithNormalized(false)
				case "":
				default:
					return errors.Errorf("--normalized must be true or false, got %q", normalized)
				}
			}
			var count int
			if special {
				count, err = tok.AddSpecialTokens(tokens...)
			} else {
				count, err = tok.AddTokens(tokens...)
			}
			if err != nil {
				return err
			}

			if output == "" {
				output = path
			}
			if err := tok.Save(output); err != nil {
				return err
			}
			klog.Infof("added %d new tokens, saved to %q", count, output)
			return writeAddedTokens(cmd.OutOrStdout(), activeCfg.Output.Format, tok.AddedTokens())
		},
	}
	cmd.Flags().BoolVar(&special, "special", false, "Add as special tokens (skipped when decoding)")
	cmd.Flags().BoolVar(&singleWord, "single-word", false, "Only match the tokens as whole words")
	cmd.Flags().BoolVar(&lstrip, "lstrip", false, "Absorb the whitespace before the tokens")
	cmd.Flags().BoolVar(&rstrip, "rstrip", false, "Absorb the whitespace after the tokens")
	cmd.Flags().StringVar(&normalized, "normalized", "",
		"Match the tokens on the normalized text (true) or the raw text (false). Defaults to true, and false for special tokens")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Where to save the tokenizer.json. Defaults to overwriting the input")
	return cmd
}

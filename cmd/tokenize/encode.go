package main

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newEncodeCmd() *cobra.Command {
	var pair bool
	cmd := &cobra.Command{
		Use:   "encode [text...]",
		Short: "Encode text, showing the tokens with their ids and spans",
		Long: "Encode the text given as arguments (joined by spaces), or read from stdin if there are no arguments.\n" +
			"With --pair, the two arguments are encoded as a pair of sequences.",
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := loadTokenizer()
			if err != nil {
				return err
			}
			addSpecial := activeCfg.Tokenizer.AddSpecial
			if pair {
				if len(args) != 2 {
					return errors.Errorf("--pair requires exactly 2 arguments, got %d", len(args))
				}
				enc, err := tok.EncodePair(args[0], args[1], addSpecial)
				if err != nil {
					return err
				}
				return writeEncoding(cmd.OutOrStdout(), activeCfg.Output.Format, args, enc)
			}

			text := strings.Join(args, " ")
			if len(args) == 0 {
				content, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return errors.Wrap(err, "failed to read stdin")
				}
				text = strings.TrimSuffix(string(content), "\n")
			}
			enc, err := tok.Encode(text, addSpecial)
			if err != nil {
				return err
			}
			return writeEncoding(cmd.OutOrStdout(), activeCfg.Output.Format, []string{text}, enc)
		},
	}
	cmd.Flags().BoolVar(&pair, "pair", false, "Encode the two arguments as a pair of sequences")
	return cmd
}

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode id...",
		Short: "Decode token ids back to text",
		Long:  "Decode the token ids given as arguments, separated by spaces or commas.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			tok, err := loadTokenizer()
			if err != nil {
				return err
			}
			text, err := tok.Decode(ids, activeCfg.Tokenizer.SkipSpecial)
			if err != nil {
				return err
			}
			if activeCfg.Output.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"ids": ids, "text": text})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}
}

// parseIDs parses ids given as separate arguments, or comma separated, e.g. "[101, 7592, 102]".
func parseIDs(args []string) ([]int, error) {
	var ids []int
	for _, arg := range args {
		arg = strings.Trim(arg, "[]")
		for _, field := range strings.Split(arg, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			id, err := strconv.Atoi(field)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid token id %q", field)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

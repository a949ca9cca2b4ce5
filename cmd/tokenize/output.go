package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/go-tokenizers/tokenizers/addedvocab"
	"github.com/gomlx/go-tokenizers/tokenizers/api"
	"github.com/pkg/errors"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	specialStyle = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("241"))
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

// newTable creates a table with the common style. Rows listed in dimmed are rendered greyed.
func newTable(dimmed map[int]bool, headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case dimmed[row]:
				return specialStyle
			default:
				return cellStyle
			}
		})
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal output")
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// writeEncoding writes the tokens of an encoding, with their spans and the corresponding
// original text. texts holds the encoded sequence, or the pair of sequences, selected by the
// type id of each token. Special tokens are greyed.
func writeEncoding(w io.Writer, format string, texts []string, enc *api.EncodingResult) error {
	if format == "json" {
		return writeJSON(w, enc)
	}
	dimmed := make(map[int]bool)
	t := newTable(dimmed, "#", "ID", "Token", "Span", "Text", "Type")
	for i, id := range enc.IDs {
		span := enc.Spans[i]
		var typeID int
		if i < len(enc.TypeIDs) {
			typeID = enc.TypeIDs[i]
		}
		if i < len(enc.SpecialTokensMask) && enc.SpecialTokensMask[i] == 1 {
			dimmed[i] = true
		}
		text := texts[min(typeID, len(texts)-1)]
		var original string
		if span.Start <= span.End && span.End <= len(text) {
			original = text[span.Start:span.End]
		}
		t.Row(
			strconv.Itoa(i),
			strconv.Itoa(id),
			strconv.Quote(enc.Tokens[i]),
			fmt.Sprintf("%d:%d", span.Start, span.End),
			strconv.Quote(original),
			strconv.Itoa(typeID),
		)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// writeAddedTokens lists added tokens with their flags.
func writeAddedTokens(w io.Writer, format string, tokens []addedvocab.AddedToken) error {
	if format == "json" {
		return writeJSON(w, tokens)
	}
	flag := func(v bool) string {
		if v {
			return "✓"
		}
		return ""
	}
	t := newTable(nil, "ID", "Content", "Special", "Single word", "LStrip", "RStrip", "Normalized")
	for _, tok := range tokens {
		t.Row(strconv.Itoa(tok.ID), strconv.Quote(tok.Content), flag(tok.Special),
			flag(tok.SingleWord), flag(tok.LStrip), flag(tok.RStrip), flag(tok.Normalized))
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

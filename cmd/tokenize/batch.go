package main

import (
	"fmt"

	"github.com/gomlx/go-tokenizers/tokenizers/api"
	"github.com/gomlx/go-tokenizers/tokenizers/pipeline"
	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

// textRow is a row of the input parquet file.
type textRow struct {
	Text string `parquet:"text"`
}

// encodedRow is a row of the output parquet file: the encoding of the input row Row.
type encodedRow struct {
	RunID  string  `parquet:"run_id"`
	Row    int64   `parquet:"row"`
	IDs    []int32 `parquet:"ids"`
	Starts []int32 `parquet:"starts"`
	Ends   []int32 `parquet:"ends"`
}

func newBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch input.parquet output.parquet",
		Short: "Encode the \"text\" column of a parquet file",
		Long: "Encode the \"text\" column of the input parquet file, --batch-size rows at a time in parallel, and write\n" +
			"the token ids and spans to the output parquet file, one row per input row.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := loadTokenizer()
			if err != nil {
				return err
			}
			inputs, err := parquet.ReadFile[textRow](args[0])
			if err != nil {
				return errors.Wrapf(err, "failed to read parquet file %q", args[0])
			}
			runID, err := uuid.NewV7()
			if err != nil {
				return errors.Wrap(err, "failed to create run id")
			}

			outputs := make([]encodedRow, 0, len(inputs))
			maxLen := 0
			for start := 0; start < len(inputs); start += activeCfg.Batch.Size {
				end := min(start+activeCfg.Batch.Size, len(inputs))
				texts := make([]string, end-start)
				for i, row := range inputs[start:end] {
					texts[i] = row.Text
				}
				encodings, err := tok.EncodeBatch(cmd.Context(), texts, activeCfg.Tokenizer.AddSpecial)
				if err != nil {
					return errors.WithMessagef(err, "encoding rows %d to %d", start, end)
				}
				logBatchShape(encodings, activeCfg.Batch.PadID, start)
				for i, enc := range encodings {
					outputs = append(outputs, newEncodedRow(runID.String(), int64(start+i), enc))
					maxLen = max(maxLen, enc.Len())
				}
			}

			if err := parquet.WriteFile(args[1], outputs); err != nil {
				return errors.Wrapf(err, "failed to write parquet file %q", args[1])
			}
			summary := map[string]any{
				"run_id":     runID.String(),
				"rows":       len(outputs),
				"max_length": maxLen,
				"output":     args[1],
			}
			if activeCfg.Output.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "run %s: encoded %d rows (max length %d) to %s\n",
				runID, len(outputs), maxLen, args[1])
			return err
		},
	}
}

func newEncodedRow(runID string, row int64, enc *api.EncodingResult) encodedRow {
	r := encodedRow{
		RunID:  runID,
		Row:    row,
		IDs:    make([]int32, enc.Len()),
		Starts: make([]int32, enc.Len()),
		Ends:   make([]int32, enc.Len()),
	}
	for i, id := range enc.IDs {
		r.IDs[i] = int32(id)
		r.Starts[i] = int32(enc.Spans[i].Start)
		r.Ends[i] = int32(enc.Spans[i].End)
	}
	return r
}

// logBatchShape logs the shape of the padded tensor of the batch, as fed to a model.
func logBatchShape(encodings []*api.EncodingResult, padID, start int) {
	if !klog.V(1).Enabled() {
		return
	}
	ids, _, err := pipeline.IDsTensor(encodings, padID)
	if err != nil {
		// Batches of empty texts have no tensor.
		klog.V(1).Infof("batch at row %d: %v", start, err)
		return
	}
	klog.V(1).Infof("batch at row %d: ids tensor %s", start, ids.Shape())
}

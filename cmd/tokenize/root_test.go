package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gomlx/go-tokenizers/tokenizers/api"
	"github.com/gomlx/go-tokenizers/tokenizers/hftokenizer"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tokenizerJSON = `{
  "version": "1.0",
  "added_tokens": [
    {"id": 0, "content": "[UNK]", "special": true},
    {"id": 3, "content": "[CLS]", "special": true},
    {"id": 4, "content": "[SEP]", "special": true}
  ],
  "pre_tokenizer": {"type": "WhitespaceSplit"},
  "post_processor": {"type": "BertProcessing", "sep": ["[SEP]", 4], "cls": ["[CLS]", 3]},
  "model": {"type": "WordLevel", "vocab": {"[UNK]": 0, "hello": 1, "world": 2, "[CLS]": 3, "[SEP]": 4}, "unk_token": "[UNK]"}
}`

// tokenizerDir creates a directory with a tokenizer.json.
func tokenizerDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, hftokenizer.TokenizerFile), []byte(tokenizerJSON), 0o644))
	return dir
}

// run executes the root command with args, and returns its output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader("hello stdin\n"))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestNewRootCmd(t *testing.T) {
	root := NewRootCmd()
	var names []string
	for _, sub := range root.Commands() {
		names = append(names, sub.Name())
	}
	assert.Subset(t, names, []string{"encode", "decode", "add", "batch"})
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("tokenizer-path"))
	assert.NotNil(t, root.PersistentFlags().Lookup("v"), "klog flags")
}

func TestEncode(t *testing.T) {
	dir := tokenizerDir(t)

	t.Run("JSON", func(t *testing.T) {
		out, err := run(t, "encode", "-t", dir, "--output-format=json", "hello", "world")
		require.NoError(t, err)
		var enc api.EncodingResult
		require.NoError(t, json.Unmarshal([]byte(out), &enc))
		assert.Equal(t, []int{3, 1, 2, 4}, enc.IDs)
		assert.Equal(t, []int{1, 0, 0, 1}, enc.SpecialTokensMask)
	})

	t.Run("NoSpecial", func(t *testing.T) {
		out, err := run(t, "encode", "-t", dir, "--output-format=json", "--tokenizer-add-special=false", "hello moon")
		require.NoError(t, err)
		var enc api.EncodingResult
		require.NoError(t, json.Unmarshal([]byte(out), &enc))
		assert.Equal(t, []int{1, 0}, enc.IDs)
	})

	t.Run("Stdin", func(t *testing.T) {
		out, err := run(t, "encode", "-t", dir, "--output-format=json")
		require.NoError(t, err)
		var enc api.EncodingResult
		require.NoError(t, json.Unmarshal([]byte(out), &enc))
		assert.Equal(t, []int{3, 1, 0, 4}, enc.IDs)
	})

	t.Run("Pair", func(t *testing.T) {
		out, err := run(t, "encode", "-t", dir, "--output-format=json", "--pair", "hello", "world")
		require.NoError(t, err)
		var enc api.EncodingResult
		require.NoError(t, json.Unmarshal([]byte(out), &enc))
		assert.Equal(t, []int{3, 1, 4, 2, 4}, enc.IDs)
		assert.Equal(t, []int{0, 0, 0, 1, 1}, enc.TypeIDs)

		_, err = run(t, "encode", "-t", dir, "--pair", "hello")
		assert.ErrorContains(t, err, "--pair requires exactly 2 arguments")
	})

	t.Run("Table", func(t *testing.T) {
		out, err := run(t, "encode", "-t", dir, "hello world")
		require.NoError(t, err)
		for _, want := range []string{`"[CLS]"`, `"hello"`, `"world"`, "0:5", "6:11"} {
			assert.Contains(t, out, want)
		}
	})
}

func TestDecode(t *testing.T) {
	dir := tokenizerDir(t)
	out, err := run(t, "decode", "-t", dir, "[3,", "1,", "2,", "4]")
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", out)

	_, err = run(t, "decode", "-t", dir, "1", "x")
	assert.ErrorContains(t, err, `invalid token id "x"`)
}

func TestParseIDs(t *testing.T) {
	testCases := []struct {
		name string
		args []string
		want []int
	}{
		{"Separate", []string{"1", "2", "3"}, []int{1, 2, 3}},
		{"Commas", []string{"1,2,3"}, []int{1, 2, 3}},
		{"List", []string{"[101, 7592, 102]"}, []int{101, 7592, 102}},
		{"Empty", []string{"[]"}, nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ids, err := parseIDs(tc.args)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids)
		})
	}
}

func TestAdd(t *testing.T) {
	dir := tokenizerDir(t)
	output := filepath.Join(t.TempDir(), "updated.json")
	out, err := run(t, "add", "-t", dir, "--special", "-o", output, "--output-format=json", "<new>", "[CLS]")
	require.NoError(t, err)

	var added []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	require.Len(t, added, 4)
	assert.Equal(t, "<new>", added[3].Content)
	assert.Equal(t, 5, added[3].ID)

	tok, err := hftokenizer.NewFromFile(nil, output)
	require.NoError(t, err)
	enc, err := tok.Encode("hello<new>", false)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 5}, enc.IDs)

	// The input file is unchanged.
	tok, err = hftokenizer.NewFromDir(dir)
	require.NoError(t, err)
	_, found := tok.TokenToID("<new>")
	assert.False(t, found)

	_, err = run(t, "add", "-t", dir, "--normalized=maybe", "<x>")
	assert.ErrorContains(t, err, "--normalized must be true or false")
}

func TestBatch(t *testing.T) {
	dir := tokenizerDir(t)
	tmp := t.TempDir()
	input := filepath.Join(tmp, "texts.parquet")
	output := filepath.Join(tmp, "encoded.parquet")
	require.NoError(t, parquet.WriteFile(input, []textRow{{Text: "hello world"}, {Text: "world"}, {Text: "moon"}}))

	_, err := run(t, "batch", "-t", dir, "--batch-size=2", input, output)
	require.NoError(t, err)

	rows, err := parquet.ReadFile[encodedRow](output)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.NotEmpty(t, rows[0].RunID)
	wantIDs := [][]int32{{3, 1, 2, 4}, {3, 2, 4}, {3, 0, 4}}
	for i, row := range rows {
		assert.Equal(t, int64(i), row.Row)
		assert.Equal(t, rows[0].RunID, row.RunID)
		assert.Equal(t, wantIDs[i], row.IDs)
	}
	assert.Equal(t, []int32{0, 6}, rows[0].Starts[1:3])
	assert.Equal(t, []int32{5, 11}, rows[0].Ends[1:3])
}

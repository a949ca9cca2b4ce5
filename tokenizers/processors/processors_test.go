package processors

import (
	"testing"

	"github.com/gomlx/go-tokenizers/tokenizers/api"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encoding(tokens ...api.Token) *api.EncodingResult {
	e := &api.EncodingResult{}
	for _, tok := range tokens {
		e.Append(tok, 0, false)
	}
	return e
}

func sequences() (a, b *api.EncodingResult) {
	a = encoding(
		api.Token{Value: "hello", ID: 5, Span: api.TokenSpan{Start: 0, End: 5}},
		api.Token{Value: "world", ID: 6, Span: api.TokenSpan{Start: 6, End: 11}},
	)
	b = encoding(api.Token{Value: "bye", ID: 7, Span: api.TokenSpan{Start: 0, End: 3}})
	return
}

func TestBertSingle(t *testing.T) {
	a, _ := sequences()
	got, err := NewBert("[SEP]", 102, "[CLS]", 101).Process(a, nil, true)
	require.NoError(t, err)
	want := &api.EncodingResult{
		IDs:    []int{101, 5, 6, 102},
		Tokens: []string{"[CLS]", "hello", "world", "[SEP]"},
		Spans: []api.TokenSpan{
			{Start: 0, End: 0}, {Start: 0, End: 5}, {Start: 6, End: 11}, {Start: 11, End: 11},
		},
		TypeIDs:           []int{0, 0, 0, 0},
		SpecialTokensMask: []int{1, 0, 0, 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Process() mismatch (-want +got):\n%s", diff)
	}
}

func TestBertPair(t *testing.T) {
	a, b := sequences()
	got, err := NewBert("[SEP]", 102, "[CLS]", 101).Process(a, b, true)
	require.NoError(t, err)
	assert.Equal(t, []int{101, 5, 6, 102, 7, 102}, got.IDs)
	assert.Equal(t, []int{0, 0, 0, 0, 1, 1}, got.TypeIDs)
	assert.Equal(t, []int{1, 0, 0, 1, 0, 1}, got.SpecialTokensMask)
	assert.Equal(t, api.TokenSpan{Start: 3, End: 3}, got.Spans[5], "at the end of sequence B")
}

func TestRobertaPair(t *testing.T) {
	a, b := sequences()
	got, err := NewRoberta("</s>", 2, "<s>", 0).Process(a, b, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"<s>", "hello", "world", "</s>", "</s>", "bye", "</s>"}, got.Tokens)
	assert.Equal(t, []int{0, 0, 0, 0, 0, 0, 0}, got.TypeIDs)
}

func TestWithoutSpecialTokens(t *testing.T) {
	a, b := sequences()
	got, err := NewBert("[SEP]", 102, "[CLS]", 101).Process(a, b, false)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 6, 7}, got.IDs)
	assert.Equal(t, []int{0, 0, 1}, got.TypeIDs)
	assert.Equal(t, []int{0, 0, 0}, got.SpecialTokensMask)
}

func TestParseTemplate(t *testing.T) {
	pieces, err := ParseTemplate("[CLS] $A [SEP] $B:1 [SEP]:1")
	require.NoError(t, err)
	assert.Equal(t, NewBert("[SEP]", 102, "[CLS]", 101).Pair, pieces)

	pieces, err = ParseTemplate("$ $1 $b:2 <a:b>")
	require.NoError(t, err)
	assert.Equal(t, []Piece{
		{Sequence: SequenceA},
		{Sequence: SequenceA, TypeID: 1},
		{Sequence: SequenceB, TypeID: 2},
		{Special: "<a:b>"},
	}, pieces)
	assert.Equal(t, "$B:2", pieces[2].String())
	assert.Equal(t, "<a:b>:0", pieces[3].String())

	for _, invalid := range []string{"$C", "$-1", "$A:x"} {
		_, err := ParseTemplate(invalid)
		assert.Error(t, err, invalid)
	}
}

func TestTemplate(t *testing.T) {
	single, err := ParseTemplate("<s> $A </s>")
	require.NoError(t, err)
	tmpl := &Template{
		Single: single,
		SpecialTokens: map[string]SpecialToken{
			"<s>":  {ID: "<s>", IDs: []int{1, 2}, Tokens: []string{"<", "s>"}},
			"</s>": {ID: "</s>", IDs: []int{3}, Tokens: []string{"</s>"}},
		},
	}
	require.NoError(t, tmpl.Validate())

	a, b := sequences()
	got, err := tmpl.Process(a, nil, true)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 5, 6, 3}, got.IDs, "special tokens may expand to several ids")

	_, err = tmpl.Process(a, b, true)
	assert.Error(t, err, "no template for pairs")
	_, err = tmpl.Process(nil, nil, true)
	assert.Error(t, err)

	t.Run("Validate", func(t *testing.T) {
		undefined := &Template{Single: []Piece{{Special: "[X]"}}}
		assert.Error(t, undefined.Validate())
		singleWithB := &Template{Single: []Piece{{Sequence: SequenceB}}}
		assert.Error(t, singleWithB.Validate())
		mismatched := &Template{
			Single:        []Piece{{Special: "[X]"}},
			SpecialTokens: map[string]SpecialToken{"[X]": {ID: "[X]", IDs: []int{1, 2}, Tokens: []string{"[X]"}}},
		}
		assert.Error(t, mismatched.Validate())
	})
}

func TestByteLevelTrimOffsets(t *testing.T) {
	// "I saw a" pre-tokenized with a prefix space, then "<mask> " matched as an added token.
	tokens := func() *api.EncodingResult {
		return encoding(
			api.Token{Value: "ĠI", ID: 1, Span: api.TokenSpan{Start: 0, End: 1}},
			api.Token{Value: "Ġsaw", ID: 2, Span: api.TokenSpan{Start: 1, End: 5}},
			api.Token{Value: "Ġa", ID: 3, Span: api.TokenSpan{Start: 5, End: 7}},
			api.Token{Value: "Ġ", ID: 4, Span: api.TokenSpan{Start: 7, End: 8}},
			api.Token{Value: "<mask> ", ID: 5, Span: api.TokenSpan{Start: 8, End: 15}},
		)
	}
	testCases := []struct {
		name      string
		processor ByteLevel
		want      []api.TokenSpan
	}{
		{"no trimming", ByteLevel{AddPrefixSpace: true},
			[]api.TokenSpan{{Start: 0, End: 1}, {Start: 1, End: 5}, {Start: 5, End: 7}, {Start: 7, End: 8}, {Start: 8, End: 15}}},
		{"trim with prefix space", ByteLevel{TrimOffsets: true, AddPrefixSpace: true},
			[]api.TokenSpan{{Start: 0, End: 1}, {Start: 2, End: 5}, {Start: 6, End: 7}, {Start: 8, End: 8}, {Start: 8, End: 14}}},
		{"trim without prefix space", ByteLevel{TrimOffsets: true},
			[]api.TokenSpan{{Start: 1, End: 1}, {Start: 2, End: 5}, {Start: 6, End: 7}, {Start: 8, End: 8}, {Start: 8, End: 14}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.processor.Process(tokens(), nil, true)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, got.Spans); diff != "" {
				t.Errorf("spans mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, []int{1, 2, 3, 4, 5}, got.IDs)
			assert.Equal(t, []int{0, 0, 0, 0, 0}, got.TypeIDs)
		})
	}
}

func TestByteLevelUnicodeSpaces(t *testing.T) {
	// U+3000 (ideographic space) is 3 bytes long.
	a := encoding(
		api.Token{Value: "x", ID: 1, Span: api.TokenSpan{Start: 0, End: 1}},
		api.Token{Value: "　y", ID: 2, Span: api.TokenSpan{Start: 1, End: 5}},
	)
	got, err := ByteLevel{TrimOffsets: true}.Process(a, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []api.TokenSpan{{Start: 0, End: 1}, {Start: 4, End: 5}}, got.Spans)
}

func TestChain(t *testing.T) {
	a := encoding(api.Token{Value: "Ġhi", ID: 5, Span: api.TokenSpan{Start: 3, End: 6}})
	b := encoding(api.Token{Value: "Ġyo", ID: 6, Span: api.TokenSpan{Start: 2, End: 5}})
	chain := Chain{ByteLevel{TrimOffsets: true}, NewRoberta("</s>", 2, "<s>", 0)}
	got, err := chain.Process(a, b, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"<s>", "Ġhi", "</s>", "</s>", "Ġyo", "</s>"}, got.Tokens)
	assert.Equal(t, []api.TokenSpan{
		{Start: 0, End: 0}, {Start: 4, End: 6}, {Start: 6, End: 6},
		{Start: 6, End: 6}, {Start: 3, End: 5}, {Start: 5, End: 5},
	}, got.Spans)

	t.Run("two templates", func(t *testing.T) {
		bad := Chain{NewBert("[SEP]", 1, "[CLS]", 2), NewRoberta("</s>", 2, "<s>", 0)}
		require.Error(t, bad.Validate())
		_, err := bad.Process(a, nil, true)
		require.Error(t, err)
	})

	t.Run("pair without template", func(t *testing.T) {
		a, b := sequences()
		got, err := Chain{ByteLevel{TrimOffsets: true}}.Process(a, b, true)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 0, 1}, got.TypeIDs)
		assert.Equal(t, []int{5, 6, 7}, got.IDs)
	})
}

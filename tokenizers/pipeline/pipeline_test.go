package pipeline

import (
	"bytes"
	"math/rand/v2"
	"os"
	"strings"
	"testing"

	"github.com/gomlx/go-tokenizers/tokenizers/addedvocab"
	"github.com/gomlx/go-tokenizers/tokenizers/api"
	"github.com/gomlx/go-tokenizers/tokenizers/decoders"
	"github.com/gomlx/go-tokenizers/tokenizers/models"
	"github.com/gomlx/go-tokenizers/tokenizers/normalizers"
	"github.com/gomlx/go-tokenizers/tokenizers/pretokenizers"
	"github.com/gomlx/go-tokenizers/tokenizers/processors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

// testMerges is a small byte-level BPE, enough to tokenize "I saw a 😺" and "I like dancing".
var testMerges = [][2]string{
	{"a", "n"}, {"an", "c"}, {"Ġ", "d"}, {"Ġd", "a"}, {"i", "n"}, {"in", "g"}, {"anc", "ing"},
	{"Ġd", "ancing"}, {"Ġ", "l"}, {"i", "k"}, {"ik", "e"}, {"Ġl", "ike"}, {"n", "g"}, {"Ġ", "s"},
	{"a", "w"}, {"Ġs", "aw"}, {"Ġ", "a"}, {"Ġ", "I"}, {"ð", "Ł"}, {"ðŁ", "ĺ"}, {"Ġ", "ðŁĺ"},
}

// newByteLevelBPE returns a byte-level BPE pipeline with the test merges.
func newByteLevelBPE(t *testing.T, addPrefixSpace bool) *Tokenizer {
	t.Helper()
	vocab := make(map[string]int)
	add := func(token string) {
		if _, found := vocab[token]; !found {
			vocab[token] = len(vocab)
		}
	}
	for _, base := range []string{"Ġ", "I", "s", "a", "w", "l", "i", "k", "e", "d", "n", "c", "g", "ð", "Ł", "ĺ", "º"} {
		add(base)
	}
	for _, m := range testMerges {
		add(m[0] + m[1])
	}
	bpe, err := models.NewBPE(vocab, testMerges, models.BPEConfig{})
	require.NoError(t, err)
	return New(bpe).
		WithPreTokenizer(pretokenizers.NewByteLevel(addPrefixSpace)).
		WithDecoder(decoders.ByteLevel{})
}

func encodeTokens(t *testing.T, tok *Tokenizer, text string) []string {
	t.Helper()
	enc, err := tok.Encode(text, true)
	require.NoError(t, err)
	return enc.Tokens
}

func TestAddedTokensIDs(t *testing.T) {
	tok := newByteLevelBPE(t, false)
	modelSize := tok.Model().VocabSize()
	n, err := tok.AddSpecialTokens(addedvocab.NewToken("<cls>", true), addedvocab.NewToken("<sep>", true))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = tok.AddTokens(addedvocab.NewToken("hello", false), addedvocab.NewToken("world", false))
	require.NoError(t, err)

	for i, content := range []string{"<cls>", "<sep>", "hello", "world"} {
		id, found := tok.TokenToID(content)
		require.True(t, found)
		assert.Equal(t, modelSize+i, id)
		token, found := tok.IDToToken(id)
		require.True(t, found)
		assert.Equal(t, content, token)
	}
	assert.Equal(t, modelSize+4, tok.VocabSize())
	assert.Len(t, tok.AddedTokens(), 4)

	// Tokens already in the model vocabulary keep their id.
	id, _ := tok.TokenToID("Ġsaw")
	_, err = tok.AddTokens(addedvocab.NewToken("Ġsaw", false))
	require.NoError(t, err)
	added, found := tok.Registry().Snapshot().LookupContent("Ġsaw")
	require.True(t, found)
	assert.Equal(t, id, added.ID)
}

func TestAddedTokensIDsEmptyModel(t *testing.T) {
	tests := []struct {
		content string
		special bool
		wantID  int
	}{
		{"<cls>", true, 0},
		{"<sep>", true, 1},
		{"hello", false, 2},
		{"world", false, 3},
	}
	model, err := models.NewWordLevel(map[string]int{}, "")
	require.NoError(t, err)
	tok := New(model)
	require.Equal(t, 0, tok.Model().VocabSize())
	for _, tc := range tests {
		if tc.special {
			_, err = tok.AddSpecialTokens(addedvocab.NewToken(tc.content, true))
		} else {
			_, err = tok.AddTokens(addedvocab.NewToken(tc.content, false))
		}
		require.NoError(t, err)
	}
	for _, tc := range tests {
		t.Run(tc.content, func(t *testing.T) {
			id, found := tok.TokenToID(tc.content)
			require.True(t, found)
			assert.Equal(t, tc.wantID, id)
			token, found := tok.IDToToken(tc.wantID)
			require.True(t, found)
			assert.Equal(t, tc.content, token)
		})
	}
	assert.Equal(t, 4, tok.VocabSize())

	enc, err := tok.Encode("<cls>helloworld<sep>", false)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 3, 1}, enc.IDs)
}

func TestEncodeLStrip(t *testing.T) {
	tok := newByteLevelBPE(t, true)
	_, err := tok.AddSpecialTokens(addedvocab.NewToken("<mask>", true).WithLStrip(true))
	require.NoError(t, err)

	const text = "I saw a <mask> 😺"
	enc, err := tok.Encode(text, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"ĠI", "Ġsaw", "Ġa", " <mask>", "ĠðŁĺ", "º"}, enc.Tokens)
	assert.Equal(t, []api.TokenSpan{
		{Start: 0, End: 1}, {Start: 1, End: 5}, {Start: 5, End: 7},
		{Start: 7, End: 14}, {Start: 14, End: 19}, {Start: 15, End: 19},
	}, enc.Spans)
	maskID, _ := tok.TokenToID("<mask>")
	assert.Equal(t, maskID, enc.IDs[3])
	assert.Equal(t, []int{0, 0, 0, 0, 0, 0}, enc.SpecialTokensMask, "only post-processor tokens are flagged")
	assert.Equal(t, []int{0, 0, 0, 0, 0, 0}, enc.TypeIDs)
}

func TestEncodeRStrip(t *testing.T) {
	const text = "I saw a <mask> 😺"
	tests := []struct {
		name              string
		addPrefixSpace    bool
		want              []string
		wantDecoded       string
		wantDecodedNoSpec string
	}{
		{
			name:              "without prefix space",
			want:              []string{"I", "Ġsaw", "Ġa", "Ġ", "<mask> ", "ðŁĺ", "º"},
			wantDecoded:       "I saw a <mask>😺",
			wantDecodedNoSpec: "I saw a 😺",
		},
		{
			name:              "with prefix space",
			addPrefixSpace:    true,
			want:              []string{"ĠI", "Ġsaw", "Ġa", "Ġ", "<mask> ", "ĠðŁĺ", "º"},
			wantDecoded:       " I saw a <mask> 😺",
			wantDecodedNoSpec: " I saw a  😺",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tok := newByteLevelBPE(t, tc.addPrefixSpace)
			_, err := tok.AddSpecialTokens(addedvocab.NewToken("<mask>", true).WithRStrip(true))
			require.NoError(t, err)

			enc, err := tok.Encode(text, true)
			require.NoError(t, err)
			assert.Equal(t, tc.want, enc.Tokens)
			assert.Equal(t, api.TokenSpan{Start: 8, End: 15}, enc.Spans[4])

			decoded, err := tok.Decode(enc.IDs, false)
			require.NoError(t, err)
			assert.Equal(t, tc.wantDecoded, decoded, "added tokens decode to their content")
			decoded, err = tok.Decode(enc.IDs, true)
			require.NoError(t, err)
			assert.Equal(t, tc.wantDecodedNoSpec, decoded)
		})
	}
}

func TestEncodeRegistrationOrder(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
		want   []string
	}{
		{"DancFirst", []string{"danc", "nci", "ing"}, []string{"I", "Ġlike", "Ġ", "danc", "ing"}},
		{"NciFirst", []string{"nci", "danc", "ing", "ike"}, []string{"I", "Ġl", "ike", "Ġda", "nci", "ng"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tok := newByteLevelBPE(t, false)
			for _, content := range tc.tokens {
				_, err := tok.AddTokens(addedvocab.NewToken(content, false))
				require.NoError(t, err)
			}
			assert.Equal(t, tc.want, encodeTokens(t, tok, "I like dancing"))
		})
	}
}

func TestEncodeSingleWord(t *testing.T) {
	tok := newByteLevelBPE(t, false)
	_, err := tok.AddTokens(addedvocab.NewToken("ing", false).WithSingleWord(true))
	require.NoError(t, err)
	assert.Equal(t, []string{"I", "Ġlike", "Ġdancing"}, encodeTokens(t, tok, "I like dancing"))
	assert.Equal(t, []string{"I", "Ġlike", "Ġ", "ing"}, encodeTokens(t, tok, "I like ing"))

	tok = newByteLevelBPE(t, false)
	_, err = tok.AddTokens(addedvocab.NewToken("ing", false))
	require.NoError(t, err)
	assert.Equal(t, []string{"I", "Ġlike", "Ġd", "anc", "ing"}, encodeTokens(t, tok, "I like dancing"))
}

func TestEncodeEmpty(t *testing.T) {
	tok := newByteLevelBPE(t, false)
	enc, err := tok.Encode("", true)
	require.NoError(t, err)
	assert.Equal(t, 0, enc.Len())

	decoded, err := tok.Decode(nil, false)
	require.NoError(t, err)
	assert.Equal(t, "", decoded)
}

// newMetaspaceUnigram returns a SentencePiece-like pipeline: NFKD, Metaspace and Unigram.
func newMetaspaceUnigram(t *testing.T, pieces ...models.UnigramPiece) *Tokenizer {
	t.Helper()
	unigram, err := models.NewUnigram(append([]models.UnigramPiece{{Token: "<unk>"}}, pieces...), 0, false)
	require.NoError(t, err)
	return New(unigram).
		WithNormalizer(normalizers.NFKD).
		WithPreTokenizer(pretokenizers.NewMetaspace(pretokenizers.PrependAlways, true)).
		WithDecoder(decoders.Metaspace{AddPrefixSpace: true})
}

func TestRoundTripNormalizedAddedTokens(t *testing.T) {
	tok := newMetaspaceUnigram(t, models.UnigramPiece{Token: "▁"})
	_, err := tok.AddTokens(addedvocab.NewToken("[ABC]", false), addedvocab.NewToken("[DEF]", false))
	require.NoError(t, err)

	const text = "[ABC] [DEF]"
	enc, err := tok.Encode(text, true)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 3}, enc.IDs)
	assert.Equal(t, []api.TokenSpan{{Start: 0, End: 5}, {Start: 5, End: 6}, {Start: 6, End: 11}}, enc.Spans)

	decoded, err := tok.Decode(enc.IDs, false)
	require.NoError(t, err)
	assert.Equal(t, text, decoded)
}

func TestRoundTripSentencePiece(t *testing.T) {
	tok := newMetaspaceUnigram(t,
		models.UnigramPiece{Token: "▁hello", Score: -1},
		models.UnigramPiece{Token: "▁world", Score: -1},
		models.UnigramPiece{Token: "▁", Score: -2},
		models.UnigramPiece{Token: "!", Score: -2},
	)
	const text = "hello world!"
	enc, err := tok.Encode(text, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"▁hello", "▁world", "!"}, enc.Tokens)
	assert.Equal(t, []api.TokenSpan{{Start: 0, End: 5}, {Start: 5, End: 11}, {Start: 11, End: 12}}, enc.Spans)

	decoded, err := tok.Decode(enc.IDs, false)
	require.NoError(t, err)
	assert.Equal(t, text, decoded)
}

// newLowercaseWordLevel returns a pipeline with a Lowercase normalizer, so added tokens may
// match either the raw or the normalized text.
func newLowercaseWordLevel(t *testing.T) *Tokenizer {
	t.Helper()
	wl, err := models.NewWordLevel(map[string]int{"<unk>": 0, "hello": 1, "a": 2, "bb": 3, "é": 4}, "<unk>")
	require.NoError(t, err)
	return New(wl).
		WithNormalizer(normalizers.Lowercase{}).
		WithPreTokenizer(pretokenizers.WhitespaceSplit{}).
		WithDecoder(decoders.WordPiece{})
}

func TestEncodeRawAndNormalizedMatching(t *testing.T) {
	tok := newLowercaseWordLevel(t)
	_, err := tok.AddTokens(addedvocab.NewToken("hey", false))
	require.NoError(t, err)
	_, err = tok.AddSpecialTokens(addedvocab.NewToken("[X]", true))
	require.NoError(t, err)
	heyID, _ := tok.TokenToID("hey")
	xID, _ := tok.TokenToID("[X]")

	const text = "[X] HEY Hello"
	enc, err := tok.Encode(text, true)
	require.NoError(t, err)
	assert.Equal(t, []int{xID, heyID, 1}, enc.IDs)
	// The normalized token's value is the normalized text it matched.
	assert.Equal(t, []string{"[X]", "hey", "hello"}, enc.Tokens)
	assert.Equal(t, []api.TokenSpan{{Start: 0, End: 3}, {Start: 4, End: 7}, {Start: 8, End: 13}}, enc.Spans)

	// "[x]" is not a raw match, and after normalization it's just unknown text.
	enc, err = tok.Encode("[x]", true)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, enc.IDs)

	decoded, err := tok.Decode([]int{xID, heyID, 1}, false)
	require.NoError(t, err)
	assert.Equal(t, "[X]hey hello", decoded)
	decoded, err = tok.Decode([]int{xID, heyID, 1}, true)
	require.NoError(t, err)
	assert.Equal(t, "hey hello", decoded)
}

func TestEncodeWithoutNormalizerMatchesAllTokens(t *testing.T) {
	tok := newByteLevelBPE(t, false)
	_, err := tok.AddTokens(addedvocab.NewToken("saw", false), addedvocab.NewToken("like", false).WithNormalized(false))
	require.NoError(t, err)
	assert.Equal(t, []string{"I", "Ġ", "saw", "Ġ", "like"}, encodeTokens(t, tok, "I saw like"))
}

func TestDecodeUnknownIDs(t *testing.T) {
	tok := newLowercaseWordLevel(t)
	decoded, err := tok.Decode([]int{1, 1000, 2}, false)
	require.NoError(t, err)
	assert.Equal(t, "hello a", decoded, "unknown ids are skipped")

	t.Run("logged as warning", func(t *testing.T) {
		var logs bytes.Buffer
		klog.LogToStderr(false)
		klog.SetOutput(&logs)
		defer func() {
			klog.SetOutput(os.Stderr)
			klog.LogToStderr(true)
		}()
		_, err := tok.Decode([]int{1, 1000}, false)
		require.NoError(t, err)
		klog.Flush()
		assert.Contains(t, logs.String(), "skipping unknown id 1000")
		assert.True(t, strings.HasPrefix(logs.String(), "W"), "warning severity: %q", logs.String())
	})

	noDecoder := New(tok.Model())
	decoded, err = noDecoder.Decode([]int{1, 2}, false)
	require.NoError(t, err)
	assert.Equal(t, "hello a", decoded, "joined with spaces without a decoder")
}

func TestEncodePair(t *testing.T) {
	tok := newLowercaseWordLevel(t)
	enc, err := tok.EncodePair("hello", "a bb", true)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, enc.IDs)
	assert.Equal(t, []int{0, 1, 1}, enc.TypeIDs)

	tok.WithPostProcessor(processors.NewBert("bb", 3, "a", 2))
	enc, err = tok.EncodePair("hello", "é", true)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 3, 4, 3}, enc.IDs)
	assert.Equal(t, []int{0, 0, 0, 1, 1}, enc.TypeIDs)
	assert.Equal(t, []int{1, 0, 1, 0, 1}, enc.SpecialTokensMask)

	enc, err = tok.Encode("hello", false)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, enc.IDs)
}

func TestSpecialTokenID(t *testing.T) {
	wp, err := models.NewWordPiece(
		map[string]int{"[PAD]": 0, "[UNK]": 1, "[CLS]": 2, "[SEP]": 3, "hello": 4}, "[UNK]", "", 0)
	require.NoError(t, err)
	tok := New(wp)

	tests := []struct {
		token api.SpecialToken
		want  int
	}{
		{api.TokPad, 0},
		{api.TokUnknown, 1},
		{api.TokClassification, 2},
		{api.TokBeginningOfSentence, 2},
		{api.TokEndOfSentence, 3},
	}
	for _, tc := range tests {
		t.Run(tc.token.String(), func(t *testing.T) {
			id, err := tok.SpecialTokenID(tc.token)
			require.NoError(t, err)
			assert.Equal(t, tc.want, id)
		})
	}
	_, err = tok.SpecialTokenID(api.TokMask)
	assert.Error(t, err)

	_, err = tok.AddSpecialTokens(addedvocab.NewToken("<m>", true))
	require.NoError(t, err)
	tok.WithConfig(&api.Config{MaskToken: "<m>"})
	id, err := tok.SpecialTokenID(api.TokMask)
	require.NoError(t, err)
	assert.Equal(t, 5, id)

	tok.WithSpecialTokenID(api.TokPad, 4)
	id, err = tok.SpecialTokenID(api.TokPad)
	require.NoError(t, err)
	assert.Equal(t, 4, id)
}

// TestEncodeOffsetsProperty checks on random inputs that spans are ordered, don't overlap, and
// cover the text each token came from.
func TestEncodeOffsetsProperty(t *testing.T) {
	tok := newLowercaseWordLevel(t)
	_, err := tok.AddTokens(addedvocab.NewToken("bb", false).WithSingleWord(true))
	require.NoError(t, err)
	_, err = tok.AddSpecialTokens(addedvocab.NewToken("[X]", true).WithLStrip(true))
	require.NoError(t, err)
	xID, _ := tok.TokenToID("[X]")

	rng := rand.New(rand.NewPCG(3, 4))
	alphabet := []string{"a", "bb", "A", "BB", " ", "é", "É", "[X]", "[x]", "hello", "HeLLo"}
	for i := range 300 {
		var sb strings.Builder
		for range rng.IntN(12) {
			sb.WriteString(alphabet[rng.IntN(len(alphabet))])
		}
		text := sb.String()
		enc, err := tok.Encode(text, true)
		require.NoError(t, err)

		prevEnd := 0
		for j, span := range enc.Spans {
			require.LessOrEqual(t, prevEnd, span.Start, "case #%d %q: token #%d overlaps", i, text, j)
			require.LessOrEqual(t, span.End, len(text))
			require.False(t, span.IsEmpty())
			prevEnd = span.End

			original := text[span.Start:span.End]
			switch enc.IDs[j] {
			case 0:
			case xID:
				assert.Equal(t, "[X]", strings.TrimLeft(original, " "), "case #%d %q", i, text)
			default:
				assert.Equal(t, enc.Tokens[j], strings.ToLower(original), "case #%d %q", i, text)
			}
		}
	}
}

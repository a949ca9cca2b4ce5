package decoders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustReplace(t *testing.T, literal, content string) *Replace {
	t.Helper()
	r, err := NewReplace(literal, "", content)
	require.NoError(t, err)
	return r
}

func TestDecoders(t *testing.T) {
	tests := []struct {
		name    string
		decoder Decoder
		tokens  []string
		atStart bool
		want    string
	}{
		{"ByteLevel", ByteLevel{}, []string{"ĠHello", "Ġworld", "ĠðŁĺ", "º"}, true, " Hello world 😺"},
		{"ByteLevelInvalid", ByteLevel{}, []string{"aÃ"}, true, "a\uFFFD"},
		{"WordPiece", WordPiece{}, []string{"hello", "##world", "!"}, true, "helloworld !"},
		{"WordPieceCleanup", WordPiece{Cleanup: true}, []string{"hello", "##world", "!", "do", "n't"}, true, "helloworld! don't"},
		{"WordPieceNotAtStart", WordPiece{}, []string{"a", "##s"}, false, " as"},
		{"Metaspace", Metaspace{AddPrefixSpace: true}, []string{"▁Hey", "▁friend"}, true, "Hey friend"},
		{"MetaspaceNotAtStart", Metaspace{AddPrefixSpace: true}, []string{"▁Hey", "▁friend"}, false, " Hey friend"},
		{"MetaspaceNoPrefixSpace", Metaspace{}, []string{"▁Hey"}, true, " Hey"},
		{"BPEDecoder", BPEDecoder{}, []string{"hel", "lo</w>", "wor", "ld</w>"}, true, "hello world"},
		{"Replace", mustReplace(t, "▁", " "), []string{"▁a", "▁b"}, true, " a b"},
		{"Strip", Strip{Content: ' ', Start: 1}, []string{"  a", " b"}, true, " ab"},
		{"StripStop", Strip{Content: '!', Stop: 2}, []string{"a!!!"}, true, "a!"},
		{"ByteFallback", ByteFallback{}, []string{"<0xC3>", "<0xA9>", "x", "<0xFF>", "<0x61>"}, true, "éx\uFFFD\uFFFD"},
		{"ByteFallbackNotByteTokens", ByteFallback{}, []string{"<0xZZ>", "<0x612>"}, true, "<0xZZ><0x612>"},
		{"Fuse", Fuse{}, []string{"a", "b", "c"}, true, "abc"},
		{
			name: "SentencePieceSequence",
			decoder: Sequence{
				mustReplace(t, "▁", " "),
				ByteFallback{},
				Fuse{},
				Strip{Content: ' ', Start: 1},
			},
			tokens:  []string{"▁Hey", "<0x21>", "▁you"},
			atStart: true,
			want:    "Hey! you",
		},
		{"Empty", Sequence{ByteLevel{}}, nil, true, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.decoder.Decode(tc.tokens, tc.atStart)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseByteToken(t *testing.T) {
	b, ok := parseByteToken("<0x0A>")
	assert.True(t, ok)
	assert.Equal(t, byte('\n'), b)
	for _, token := range []string{"<0x0A", "0x0A>", "<0xG1>", "<0X0A>", "a"} {
		_, ok := parseByteToken(token)
		assert.False(t, ok, token)
	}
}

package addedvocab

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/gomlx/go-tokenizers/tokenizers/api"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVocabulary(t *testing.T, tokens ...AddedToken) *Vocabulary {
	t.Helper()
	r := NewRegistry(nil)
	_, err := r.Register(tokens...)
	require.NoError(t, err)
	return r.Snapshot()
}

// claimedTexts returns the text covered by each claim.
func claimedTexts(text string, claims []Claim) []string {
	var texts []string
	for _, c := range claims {
		texts = append(texts, text[c.Span.Start:c.Span.End])
	}
	return texts
}

func TestMatch(t *testing.T) {
	const text = "I like dancing"
	tests := []struct {
		name   string
		tokens []string
		want   []string
	}{
		{"NoTokens", nil, nil},
		{"NoMatch", []string{"xyz"}, nil},
		{"FirstRegisteredWins", []string{"danc", "nci", "ing"}, []string{"danc", "ing"}},
		{"FirstRegisteredWinsEvenIfLater", []string{"nci", "danc", "ing", "ike"}, []string{"ike", "nci"}},
		{"RepeatedOccurrences", []string{"i"}, []string{"i", "i"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var tokens []AddedToken
			for _, content := range tc.tokens {
				tokens = append(tokens, NewToken(content, false))
			}
			v := newTestVocabulary(t, tokens...)
			assert.Equal(t, tc.want, claimedTexts(text, v.Match(text, MatchAll)))
		})
	}
}

func TestMatchOccurrencesDontOverlap(t *testing.T) {
	v := newTestVocabulary(t, NewToken("aa", false))
	claims := v.Match("aaaaa", MatchAll)
	want := []Claim{
		{ID: 0, Span: api.TokenSpan{Start: 0, End: 2}},
		{ID: 0, Span: api.TokenSpan{Start: 2, End: 4}},
	}
	if diff := cmp.Diff(want, claims); diff != "" {
		t.Errorf("Match() mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchSkipsClaimedOccurrence(t *testing.T) {
	// "bc" is claimed first, so the "ab" at 0 is skipped, but the next "ab" matches.
	v := newTestVocabulary(t, NewToken("bc", false), NewToken("ab", false))
	text := "abc ab"
	assert.Equal(t, []string{"bc", "ab"}, claimedTexts(text, v.Match(text, MatchAll)))
	assert.Equal(t, api.TokenSpan{Start: 4, End: 6}, v.Match(text, MatchAll)[1].Span)
}

func TestMatchSingleWord(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"dancing", nil},
		{"ing", []string{"ing"}},
		{"sing ing", []string{"ing"}},
		{"ing_", nil},
		{"ing1", nil},
		{"éing", nil},
		{"(ing)", []string{"ing"}},
		{"ing, ing", []string{"ing", "ing"}},
	}
	v := newTestVocabulary(t, NewToken("ing", false).WithSingleWord(true))
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			assert.Equal(t, tc.want, claimedTexts(tc.text, v.Match(tc.text, MatchAll)))
		})
	}
}

func TestMatchStrip(t *testing.T) {
	tests := []struct {
		name  string
		token AddedToken
		text  string
		want  api.TokenSpan
	}{
		{"LStrip", NewToken("<mask>", true).WithLStrip(true), "a  <mask> b", api.TokenSpan{Start: 1, End: 9}},
		{"RStrip", NewToken("<mask>", true).WithRStrip(true), "a <mask>  b", api.TokenSpan{Start: 2, End: 10}},
		{"Both", NewToken("<mask>", true).WithLStrip(true).WithRStrip(true), "a\t<mask>\n b", api.TokenSpan{Start: 1, End: 10}},
		{"UnicodeSpace", NewToken("<mask>", true).WithLStrip(true), "a　<mask>", api.TokenSpan{Start: 1, End: 10}},
		{"NoSpace", NewToken("<mask>", true).WithLStrip(true).WithRStrip(true), "a<mask>b", api.TokenSpan{Start: 1, End: 7}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := newTestVocabulary(t, tc.token)
			claims := v.Match(tc.text, MatchAll)
			require.Len(t, claims, 1)
			assert.Equal(t, tc.want, claims[0].Span)
		})
	}
}

func TestMatchStripStopsAtClaimedBytes(t *testing.T) {
	// " " is claimed first: "<mask>" can't absorb it.
	v := newTestVocabulary(t, NewToken(" ", false), NewToken("<mask>", true).WithLStrip(true))
	text := "a <mask>"
	claims := v.Match(text, MatchAll)
	require.Len(t, claims, 2)
	assert.Equal(t, api.TokenSpan{Start: 1, End: 2}, claims[0].Span)
	assert.Equal(t, api.TokenSpan{Start: 2, End: 8}, claims[1].Span)
}

func TestMatchSets(t *testing.T) {
	v := newTestVocabulary(t, NewToken("raw", false).WithNormalized(false), NewToken("norm", false))
	text := "raw norm"
	assert.Equal(t, []string{"raw"}, claimedTexts(text, v.Match(text, MatchRaw)))
	assert.Equal(t, []string{"norm"}, claimedTexts(text, v.Match(text, MatchNormalized)))
	assert.Equal(t, []string{"raw", "norm"}, claimedTexts(text, v.Match(text, MatchAll)))
	assert.True(t, v.HasNormalizedTokens())
}

// TestMatchPriorityProperty checks on random inputs that when occurrences of two tokens overlap,
// only the first registered one is claimed.
func TestMatchPriorityProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	alphabet := []string{"a", "b", "ab", "ba", " "}
	for range 200 {
		first := randomText(rng, alphabet, 1+rng.IntN(3))
		second := randomText(rng, alphabet, 1+rng.IntN(3))
		if strings.TrimSpace(first) == "" || first == second || strings.TrimSpace(second) == "" {
			continue
		}
		text := randomText(rng, alphabet, 10)
		v := newTestVocabulary(t, NewToken(first, false), NewToken(second, false))
		claims := v.Match(text, MatchAll)

		firstAlone := newTestVocabulary(t, NewToken(first, false)).Match(text, MatchAll)
		var firstClaims []Claim
		for _, c := range claims {
			if c.ID == 0 {
				firstClaims = append(firstClaims, c)
			}
		}
		assert.Equal(t, firstAlone, firstClaims, "tokens %q, %q over %q", first, second, text)

		for i := 1; i < len(claims); i++ {
			assert.LessOrEqual(t, claims[i-1].Span.End, claims[i].Span.Start, "claims overlap")
		}
	}
}

func randomText(rng *rand.Rand, alphabet []string, n int) string {
	var sb strings.Builder
	for range n {
		sb.WriteString(alphabet[rng.IntN(len(alphabet))])
	}
	return sb.String()
}

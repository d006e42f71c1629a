package phoneme

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avneetpandey82/Lip-Sync/internal/viseme"
)

func TestEstimate_DictionaryHello(t *testing.T) {
	e := NewEstimator()

	got := e.Estimate("hello")
	want := []viseme.Token{
		{Viseme: viseme.Open, Stress: viseme.NotApplicable},
		{Viseme: viseme.Open, Stress: viseme.Primary},
		{Viseme: viseme.Tongue, Stress: viseme.NotApplicable},
		{Viseme: viseme.Puckered, Stress: viseme.Unstressed},
	}
	assert.Equal(t, want, got)

	primaries := 0
	for _, tok := range got {
		if tok.Stress == viseme.Primary {
			primaries++
		}
	}
	assert.Equal(t, 1, primaries)
}

func TestEstimate_IsPure(t *testing.T) {
	e := NewEstimator()
	for _, w := range []string{"hello", "blorpa", "thoughtful", "x"} {
		first := e.Estimate(w)
		first[0].Viseme = viseme.Rest // must not leak into later calls
		second := e.Estimate(w)
		third := e.Estimate(w)
		assert.Equal(t, second, third, w)
		assert.NotEmpty(t, second, w)
	}
}

func TestEstimate_RuleFallback(t *testing.T) {
	e := NewEstimator()

	tests := []struct {
		word string
		want []viseme.Token
	}{
		{
			word: "blorpa",
			want: []viseme.Token{
				{Viseme: viseme.Closed},
				{Viseme: viseme.Tongue},
				{Viseme: viseme.Rounded, Stress: viseme.Primary},
				{Viseme: viseme.Clenched},
				{Viseme: viseme.Closed},
				{Viseme: viseme.Open, Stress: viseme.Unstressed},
			},
		},
		{
			// tch must win over t + ch
			word: "batch",
			want: []viseme.Token{
				{Viseme: viseme.Closed},
				{Viseme: viseme.Open, Stress: viseme.Primary},
				{Viseme: viseme.Clenched},
			},
		},
		{
			// vowel digraph before single vowels
			word: "shoot",
			want: []viseme.Token{
				{Viseme: viseme.Clenched},
				{Viseme: viseme.Puckered, Stress: viseme.Primary},
				{Viseme: viseme.Clenched},
			},
		},
		{
			word: "thong",
			want: []viseme.Token{
				{Viseme: viseme.Tongue},
				{Viseme: viseme.Rounded, Stress: viseme.Primary},
				{Viseme: viseme.Clenched},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			require.False(t, e.Known(tt.word))
			assert.Equal(t, tt.want, e.Estimate(tt.word))
		})
	}
}

func TestEstimate_NoLetters(t *testing.T) {
	e := NewEstimator()
	assert.Nil(t, e.Estimate(""))
	assert.Nil(t, e.Estimate("!!"))
}

func TestApplyRules_DefaultWhenNothingMatches(t *testing.T) {
	assert.Equal(t, defaultTokens(), applyRules(""))
	assert.Equal(t, []viseme.Token{
		{Viseme: viseme.Open, Stress: viseme.Primary},
		{Viseme: viseme.Rest},
	}, defaultTokens())
}

func TestRuleTable_LongestFirst(t *testing.T) {
	for i := 1; i < len(ruleTable); i++ {
		assert.GreaterOrEqual(t, len(ruleTable[i-1].pattern), len(ruleTable[i].pattern))
	}
	for _, r := range ruleTable {
		assert.True(t, r.consume >= 1 && r.consume <= len(r.pattern), r.pattern)
	}
}

func TestEstimate_AllVisemesInAlphabet(t *testing.T) {
	e := NewEstimator()
	for word := range Builtin() {
		for _, tok := range e.Estimate(word) {
			assert.True(t, tok.Viseme.Valid(), word)
		}
	}
}

func TestOverlay(t *testing.T) {
	src := `
words:
  Cortex: "K AO1 R T EH2 K S"
  hello: "HH EH0 L OW1"
`
	overlay, err := LoadOverlay(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, overlay, 2)

	e := NewEstimator(overlay)
	assert.True(t, e.Known("cortex"))
	assert.Equal(t, viseme.Primary, e.Estimate("hello")[3].Stress)

	// the builtin estimator is untouched
	assert.Equal(t, viseme.Unstressed, NewEstimator().Estimate("hello")[3].Stress)
}

func TestOverlay_Errors(t *testing.T) {
	tests := map[string]string{
		"unknown phone":      "words:\n  foo: \"F QQ1\"\n",
		"stressed consonant": "words:\n  foo: \"F1 UW1\"\n",
		"no letters":         "words:\n  \"123\": \"W AH1 N\"\n",
		"bad yaml":           "words: [",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadOverlay(strings.NewReader(src))
			assert.Error(t, err)
		})
	}

	empty, err := LoadOverlay(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestParsePhone(t *testing.T) {
	p, s, err := ParsePhone("ah1")
	require.NoError(t, err)
	assert.Equal(t, AH, p)
	assert.Equal(t, viseme.Primary, s)

	p, s, err = ParsePhone("IY")
	require.NoError(t, err)
	assert.Equal(t, IY, p)
	assert.Equal(t, viseme.Unstressed, s)

	p, s, err = ParsePhone("NG")
	require.NoError(t, err)
	assert.Equal(t, NG, p)
	assert.Equal(t, viseme.NotApplicable, s)

	_, _, err = ParsePhone("")
	assert.Error(t, err)
}

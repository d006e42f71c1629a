package phoneme

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Word
	}{
		{
			name: "punctuation",
			text: "Hello, world! How are you?",
			want: []Word{
				{"hello", PauseClause},
				{"world", PauseSentence},
				{"how", PauseBoundary},
				{"are", PauseBoundary},
				{"you", PauseSentence},
			},
		},
		{
			name: "digits spelled out",
			text: "I have 42 cats",
			want: []Word{
				{"i", PauseBoundary},
				{"have", PauseBoundary},
				{"four", PauseBoundary},
				{"two", PauseBoundary},
				{"cats", PauseBoundary},
			},
		},
		{
			name: "standalone dash",
			text: "Wait — what?",
			want: []Word{
				{"wait", PauseClause},
				{"what", PauseSentence},
			},
		},
		{
			name: "hyphen and contraction",
			text: "Don't over-think",
			want: []Word{
				{"dont", PauseBoundary},
				{"over", PauseBoundary},
				{"think", PauseBoundary},
			},
		},
		{
			name: "no space after comma",
			text: "yes,no.",
			want: []Word{
				{"yes", PauseClause},
				{"no", PauseSentence},
			},
		},
		{
			name: "accents folded",
			text: "Café",
			want: []Word{{"cafe", PauseBoundary}},
		},
		{name: "empty", text: "   ", want: nil},
		{name: "only punctuation", text: "... !", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Split(tt.text))
		})
	}
}

func TestPauseWeightOrdering(t *testing.T) {
	assert.Greater(t, PauseSentence.Weight(), 2*PauseClause.Weight())
	assert.Greater(t, PauseClause.Weight(), PauseBoundary.Weight())
	assert.Greater(t, PauseBoundary.Weight(), 0.0)
}

func TestAnalyze(t *testing.T) {
	e := NewEstimator()
	got := e.Analyze("Hello there.")
	if assert.Len(t, got, 2) {
		assert.Equal(t, "hello", got[0].Text)
		assert.Len(t, got[0].Tokens, 4)
		assert.Equal(t, PauseSentence, got[1].Pause)
		assert.NotEmpty(t, got[1].Tokens)
	}
}

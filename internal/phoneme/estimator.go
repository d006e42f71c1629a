package phoneme

import (
	"github.com/avneetpandey82/Lip-Sync/internal/viseme"
)

// Estimator converts words to viseme tokens. It holds only an immutable
// dictionary, so Estimate is a pure function of its input and safe for
// concurrent use.
type Estimator struct {
	dict Dictionary
}

// WordTokens is a word together with its estimated tokens.
type WordTokens struct {
	Word
	Tokens []viseme.Token `json:"tokens"`
}

// NewEstimator builds an estimator over the builtin dictionary. Overlays are
// applied in order, later entries winning.
func NewEstimator(overlays ...Dictionary) *Estimator {
	dict := builtin
	for _, o := range overlays {
		dict = dict.merge(o)
	}
	return &Estimator{dict: dict}
}

// Known reports whether the cleaned word has a dictionary entry.
func (e *Estimator) Known(word string) bool {
	_, ok := e.dict[Clean(word)]
	return ok
}

// Estimate returns the token sequence for a word. Any word with at least one
// letter yields a non-empty sequence; a word without letters yields nil.
func (e *Estimator) Estimate(word string) []viseme.Token {
	w := Clean(word)
	if w == "" {
		return nil
	}
	if tokens, ok := e.dict[w]; ok {
		return append([]viseme.Token(nil), tokens...)
	}
	return applyRules(w)
}

// Analyze splits text into words and estimates each of them.
func (e *Estimator) Analyze(text string) []WordTokens {
	words := Split(text)
	out := make([]WordTokens, 0, len(words))
	for _, w := range words {
		out = append(out, WordTokens{Word: w, Tokens: e.Estimate(w.Text)})
	}
	return out
}

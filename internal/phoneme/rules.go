package phoneme

import (
	"sort"

	"github.com/avneetpandey82/Lip-Sync/internal/viseme"
)

// rule maps a spelling pattern to a single mouth shape. consume may be
// shorter than the pattern when the tail is only context ("ce" softens c).
type rule struct {
	pattern string
	viseme  viseme.Viseme
	consume int
	vowel   bool
}

func cons(pattern string, v viseme.Viseme) rule {
	return rule{pattern: pattern, viseme: v, consume: len(pattern)}
}

func vowel(pattern string, v viseme.Viseme) rule {
	return rule{pattern: pattern, viseme: v, consume: len(pattern), vowel: true}
}

func (r rule) consuming(n int) rule {
	r.consume = n
	return r
}

// spellingRules is declared roughly by sound class; ruleTable sorts it so
// longer patterns are always tried before shorter ones.
var spellingRules = []rule{
	vowel("ough", viseme.Puckered),
	cons("tion", viseme.Clenched).consuming(2),
	cons("sion", viseme.Clenched).consuming(2),

	vowel("igh", viseme.WideOpen),
	vowel("eau", viseme.Puckered),
	cons("tch", viseme.Clenched),
	cons("dge", viseme.Clenched),
	cons("sch", viseme.Clenched),

	cons("th", viseme.Tongue),
	cons("sh", viseme.Clenched),
	cons("ch", viseme.Clenched),
	cons("ph", viseme.Labiodental),
	cons("wh", viseme.Puckered),
	cons("ng", viseme.Clenched),
	cons("ck", viseme.Clenched),
	cons("qu", viseme.Puckered),
	cons("kn", viseme.Clenched),
	cons("wr", viseme.Clenched),
	cons("mb", viseme.Closed),
	cons("ce", viseme.Clenched).consuming(1),
	cons("ci", viseme.Clenched).consuming(1),

	vowel("ee", viseme.Clenched),
	vowel("ea", viseme.Clenched),
	vowel("ie", viseme.WideOpen),
	vowel("ei", viseme.Open),
	vowel("ey", viseme.Open),
	vowel("ai", viseme.Open),
	vowel("ay", viseme.Open),
	vowel("oo", viseme.Puckered),
	vowel("ou", viseme.WideOpen),
	vowel("ow", viseme.Puckered),
	vowel("oa", viseme.Puckered),
	vowel("oi", viseme.Rounded),
	vowel("oy", viseme.Rounded),
	vowel("au", viseme.Rounded),
	vowel("aw", viseme.Rounded),
	vowel("ue", viseme.Puckered),
	vowel("ew", viseme.Puckered),
	vowel("er", viseme.Rounded),
	vowel("ir", viseme.Rounded),
	vowel("ur", viseme.Rounded),
	vowel("ar", viseme.WideOpen).consuming(1),
	vowel("or", viseme.Rounded).consuming(1),

	vowel("a", viseme.Open),
	vowel("e", viseme.Open),
	vowel("i", viseme.Clenched),
	vowel("o", viseme.Rounded),
	vowel("u", viseme.Open),
	vowel("y", viseme.Clenched),

	cons("b", viseme.Closed),
	cons("m", viseme.Closed),
	cons("p", viseme.Closed),
	cons("f", viseme.Labiodental),
	cons("v", viseme.Labiodental),
	cons("l", viseme.Tongue),
	cons("w", viseme.Puckered),
	cons("h", viseme.Open),
	cons("c", viseme.Clenched),
	cons("d", viseme.Clenched),
	cons("g", viseme.Clenched),
	cons("j", viseme.Clenched),
	cons("k", viseme.Clenched),
	cons("n", viseme.Clenched),
	cons("q", viseme.Clenched),
	cons("r", viseme.Clenched),
	cons("s", viseme.Clenched),
	cons("t", viseme.Clenched),
	cons("x", viseme.Clenched),
	cons("z", viseme.Clenched),
}

// ruleTable is spellingRules ordered longest pattern first, keeping the
// declared order between patterns of equal length.
var ruleTable = func() []rule {
	out := append([]rule(nil), spellingRules...)
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].pattern) > len(out[j].pattern) })
	return out
}()

// applyRules runs the fallback engine over a cleaned word. Characters no rule
// matches are consumed without output. The first vowel match is tagged
// Primary and later ones Unstressed.
func applyRules(word string) []viseme.Token {
	tokens := make([]viseme.Token, 0, len(word))
	sawVowel := false

	for i := 0; i < len(word); {
		matched := false
		for _, r := range ruleTable {
			if len(r.pattern) > len(word)-i || word[i:i+len(r.pattern)] != r.pattern {
				continue
			}
			stress := viseme.NotApplicable
			if r.vowel {
				stress = viseme.Unstressed
				if !sawVowel {
					stress = viseme.Primary
					sawVowel = true
				}
			}
			tokens = append(tokens, viseme.Token{Viseme: r.viseme, Stress: stress})
			i += r.consume
			matched = true
			break
		}
		if !matched {
			i++
		}
	}

	if len(tokens) == 0 {
		return defaultTokens()
	}
	return tokens
}

// defaultTokens is emitted when nothing in a word matched at all.
func defaultTokens() []viseme.Token {
	return []viseme.Token{
		{Viseme: viseme.Open, Stress: viseme.Primary},
		{Viseme: viseme.Rest, Stress: viseme.NotApplicable},
	}
}

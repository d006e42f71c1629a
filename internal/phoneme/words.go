package phoneme

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Pause classifies the punctuation that follows a word.
type Pause uint8

const (
	PauseBoundary Pause = iota // plain word boundary
	PauseClause                // , ; : and dashes
	PauseSentence              // . ! ? and ellipsis
)

// Weight is the raw share of the pause budget a word receives.
func (p Pause) Weight() float64 {
	switch p {
	case PauseSentence:
		return 3.0
	case PauseClause:
		return 1.0
	default:
		return 0.25
	}
}

func (p Pause) String() string {
	switch p {
	case PauseSentence:
		return "sentence"
	case PauseClause:
		return "clause"
	default:
		return "boundary"
	}
}

// MarshalText encodes the pause class by name.
func (p Pause) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Word is a cleaned word with the pause that trails it.
type Word struct {
	Text  string `json:"text"`
	Pause Pause  `json:"pause"`
}

var digitWords = [10]string{"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine"}

// Clean lower-cases a word and keeps only ASCII letters. Accents are folded
// ("café" becomes "cafe").
func Clean(word string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(word) {
		r = unicode.ToLower(r)
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func pauseOf(r rune) (Pause, bool) {
	switch r {
	case '.', '!', '?', '…':
		return PauseSentence, true
	case ',', ';', ':', '—', '–':
		return PauseClause, true
	}
	return PauseBoundary, false
}

// Split tokenizes text into cleaned words. Digits are spelled out one by
// one, hyphenated words are split, and punctuation upgrades the pause of
// the word right before it.
func Split(text string) []Word {
	var words []Word
	var cur strings.Builder

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		if w := Clean(cur.String()); w != "" {
			words = append(words, Word{Text: w})
		}
		cur.Reset()
	}

	for _, field := range strings.Fields(text) {
		for _, r := range field {
			switch {
			case r >= '0' && r <= '9':
				flush()
				words = append(words, Word{Text: digitWords[r-'0']})
			case unicode.IsLetter(r) || unicode.Is(unicode.Mn, r):
				cur.WriteRune(r)
			case r == '\'' || r == '’':
				// contractions stay one word
			default:
				flush()
				if p, ok := pauseOf(r); ok && len(words) > 0 && p > words[len(words)-1].Pause {
					words[len(words)-1].Pause = p
				}
			}
		}
		flush()
	}
	return words
}

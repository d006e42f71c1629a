// Package phoneme estimates the mouth-shape sequence of English words: a
// pronunciation dictionary lookup first, a longest-match spelling rule engine
// for everything else.
package phoneme

import (
	"fmt"
	"strings"

	"github.com/avneetpandey82/Lip-Sync/internal/viseme"
)

// Phone is an ARPAbet phoneme symbol without its stress digit.
type Phone uint8

const (
	AA Phone = iota
	AE
	AH
	AO
	AW
	AY
	EH
	ER
	EY
	IH
	IY
	OW
	OY
	UH
	UW
	B
	CH
	D
	DH
	F
	G
	HH
	JH
	K
	L
	M
	N
	NG
	P
	R
	S
	SH
	T
	TH
	V
	W
	Y
	Z
	ZH

	phoneCount
)

var phoneNames = [phoneCount]string{
	"AA", "AE", "AH", "AO", "AW", "AY", "EH", "ER", "EY", "IH", "IY", "OW", "OY", "UH", "UW",
	"B", "CH", "D", "DH", "F", "G", "HH", "JH", "K", "L", "M", "N", "NG", "P", "R",
	"S", "SH", "T", "TH", "V", "W", "Y", "Z", "ZH",
}

// phoneVisemes is the many-to-one reduction of phones to mouth shapes.
var phoneVisemes = [phoneCount]viseme.Viseme{
	AA: viseme.WideOpen,
	AE: viseme.Open,
	AH: viseme.Open,
	AO: viseme.Rounded,
	AW: viseme.WideOpen,
	AY: viseme.WideOpen,
	EH: viseme.Open,
	ER: viseme.Rounded,
	EY: viseme.Open,
	IH: viseme.Clenched,
	IY: viseme.Clenched,
	OW: viseme.Puckered,
	OY: viseme.Rounded,
	UH: viseme.Puckered,
	UW: viseme.Puckered,

	B:  viseme.Closed,
	M:  viseme.Closed,
	P:  viseme.Closed,
	F:  viseme.Labiodental,
	V:  viseme.Labiodental,
	TH: viseme.Tongue,
	DH: viseme.Tongue,
	L:  viseme.Tongue,
	W:  viseme.Puckered,
	HH: viseme.Open,
	CH: viseme.Clenched,
	JH: viseme.Clenched,
	SH: viseme.Clenched,
	ZH: viseme.Clenched,
	D:  viseme.Clenched,
	G:  viseme.Clenched,
	K:  viseme.Clenched,
	N:  viseme.Clenched,
	NG: viseme.Clenched,
	R:  viseme.Clenched,
	S:  viseme.Clenched,
	T:  viseme.Clenched,
	Y:  viseme.Clenched,
	Z:  viseme.Clenched,
}

func (p Phone) String() string {
	if p >= phoneCount {
		return fmt.Sprintf("phone(%d)", uint8(p))
	}
	return phoneNames[p]
}

// IsVowel reports whether the phone is a vowel (and therefore carries stress).
func (p Phone) IsVowel() bool {
	return p <= UW
}

// Viseme returns the mouth shape for the phone.
func (p Phone) Viseme() viseme.Viseme {
	if p >= phoneCount {
		return viseme.Rest
	}
	return phoneVisemes[p]
}

// ParsePhone parses an ARPAbet symbol with an optional stress digit
// ("AH1", "l"). Vowels without a digit are treated as unstressed.
func ParsePhone(s string) (Phone, viseme.Stress, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, viseme.NotApplicable, fmt.Errorf("empty phone")
	}

	stress := viseme.NotApplicable
	hasDigit := false
	switch s[len(s)-1] {
	case '0':
		stress, hasDigit = viseme.Unstressed, true
	case '1':
		stress, hasDigit = viseme.Primary, true
	case '2':
		stress, hasDigit = viseme.Secondary, true
	}
	if hasDigit {
		s = s[:len(s)-1]
	}

	for i, name := range phoneNames {
		if name != s {
			continue
		}
		p := Phone(i)
		if !p.IsVowel() {
			if hasDigit {
				return 0, viseme.NotApplicable, fmt.Errorf("consonant %s cannot carry stress", name)
			}
			return p, viseme.NotApplicable, nil
		}
		if !hasDigit {
			stress = viseme.Unstressed
		}
		return p, stress, nil
	}
	return 0, viseme.NotApplicable, fmt.Errorf("unknown phone %q", s)
}

// ParsePronunciation converts a space separated ARPAbet pronunciation into tokens.
func ParsePronunciation(pron string) ([]viseme.Token, error) {
	fields := strings.Fields(pron)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty pronunciation")
	}
	tokens := make([]viseme.Token, 0, len(fields))
	for _, f := range fields {
		p, stress, err := ParsePhone(f)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, viseme.Token{Viseme: p.Viseme(), Stress: stress})
	}
	return tokens, nil
}

// Package viseme defines the closed mouth-shape alphabet and the timed cue
// timeline shared by the estimator, the refinement arbiter and the playback driver.
package viseme

import (
	"fmt"
	"strings"
)

// Viseme is one of the 9 mouth shapes. The symbols match the extended shape
// set emitted by external phoneme-extraction tools (A-H plus X for rest).
type Viseme uint8

const (
	Rest        Viseme = iota // X: silence, lips relaxed
	Closed                    // A: m, b, p
	Clenched                  // B: k, g, s, z, t, d, n, ee
	Open                      // C: eh, ae, ah
	WideOpen                  // D: aa, aw, ay
	Rounded                   // E: ao, er, oy
	Puckered                  // F: uw, ow, w
	Labiodental               // G: f, v
	Tongue                    // H: l, th

	Count = int(Tongue) + 1
)

var symbols = [Count]string{"X", "A", "B", "C", "D", "E", "F", "G", "H"}

var names = [Count]string{
	"rest",
	"closed",
	"clenched",
	"open",
	"wide_open",
	"rounded",
	"puckered",
	"labiodental",
	"tongue",
}

// All returns every viseme in alphabet order.
func All() []Viseme {
	out := make([]Viseme, Count)
	for i := range out {
		out[i] = Viseme(i)
	}
	return out
}

// Valid reports whether v belongs to the closed alphabet.
func (v Viseme) Valid() bool {
	return int(v) < Count
}

// Symbol returns the single-letter symbol (X, A..H).
func (v Viseme) Symbol() string {
	if !v.Valid() {
		return "?"
	}
	return symbols[v]
}

func (v Viseme) String() string {
	if !v.Valid() {
		return fmt.Sprintf("viseme(%d)", uint8(v))
	}
	return names[v]
}

// IsOpenVowel reports whether the shape is produced by a vowel with a
// noticeably dropped jaw.
func (v Viseme) IsOpenVowel() bool {
	switch v {
	case Open, WideOpen, Rounded, Puckered:
		return true
	}
	return false
}

// ParseSymbol parses a single-letter symbol. Lower case is accepted.
func ParseSymbol(s string) (Viseme, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, sym := range symbols {
		if sym == s {
			return Viseme(i), nil
		}
	}
	return Rest, fmt.Errorf("unknown viseme symbol %q", s)
}

// MarshalText encodes the viseme as its symbol.
func (v Viseme) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("invalid viseme %d", uint8(v))
	}
	return []byte(v.Symbol()), nil
}

// UnmarshalText decodes a symbol.
func (v *Viseme) UnmarshalText(b []byte) error {
	parsed, err := ParseSymbol(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Stress is the prosodic emphasis of a phoneme token.
type Stress uint8

const (
	NotApplicable Stress = iota // consonants
	Primary
	Secondary
	Unstressed
)

func (s Stress) String() string {
	switch s {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	case Unstressed:
		return "unstressed"
	default:
		return "n/a"
	}
}

// MarshalText encodes the stress level by name.
func (s Stress) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Token is a single estimated phoneme reduced to its mouth shape.
type Token struct {
	Viseme Viseme `json:"viseme"`
	Stress Stress `json:"stress"`
}

// IsVowel reports whether the token came from a vowel. Only vowels carry stress.
func (t Token) IsVowel() bool {
	return t.Stress != NotApplicable
}

func (t Token) String() string {
	if t.IsVowel() {
		return t.Viseme.Symbol() + "/" + t.Stress.String()
	}
	return t.Viseme.Symbol()
}

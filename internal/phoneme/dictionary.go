package phoneme

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/avneetpandey82/Lip-Sync/internal/viseme"
)

//go:embed dictionary.txt
var builtinSource string

// Dictionary maps a cleaned word to its token sequence. A Dictionary is
// built once and only read afterwards.
type Dictionary map[string][]viseme.Token

// ParseDictionary reads "word  PH PH1 PH0" lines. Blank lines and lines
// starting with ';' are ignored.
func ParseDictionary(r io.Reader) (Dictionary, error) {
	dict := make(Dictionary)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, ";") {
			continue
		}
		word, pron, ok := strings.Cut(text, " ")
		if !ok {
			return nil, fmt.Errorf("line %d: missing pronunciation for %q", line, text)
		}
		tokens, err := ParsePronunciation(pron)
		if err != nil {
			return nil, fmt.Errorf("line %d (%s): %w", line, word, err)
		}
		dict[Clean(word)] = tokens
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	return dict, nil
}

func mustBuiltin() Dictionary {
	dict, err := ParseDictionary(strings.NewReader(builtinSource))
	if err != nil {
		panic(fmt.Sprintf("phoneme: builtin dictionary: %v", err))
	}
	return dict
}

// builtin is parsed once at startup and never written afterwards.
var builtin = mustBuiltin()

// Builtin returns a copy of the embedded dictionary.
func Builtin() Dictionary {
	return builtin.merge(nil)
}

func (d Dictionary) merge(other Dictionary) Dictionary {
	out := make(Dictionary, len(d)+len(other))
	for w, t := range d {
		out[w] = t
	}
	for w, t := range other {
		out[w] = t
	}
	return out
}

// overlayFile is the YAML layout of a pronunciation overlay:
//
//	words:
//	  cortex: "K AO1 R T EH2 K S"
type overlayFile struct {
	Words map[string]string `yaml:"words"`
}

// LoadOverlay reads extra pronunciations from YAML. Entries override the
// builtin dictionary when passed to NewEstimator.
func LoadOverlay(r io.Reader) (Dictionary, error) {
	var f overlayFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if err == io.EOF {
			return Dictionary{}, nil
		}
		return nil, fmt.Errorf("decode overlay: %w", err)
	}

	dict := make(Dictionary, len(f.Words))
	for word, pron := range f.Words {
		key := Clean(word)
		if key == "" {
			return nil, fmt.Errorf("overlay word %q has no letters", word)
		}
		tokens, err := ParsePronunciation(pron)
		if err != nil {
			return nil, fmt.Errorf("overlay word %q: %w", word, err)
		}
		dict[key] = tokens
	}
	return dict, nil
}

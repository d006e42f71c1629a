package viseme

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlphabetIsClosed(t *testing.T) {
	all := All()
	require.Len(t, all, 9)

	seen := map[string]bool{}
	for _, v := range all {
		assert.True(t, v.Valid())
		seen[v.Symbol()] = true
	}
	assert.Len(t, seen, 9, "symbols must be distinct")
	assert.False(t, Viseme(9).Valid())
	assert.Equal(t, "?", Viseme(42).Symbol())
}

func TestParseSymbol(t *testing.T) {
	tests := []struct {
		in      string
		want    Viseme
		wantErr bool
	}{
		{"X", Rest, false},
		{"a", Closed, false},
		{" D ", WideOpen, false},
		{"H", Tongue, false},
		{"Z", Rest, true},
		{"", Rest, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSymbol(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimelineJSONShape(t *testing.T) {
	raw := `{"mouthCues":[{"start":0,"end":0.2,"value":"X"},{"start":0.2,"end":0.5,"value":"D"}]}`

	var tl Timeline
	require.NoError(t, json.Unmarshal([]byte(raw), &tl))
	require.Len(t, tl.Cues, 2)
	assert.Equal(t, WideOpen, tl.Cues[1].Viseme)

	out, err := json.Marshal(tl)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestTimelineRejectsUnknownSymbol(t *testing.T) {
	var tl Timeline
	err := json.Unmarshal([]byte(`{"mouthCues":[{"start":0,"end":1,"value":"Q"}]}`), &tl)
	assert.Error(t, err)
}

func TestTokenIsVowel(t *testing.T) {
	assert.True(t, Token{Viseme: WideOpen, Stress: Primary}.IsVowel())
	assert.True(t, Token{Viseme: Open, Stress: Unstressed}.IsVowel())
	assert.False(t, Token{Viseme: Closed, Stress: NotApplicable}.IsVowel())
}

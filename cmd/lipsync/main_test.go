package main

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avneetpandey82/Lip-Sync/internal/audio"
	"github.com/avneetpandey82/Lip-Sync/internal/utterance"
	"github.com/avneetpandey82/Lip-Sync/internal/viseme"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "lipsync.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("logging:\n  console: false\nrefine:\n  enabled: false\n"), 0644))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	require.NoError(t, root.Execute())
	return out.String()
}

func writeTone(t *testing.T, seconds float64) string {
	t.Helper()
	rate := 16000
	samples := make([]int16, int(seconds*float64(rate)))
	for i := range samples {
		samples[i] = int16(8000 * math.Sin(2*math.Pi*180*float64(i)/float64(rate)))
	}
	path := filepath.Join(t.TempDir(), "speech.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, audio.EncodeWAV(f, audio.PCM{Samples: samples, SampleRate: rate}))
	require.NoError(t, f.Close())
	return path
}

func TestVersion(t *testing.T) {
	assert.Equal(t, "lipsync v"+version+"\n", run(t, "version"))
}

func TestPhonemes(t *testing.T) {
	out := run(t, "phonemes", "Hello, world")
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "dict")
	assert.Contains(t, out, "clause")
}

func TestTimeline_Duration(t *testing.T) {
	out := run(t, "timeline", "--duration", "1.0", "Hello")
	var tl viseme.Timeline
	require.NoError(t, json.Unmarshal([]byte(out), &tl))
	assert.NoError(t, tl.Validate(1.0))
}

func TestTimeline_Audio(t *testing.T) {
	wav := writeTone(t, 0.8)
	out := run(t, "timeline", "--audio", wav, "--refine", "Hello there")
	var tl viseme.Timeline
	require.NoError(t, json.Unmarshal([]byte(out), &tl))
	assert.NoError(t, tl.Validate(0.8))
}

func TestEnvelope(t *testing.T) {
	wav := writeTone(t, 0.5)
	out := run(t, "envelope", "--frame-rate", "50", wav)
	var env audio.Envelope
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	assert.Len(t, env.Values, 25)
	assert.InDelta(t, 0.02, env.FrameDuration, 1e-12)
	assert.InDelta(t, 1.0, env.Peak(), 1e-9)
}

func TestRender(t *testing.T) {
	wav := writeTone(t, 0.5)
	out := run(t, "render", "--audio", wav, "--fps", "30", "Hi")
	var doc struct {
		FPS    int                       `json:"fps"`
		Frames []utterance.RenderedFrame `json:"frames"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, 30, doc.FPS)
	assert.Len(t, doc.Frames, 16)
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.yaml")
	assert.Equal(t, path+"\n", run(t, "config", "init", path))
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

package logging

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&Config{Level: LevelDebug, Console: true, Output: &buf, MaxHistory: 10})
	require.NoError(t, err)
	defer l.Close()

	assert.Empty(t, l.Path())
	l.Info("allocator", "Timeline built", map[string]any{"cues": 5})
	assert.Contains(t, buf.String(), "Timeline built")
	assert.Contains(t, buf.String(), "allocator")
}

func TestNew_WithFile(t *testing.T) {
	dir := t.TempDir()
	l, err := New(&Config{Dir: dir, Level: LevelInfo})
	require.NoError(t, err)

	l.Warn("refine", "Tool slow", nil)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"Tool slow"`)
	assert.Contains(t, string(data), `"app":"lipsync"`)
}

func TestHistory(t *testing.T) {
	l, err := New(&Config{Level: LevelInfo, MaxHistory: 3})
	require.NoError(t, err)

	l.Debug("x", "filtered", nil)
	for _, m := range []string{"one", "two", "three", "four"} {
		l.Info("x", m, nil)
	}
	l.Error("x", "boom", errors.New("bad"), map[string]any{"b": 2, "a": 1})

	h := l.History(0)
	require.Len(t, h, 3)
	assert.Equal(t, "three", h[0].Message)
	assert.Equal(t, "boom", h[2].Message)
	assert.Equal(t, "error", h[2].Level)
	assert.Equal(t, "a=1, b=2, error=bad", h[2].Data)

	assert.Len(t, l.History(1), 1)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "debug", ParseLevel("DEBUG").String())
	assert.Equal(t, "warn", ParseLevel(LevelWarn).String())
	assert.Equal(t, "info", ParseLevel("nonsense").String())
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&Config{Level: LevelInfo, Console: true, Output: &buf})
	require.NoError(t, err)

	c := l.Component("stream")
	c.Info().Msg("client connected")
	assert.Contains(t, buf.String(), "stream")
}

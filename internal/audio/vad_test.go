package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVAD_DetectsSpeech(t *testing.T) {
	vad := NewVAD(&VADConfig{Threshold: 0.1, SmoothingFrames: 1, HangoverMs: 35})

	assert.False(t, vad.Process(0.01, 0.01).IsSpeech)
	assert.False(t, vad.IsActive())

	r := vad.Process(0.8, 0.01)
	assert.True(t, r.IsSpeech)
	assert.Greater(t, r.Confidence, 0.5)
	assert.True(t, vad.IsActive())
}

func TestVAD_Hangover(t *testing.T) {
	vad := NewVAD(&VADConfig{Threshold: 0.1, SmoothingFrames: 1, HangoverMs: 35})
	vad.Process(0.9, 0.01)

	// short dips stay inside the segment
	assert.True(t, vad.Process(0, 0.01).IsSpeech)
	assert.True(t, vad.Process(0, 0.01).IsSpeech)
	assert.True(t, vad.Process(0, 0.01).IsSpeech)
	assert.False(t, vad.Process(0, 0.01).IsSpeech)
	assert.False(t, vad.IsActive())
}

func TestVAD_Smoothing(t *testing.T) {
	vad := NewVAD(&VADConfig{Threshold: 0.5, SmoothingFrames: 4, HangoverMs: 0})
	// a single loud frame is averaged away
	r := vad.Process(1.0, 0.01)
	assert.False(t, r.IsSpeech)
	assert.InDelta(t, 0.25, r.Level, 1e-12)
}

func TestVAD_Reset(t *testing.T) {
	vad := NewVAD(nil)
	vad.Process(1, 0.01)
	assert.True(t, vad.IsActive())
	vad.Reset()
	assert.False(t, vad.IsActive())
	assert.Equal(t, 0.0, vad.Process(0, 0.01).Level)
}

func TestVAD_SetThreshold(t *testing.T) {
	vad := NewVAD(&VADConfig{Threshold: 0.1, SmoothingFrames: 1, HangoverMs: 0})
	assert.True(t, vad.Process(0.3, 0.01).IsSpeech)

	vad.SetThreshold(0.5)
	assert.False(t, vad.Process(0.3, 0.01).IsSpeech)
}

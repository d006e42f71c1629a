// Package audio provides PCM decoding, amplitude envelopes, voice activity
// gating and the playback clock used to drive lip sync.
package audio

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrInvalidFormat = errors.New("invalid audio format")
	ErrSampleRate    = errors.New("invalid sample rate")
	ErrBufferFull    = errors.New("audio buffer full")
	ErrClosed        = errors.New("playout closed")
)

// Format represents audio encoding format
type Format string

const (
	FormatWAV Format = "wav"
	FormatPCM Format = "pcm"
)

// DefaultSampleRate is the rate synthesized speech arrives at.
const DefaultSampleRate = 24000

// PCM is mono 16-bit signed audio.
type PCM struct {
	Samples    []int16 `json:"-"`
	SampleRate int     `json:"sample_rate"`
}

// FromBytes wraps little-endian 16-bit PCM bytes. A trailing odd byte is
// ignored.
func FromBytes(data []byte, sampleRate int) PCM {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[2*i]) | int16(data[2*i+1])<<8
	}
	return PCM{Samples: samples, SampleRate: sampleRate}
}

// Bytes returns the samples as little-endian bytes.
func (p PCM) Bytes() []byte {
	out := make([]byte, 2*len(p.Samples))
	for i, s := range p.Samples {
		out[2*i] = byte(s)
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out
}

// Validate reports whether the buffer can be played.
func (p PCM) Validate() error {
	if p.SampleRate <= 0 {
		return ErrSampleRate
	}
	return nil
}

// Duration returns the length in seconds.
func (p PCM) Duration() float64 {
	if p.SampleRate <= 0 {
		return 0
	}
	return float64(len(p.Samples)) / float64(p.SampleRate)
}

// Len returns the length as a time.Duration.
func (p PCM) Len() time.Duration {
	return time.Duration(p.Duration() * float64(time.Second))
}

// VADResult represents the result of voice activity detection
type VADResult struct {
	IsSpeech   bool    `json:"is_speech"`
	Confidence float64 `json:"confidence"`
	Level      float64 `json:"level"`
}

package audio

import (
	"math"
)

// DefaultFrameRate gives 10 ms envelope frames.
const DefaultFrameRate = 100

// Envelope is a peak-normalized RMS energy curve in [0,1].
type Envelope struct {
	Values        []float64 `json:"values"`
	FrameDuration float64   `json:"frame_duration"`
}

// Extract computes the envelope of 16-bit samples. Each frame holds the RMS of
// its window, then a 3-tap moving average removes single-frame spikes and the
// curve is divided by its peak. A silent buffer yields all zeros.
func Extract(samples []int16, sampleRate, frameRate int) Envelope {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	env := Envelope{FrameDuration: 1 / float64(frameRate)}
	if sampleRate <= 0 || len(samples) == 0 {
		return env
	}

	window := sampleRate / frameRate
	if window < 1 {
		window = 1
	}
	// whole-sample windows, so frames are timed by the window, not the rate
	env.FrameDuration = float64(window) / float64(sampleRate)
	frames := (len(samples) + window - 1) / window

	rms := make([]float64, frames)
	for f := range rms {
		start := f * window
		end := start + window
		if end > len(samples) {
			end = len(samples)
		}
		var sum float64
		for _, s := range samples[start:end] {
			v := float64(s) / 32768.0
			sum += v * v
		}
		rms[f] = math.Sqrt(sum / float64(end-start))
	}

	env.Values = smooth3(rms)

	peak := 0.0
	for _, v := range env.Values {
		peak = math.Max(peak, v)
	}
	if peak > 0 {
		for i := range env.Values {
			env.Values[i] /= peak
		}
	}
	return env
}

// ExtractPCM16LE is Extract over little-endian PCM bytes.
func ExtractPCM16LE(data []byte, sampleRate, frameRate int) Envelope {
	return Extract(FromBytes(data, sampleRate).Samples, sampleRate, frameRate)
}

// smooth3 is a centered 3-tap moving average; edges average the neighbours
// that exist.
func smooth3(in []float64) []float64 {
	out := make([]float64, len(in))
	for i := range in {
		sum, n := in[i], 1.0
		if i > 0 {
			sum += in[i-1]
			n++
		}
		if i+1 < len(in) {
			sum += in[i+1]
			n++
		}
		out[i] = sum / n
	}
	return out
}

// At samples the envelope at t seconds. Out of range reads are zero.
func (e Envelope) At(t float64) float64 {
	if e.FrameDuration <= 0 || t < 0 || math.IsNaN(t) {
		return 0
	}
	i := int(t / e.FrameDuration)
	if i >= len(e.Values) {
		return 0
	}
	return e.Values[i]
}

// Duration is the time covered by the frames.
func (e Envelope) Duration() float64 {
	return float64(len(e.Values)) * e.FrameDuration
}

// Peak returns the largest value, 1 for any non-silent input.
func (e Envelope) Peak() float64 {
	peak := 0.0
	for _, v := range e.Values {
		peak = math.Max(peak, v)
	}
	return peak
}

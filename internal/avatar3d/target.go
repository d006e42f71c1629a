package avatar3d

import (
	"math"

	"github.com/avneetpandey82/Lip-Sync/internal/audio"
	"github.com/avneetpandey82/Lip-Sync/internal/viseme"
)

// Params tunes the driver. Times are in seconds, rates in 1/s.
type Params struct {
	LookAheadWindow   float64 `mapstructure:"lookahead_window"`
	LookAheadFraction float64 `mapstructure:"lookahead_fraction"`
	SilenceThreshold  float64 `mapstructure:"silence_threshold"`
	JawCurve          float64 `mapstructure:"jaw_curve"`
	ConsonantFloor    float64 `mapstructure:"consonant_floor"`
	LowJaw            float64 `mapstructure:"low_jaw"`
	AttackRate        float64 `mapstructure:"attack_rate"`
	DecayRate         float64 `mapstructure:"decay_rate"`
	IdleIntensity     float64 `mapstructure:"idle_intensity"`
}

// DefaultParams returns the tuned defaults.
func DefaultParams() Params {
	return Params{
		LookAheadWindow:   0.05,
		LookAheadFraction: 0.18,
		SilenceThreshold:  0.07,
		JawCurve:          0.6,
		ConsonantFloor:    0.08,
		LowJaw:            0.3,
		AttackRate:        18,
		DecayRate:         9,
		IdleIntensity:     1.0,
	}
}

// Lookup finds the cue playing at t and the upcoming cue starting within
// window after t. Missing cues are -1.
func Lookup(tl viseme.Timeline, t, window float64) (active, next int) {
	active = tl.Index(t)
	if active < 0 {
		return active, -1
	}
	if n, ok := tl.Next(active); ok && n.Start-t <= window {
		return active, active + 1
	}
	return active, -1
}

// Target computes the gated, unsmoothed weights at playback time t.
func Target(p Params, tl viseme.Timeline, env audio.Envelope, t float64) Weights {
	active, next := Lookup(tl, t, p.LookAheadWindow)

	v := viseme.Rest
	if active >= 0 {
		v = tl.Cues[active].Viseme
	}
	base := ShapesFor(v)
	target := base
	if next >= 0 {
		ahead := ShapesFor(tl.Cues[next].Viseme)
		ahead = ahead.Scale(p.LookAheadFraction)
		target = target.Add(&ahead)
	}

	target[JawOpen] = gateJaw(p, v, base[JawOpen], target[JawOpen], env.At(t))
	return target
}

// gateJaw scales the jaw by audio energy. Below the silence threshold the
// jaw closes whatever the viseme; above it a power curve ramps it in, with
// a small floor for low-jaw consonants.
func gateJaw(p Params, v viseme.Viseme, baseJaw, jaw, energy float64) float64 {
	if energy < p.SilenceThreshold {
		return 0
	}
	x := 1.0
	if p.SilenceThreshold < 1 {
		x = clamp((energy-p.SilenceThreshold)/(1-p.SilenceThreshold), 0, 1)
	}
	gated := jaw * math.Pow(x, p.JawCurve)
	if isConsonant(v) && baseJaw <= p.LowJaw {
		gated = math.Max(gated, math.Min(baseJaw, p.ConsonantFloor))
	}
	return clamp(gated, 0, 1)
}

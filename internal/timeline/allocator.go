// Package timeline turns estimated phoneme tokens into a duration-exact
// sequence of mouth cues.
package timeline

import (
	"math"

	"github.com/avneetpandey82/Lip-Sync/internal/phoneme"
	"github.com/avneetpandey82/Lip-Sync/internal/viseme"
)

// Params tunes the allocation. All durations are in seconds.
type Params struct {
	// Leading silence is min(LeadInMax, LeadInRatio*D).
	LeadInMax   float64 `mapstructure:"lead_in_max"`
	LeadInRatio float64 `mapstructure:"lead_in_ratio"`

	// Share of the post-lead-in time given to phonemes; the rest is pauses.
	SpeechShare float64 `mapstructure:"speech_share"`

	PrimaryStress   float64 `mapstructure:"primary_stress"`
	SecondaryStress float64 `mapstructure:"secondary_stress"`
	Unstressed      float64 `mapstructure:"unstressed"`
	VowelWeight     float64 `mapstructure:"vowel_weight"`
	ConsonantWeight float64 `mapstructure:"consonant_weight"`

	MinCue         float64 `mapstructure:"min_cue"`         // flicker floor per cue
	PauseThreshold float64 `mapstructure:"pause_threshold"` // shortest pause emitted as a Rest cue
}

// DefaultParams returns the tuned defaults.
func DefaultParams() Params {
	return Params{
		LeadInMax:       0.02,
		LeadInRatio:     0.03,
		SpeechShare:     0.84,
		PrimaryStress:   1.45,
		SecondaryStress: 1.15,
		Unstressed:      0.65,
		VowelWeight:     1.2,
		ConsonantWeight: 0.8,
		MinCue:          0.03,
		PauseThreshold:  0.01,
	}
}

// Allocator distributes a known audio duration over estimated tokens.
type Allocator struct {
	params Params
}

// NewAllocator creates an allocator. Zero-valued params fall back to defaults.
func NewAllocator(p Params) *Allocator {
	def := DefaultParams()
	fill := func(v *float64, d float64) {
		if *v <= 0 || math.IsNaN(*v) {
			*v = d
		}
	}
	fill(&p.LeadInMax, def.LeadInMax)
	fill(&p.LeadInRatio, def.LeadInRatio)
	fill(&p.SpeechShare, def.SpeechShare)
	fill(&p.PrimaryStress, def.PrimaryStress)
	fill(&p.SecondaryStress, def.SecondaryStress)
	fill(&p.Unstressed, def.Unstressed)
	fill(&p.VowelWeight, def.VowelWeight)
	fill(&p.ConsonantWeight, def.ConsonantWeight)
	fill(&p.MinCue, def.MinCue)
	fill(&p.PauseThreshold, def.PauseThreshold)
	if p.SpeechShare > 1 {
		p.SpeechShare = 1
	}
	return &Allocator{params: p}
}

// Params returns the effective parameters.
func (a *Allocator) Params() Params {
	return a.params
}

// Weight is the relative duration weight of a token.
func (a *Allocator) Weight(t viseme.Token) float64 {
	class := a.params.ConsonantWeight
	if t.IsVowel() {
		class = a.params.VowelWeight
	}
	return a.stress(t.Stress) * class
}

func (a *Allocator) stress(s viseme.Stress) float64 {
	switch s {
	case viseme.Primary:
		return a.params.PrimaryStress
	case viseme.Secondary:
		return a.params.SecondaryStress
	case viseme.Unstressed:
		return a.params.Unstressed
	default:
		return 1.0
	}
}

// segment is a cue before it is placed on the time axis.
type segment struct {
	viseme viseme.Viseme
	dur    float64
}

// Allocate produces a timeline ending exactly at d. Empty input or a
// non-positive duration yields a single Rest cue.
func (a *Allocator) Allocate(words []phoneme.WordTokens, d float64) viseme.Timeline {
	if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
		return viseme.Silence(d)
	}

	var totalWeight, totalPause float64
	for _, w := range words {
		for _, t := range w.Tokens {
			totalWeight += a.Weight(t)
		}
		if len(w.Tokens) > 0 {
			totalPause += w.Pause.Weight()
		}
	}
	if totalWeight <= 0 {
		return viseme.Silence(d)
	}

	leadIn := math.Min(a.params.LeadInMax, d*a.params.LeadInRatio)
	budget := d - leadIn
	speech := budget * a.params.SpeechShare
	pauses := budget - speech

	segs := make([]segment, 0, 64)
	for _, w := range words {
		if len(w.Tokens) == 0 {
			continue
		}
		for _, t := range w.Tokens {
			segs = append(segs, segment{viseme: t.Viseme, dur: speech * a.Weight(t) / totalWeight})
		}
		if totalPause > 0 {
			if p := pauses * w.Pause.Weight() / totalPause; p > a.params.PauseThreshold {
				segs = append(segs, segment{viseme: viseme.Rest, dur: p})
			}
		}
	}

	normalize(segs, budget, a.params.MinCue)
	return a.place(segs, leadIn, d)
}

// normalize rescales durations so they sum to total while keeping every
// segment at or above floor. Segments that would drop below the floor are
// pinned to it and the rest are rescaled until stable. If the floor cannot
// be honoured at all the budget is split evenly.
func normalize(segs []segment, total, floor float64) {
	n := len(segs)
	if n == 0 {
		return
	}
	if float64(n)*floor >= total {
		for i := range segs {
			segs[i].dur = total / float64(n)
		}
		return
	}

	pinned := make([]bool, n)
	for i := range segs {
		if segs[i].dur < floor {
			segs[i].dur = floor
		}
	}

	for {
		var free float64
		pinnedCount := 0
		for i, s := range segs {
			if pinned[i] {
				pinnedCount++
				continue
			}
			free += s.dur
		}
		if free <= 0 {
			// everything pinned: the floor check above guarantees room
			for i := range segs {
				segs[i].dur = total / float64(n)
			}
			return
		}

		scale := (total - float64(pinnedCount)*floor) / free
		changed := false
		for i := range segs {
			if pinned[i] {
				continue
			}
			if segs[i].dur*scale < floor {
				pinned[i] = true
				segs[i].dur = floor
				changed = true
			}
		}
		if changed {
			continue
		}
		for i := range segs {
			if !pinned[i] {
				segs[i].dur *= scale
			}
		}
		return
	}
}

// place lays segments out after the lead-in and reconciles rounding drift so
// the last cue ends exactly at d.
func (a *Allocator) place(segs []segment, leadIn, d float64) viseme.Timeline {
	cues := make([]viseme.Cue, 0, len(segs)+2)
	cursor := 0.0
	if leadIn > 0 {
		cues = append(cues, viseme.Cue{Start: 0, End: leadIn, Viseme: viseme.Rest})
		cursor = leadIn
	}
	for _, s := range segs {
		end := cursor + s.dur
		cues = append(cues, viseme.Cue{Start: cursor, End: end, Viseme: s.viseme})
		cursor = end
	}

	return viseme.Timeline{Cues: reconcile(cues, d, a.params.PauseThreshold)}
}

// reconcile forces the final end to d: a short timeline is extended (or gets
// a trailing Rest when the gap is perceptible), a long one has its last cue
// compressed, dropping cues that would collapse entirely.
func reconcile(cues []viseme.Cue, d, threshold float64) []viseme.Cue {
	if len(cues) == 0 {
		return viseme.Silence(d).Cues
	}

	last := &cues[len(cues)-1]
	drift := d - last.End
	switch {
	case drift > threshold && last.Viseme != viseme.Rest:
		cues = append(cues, viseme.Cue{Start: last.End, End: d, Viseme: viseme.Rest})
	case drift >= 0:
		last.End = d
	default:
		for len(cues) > 1 && d-cues[len(cues)-1].Start <= viseme.Epsilon {
			cues = cues[:len(cues)-1]
		}
		cues[len(cues)-1].End = d
	}
	return cues
}

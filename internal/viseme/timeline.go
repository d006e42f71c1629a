package viseme

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Epsilon is the tolerance used when comparing cue boundaries.
const Epsilon = 1e-9

// ErrEmptyTimeline is returned by Validate for a timeline without cues.
var ErrEmptyTimeline = errors.New("timeline has no cues")

// Cue is a time interval, in seconds, showing a single viseme.
type Cue struct {
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Viseme Viseme  `json:"value"`
}

// Duration returns End - Start.
func (c Cue) Duration() float64 {
	return c.End - c.Start
}

// Timeline is an ordered, gap-free list of cues whose last end equals the
// audio duration. Once published a Timeline is never mutated.
type Timeline struct {
	Cues []Cue `json:"mouthCues"`
}

// Silence returns the trivial timeline: one Rest cue spanning d.
func Silence(d float64) Timeline {
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		d = 0
	}
	return Timeline{Cues: []Cue{{Start: 0, End: d, Viseme: Rest}}}
}

// Duration returns the end of the last cue.
func (t Timeline) Duration() float64 {
	if len(t.Cues) == 0 {
		return 0
	}
	return t.Cues[len(t.Cues)-1].End
}

// Len returns the number of cues.
func (t Timeline) Len() int {
	return len(t.Cues)
}

// Index returns the index of the cue whose [start, end) contains at, or -1.
func (t Timeline) Index(at float64) int {
	n := len(t.Cues)
	i := sort.Search(n, func(i int) bool { return t.Cues[i].End > at })
	if i < n && t.Cues[i].Start <= at {
		return i
	}
	return -1
}

// At returns the cue containing at. ok is false past the end or before the start.
func (t Timeline) At(at float64) (Cue, bool) {
	i := t.Index(at)
	if i < 0 {
		return Cue{Start: at, End: at, Viseme: Rest}, false
	}
	return t.Cues[i], true
}

// Next returns the cue following index i, if any.
func (t Timeline) Next(i int) (Cue, bool) {
	if i < -1 || i+1 >= len(t.Cues) {
		return Cue{}, false
	}
	return t.Cues[i+1], true
}

// Validate checks the timeline invariant for an audio duration d: sorted,
// contiguous, non-overlapping, starting at >= 0 and ending exactly at d.
func (t Timeline) Validate(d float64) error {
	if len(t.Cues) == 0 {
		return ErrEmptyTimeline
	}
	if t.Cues[0].Start < 0 {
		return fmt.Errorf("first cue starts at %.6f", t.Cues[0].Start)
	}
	for i, c := range t.Cues {
		if !c.Viseme.Valid() {
			return fmt.Errorf("cue %d: invalid viseme %d", i, uint8(c.Viseme))
		}
		if c.End < c.Start {
			return fmt.Errorf("cue %d: end %.6f before start %.6f", i, c.End, c.Start)
		}
		if i > 0 && math.Abs(c.Start-t.Cues[i-1].End) > Epsilon {
			return fmt.Errorf("cue %d: starts at %.9f, previous ends at %.9f", i, c.Start, t.Cues[i-1].End)
		}
	}
	if end := t.Duration(); math.Abs(end-d) > Epsilon {
		return fmt.Errorf("timeline ends at %.9f, want %.9f", end, d)
	}
	return nil
}

// Conform turns an externally produced cue list into a duration-exact
// timeline. Gaps and the tail are filled with Rest, cues past d are cut and
// zero-length cues are dropped. Nothing from any other timeline is merged in.
func Conform(cues []Cue, d float64) Timeline {
	if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
		return Silence(d)
	}

	sorted := make([]Cue, 0, len(cues))
	for _, c := range cues {
		if math.IsNaN(c.Start) || math.IsNaN(c.End) || !c.Viseme.Valid() {
			continue
		}
		sorted = append(sorted, c)
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	out := make([]Cue, 0, len(sorted)+2)
	push := func(start, end float64, v Viseme) {
		n := len(out)
		if n > 0 {
			start = out[n-1].End
		}
		if end-start <= Epsilon {
			return
		}
		if n > 0 && out[n-1].Viseme == v {
			out[n-1].End = end
			return
		}
		out = append(out, Cue{Start: start, End: end, Viseme: v})
	}

	cursor := 0.0
	for _, c := range sorted {
		start := math.Max(c.Start, cursor)
		end := math.Min(c.End, d)
		if end <= start {
			continue
		}
		if start-cursor <= Epsilon {
			start = cursor
		} else {
			push(cursor, start, Rest)
		}
		push(start, end, c.Viseme)
		cursor = end
	}
	if cursor < d {
		push(cursor, d, Rest)
	}
	if len(out) == 0 {
		return Silence(d)
	}
	out[len(out)-1].End = d
	return Timeline{Cues: out}
}

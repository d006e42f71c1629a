package refine

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/avneetpandey82/Lip-Sync/internal/viseme"
)

// DefaultMinCoverage is the smallest accepted coverage. Coverage exactly at
// the threshold is accepted.
const DefaultMinCoverage = 0.70

// Decision is the outcome of one offered candidate.
type Decision struct {
	Accepted bool            `json:"accepted"`
	Coverage float64         `json:"coverage"`
	Reason   string          `json:"reason,omitempty"`
	Err      error           `json:"-"`
	Timeline viseme.Timeline `json:"-"` // the active timeline after the decision
}

// Arbiter owns the active timeline of one utterance. The estimate can be
// replaced at most once, by a candidate that covers enough of the audio.
// Readers get a complete timeline at every instant.
type Arbiter struct {
	active      atomic.Pointer[viseme.Timeline]
	duration    float64
	minCoverage float64
	log         zerolog.Logger

	mu        sync.Mutex // serialises decisions
	replaced  bool
	cancelled bool
	stop      context.CancelFunc
}

// ArbiterOption configures an Arbiter.
type ArbiterOption func(*Arbiter)

// WithMinCoverage overrides DefaultMinCoverage.
func WithMinCoverage(c float64) ArbiterOption {
	return func(a *Arbiter) {
		if c > 0 && c <= 1 {
			a.minCoverage = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) ArbiterOption {
	return func(a *Arbiter) {
		a.log = log.With().Str("component", "refine.arbiter").Logger()
	}
}

// NewArbiter publishes estimate as the active timeline for audio of the
// given duration.
func NewArbiter(estimate viseme.Timeline, duration float64, opts ...ArbiterOption) *Arbiter {
	a := &Arbiter{
		duration:    duration,
		minCoverage: DefaultMinCoverage,
		log:         zerolog.Nop(),
	}
	for _, o := range opts {
		o(a)
	}
	a.active.Store(&estimate)
	return a
}

// Current returns the active timeline. It never blocks.
func (a *Arbiter) Current() viseme.Timeline {
	return *a.active.Load()
}

// Replaced reports whether a refinement has been applied.
func (a *Arbiter) Replaced() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.replaced
}

// Coverage is the end of the last cue divided by the audio duration.
func Coverage(cues []viseme.Cue, duration float64) float64 {
	if duration <= 0 || math.IsNaN(duration) {
		return 0
	}
	end := 0.0
	for _, c := range cues {
		if !math.IsNaN(c.End) && c.End > end {
			end = c.End
		}
	}
	return end / duration
}

// Offer submits a candidate. An accepted candidate is conformed to the audio
// duration and swapped in whole; a rejected one leaves the estimate untouched.
func (a *Arbiter) Offer(cues []viseme.Cue) Decision {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := Decision{Coverage: Coverage(cues, a.duration)}
	switch {
	case a.cancelled:
		d.Err = ErrCancelled
	case a.replaced:
		d.Err = ErrAlreadyReplaced
	case len(cues) == 0:
		d.Err = ErrEmptyResult
	case d.Coverage+viseme.Epsilon < a.minCoverage:
		d.Err = ErrLowCoverage
	default:
		tl := viseme.Conform(cues, a.duration)
		a.active.Store(&tl)
		a.replaced = true
		d.Accepted = true
		d.Timeline = tl
		a.log.Info().
			Float64("coverage", d.Coverage).
			Int("cues", tl.Len()).
			Msg("Refined timeline accepted")
		return d
	}

	d.Reason = d.Err.Error()
	d.Timeline = a.Current()
	a.log.Info().
		Float64("coverage", d.Coverage).
		Str("reason", d.Reason).
		Msg("Refined timeline rejected")
	return d
}

// Fail records a refinement failure. The estimate is kept.
func (a *Arbiter) Fail(err error) Decision {
	if errors.Is(err, context.Canceled) {
		a.mu.Lock()
		cancelled := a.cancelled
		a.mu.Unlock()
		if cancelled {
			err = ErrCancelled
		}
	}
	a.log.Warn().Err(err).Msg("Refinement failed, keeping estimate")
	return Decision{Err: err, Reason: err.Error(), Timeline: a.Current()}
}

// Cancel ignores every later offer and stops a running refinement.
func (a *Arbiter) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelled = true
	if a.stop != nil {
		a.stop()
		a.stop = nil
	}
}

// Run executes r in its own goroutine and offers its result. The channel
// yields exactly one decision and is then closed.
func (a *Arbiter) Run(ctx context.Context, r Refiner, req Request) <-chan Decision {
	out := make(chan Decision, 1)

	a.mu.Lock()
	if a.cancelled {
		a.mu.Unlock()
		out <- a.Offer(nil)
		close(out)
		return out
	}
	ctx, cancel := context.WithCancel(ctx)
	a.stop = cancel
	a.mu.Unlock()

	go func() {
		defer close(out)
		defer cancel()

		cues, err := r.Refine(ctx, req)
		if err != nil {
			out <- a.Fail(err)
			return
		}
		out <- a.Offer(cues)
	}()
	return out
}

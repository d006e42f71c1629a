package avatar3d

import (
	"context"
	"math"
	"sync"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"

	"github.com/avneetpandey82/Lip-Sync/internal/audio"
	"github.com/avneetpandey82/Lip-Sync/internal/viseme"
)

// State is the playback lifecycle of one utterance.
type State string

const (
	StateIdle     State = "idle"
	StateArmed    State = "armed"
	StatePlaying  State = "playing"
	StateFinished State = "finished"
)

const (
	eventArm    = "arm"
	eventPlay   = "play"
	eventFinish = "finish"
	eventReset  = "reset"
)

// Frame is everything a tick needs. The driver keeps no reference to it.
type Frame struct {
	Clock    audio.Clock
	Dt       float64 // seconds since the previous tick
	Timeline viseme.Timeline
	Envelope audio.Envelope
}

// PlaybackState is a snapshot of the driver after a tick.
type PlaybackState struct {
	State       State         `json:"state"`
	CurrentTime float64       `json:"current_time"`
	Active      viseme.Viseme `json:"active"`
	LookAhead   viseme.Viseme `json:"lookahead"`
	HasNext     bool          `json:"has_next"`
	Speaking    bool          `json:"speaking"`
	Weights     Weights       `json:"-"`
}

// Driver computes smoothed mouth weights every render tick. It owns its
// smoothing state and is the only writer of it.
type Driver struct {
	mu sync.Mutex

	params  Params
	machine *fsm.FSM
	weights Weights
	idle    *IdleAnimator
	vad     *audio.VAD
	state   PlaybackState
	log     zerolog.Logger
}

// NewDriver creates a driver in the idle state.
func NewDriver(p Params, log zerolog.Logger) *Driver {
	d := &Driver{
		params: p,
		idle:   NewIdleAnimator(1),
		vad: audio.NewVAD(&audio.VADConfig{
			Threshold:       p.SilenceThreshold,
			SmoothingFrames: 3,
			HangoverMs:      120,
		}),
		log: log.With().Str("component", "lipsync").Logger(),
	}
	d.idle.SetIntensity(p.IdleIntensity)

	d.machine = fsm.NewFSM(
		string(StateIdle),
		fsm.Events{
			{Name: eventArm, Src: []string{string(StateIdle), string(StateFinished)}, Dst: string(StateArmed)},
			{Name: eventPlay, Src: []string{string(StateArmed)}, Dst: string(StatePlaying)},
			{Name: eventFinish, Src: []string{string(StateArmed), string(StatePlaying)}, Dst: string(StateFinished)},
			{Name: eventReset, Src: []string{string(StateArmed), string(StatePlaying), string(StateFinished)}, Dst: string(StateIdle)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				d.log.Debug().Str("from", e.Src).Str("to", e.Dst).Msg("Lip sync state changed")
				switch State(e.Dst) {
				case StateIdle, StateFinished:
					d.restPose()
				}
			},
		},
	)
	return d
}

// restPose clears smoothing state. Callers hold d.mu.
func (d *Driver) restPose() {
	d.weights.Reset()
	d.vad.Reset()
	d.state.Active = viseme.Rest
	d.state.LookAhead = viseme.Rest
	d.state.HasNext = false
	d.state.Speaking = false
}

func (d *Driver) event(name string) error {
	err := d.machine.Event(context.Background(), name)
	d.state.State = State(d.machine.Current())
	return err
}

// Arm readies the driver once timeline and envelope exist.
func (d *Driver) Arm() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.event(eventArm)
}

// Play starts playback when audio begins.
func (d *Driver) Play() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.event(eventPlay)
}

// Finish ends playback and returns to the rest pose.
func (d *Driver) Finish() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.event(eventFinish)
}

// Reset returns to idle from any state.
func (d *Driver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if State(d.machine.Current()) != StateIdle {
		_ = d.event(eventReset)
	}
	d.restPose()
}

// State returns the lifecycle state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return State(d.machine.Current())
}

// SetParams swaps tuning at runtime.
func (d *Driver) SetParams(p Params) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.params = p
	d.idle.SetIntensity(p.IdleIntensity)
	d.vad.SetThreshold(p.SilenceThreshold)
}

// Snapshot returns the state after the last tick.
func (d *Driver) Snapshot() PlaybackState {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.state
	s.State = State(d.machine.Current())
	s.Weights = d.weights
	return s
}

// Tick advances one render frame and returns the weights to display.
// Reaching the timeline's end while playing moves the driver to finished.
func (d *Driver) Tick(f Frame) Weights {
	d.mu.Lock()
	defer d.mu.Unlock()

	dt := f.Dt
	if dt < 0 || math.IsNaN(dt) {
		dt = 0
	}
	d.idle.Advance(dt)

	if State(d.machine.Current()) != StatePlaying {
		out := d.weights
		d.idle.Apply(&out)
		return out
	}

	t := 0.0
	if f.Clock != nil {
		t = f.Clock.Position()
	}
	d.state.CurrentTime = t

	if end := f.Timeline.Duration(); t >= end {
		_ = d.event(eventFinish)
		out := d.weights
		d.idle.Apply(&out)
		return out
	}

	active, next := Lookup(f.Timeline, t, d.params.LookAheadWindow)
	d.state.Active, d.state.LookAhead, d.state.HasNext = viseme.Rest, viseme.Rest, next >= 0
	if active >= 0 {
		d.state.Active = f.Timeline.Cues[active].Viseme
	}
	if next >= 0 {
		d.state.LookAhead = f.Timeline.Cues[next].Viseme
	}

	target := Target(d.params, f.Timeline, f.Envelope, t)
	d.smooth(&target, dt)

	vad := d.vad.Process(f.Envelope.At(t), dt)
	d.state.Speaking = vad.IsSpeech

	out := d.weights
	if !vad.IsSpeech {
		d.idle.Apply(&out)
	}
	return out
}

// smooth eases the weights toward target with a fast attack and a slower
// decay: w += (target - w) * (1 - exp(-rate*dt)).
func (d *Driver) smooth(target *Weights, dt float64) {
	for i := range d.weights {
		rate := d.params.DecayRate
		if target[i] > d.weights[i] {
			rate = d.params.AttackRate
		}
		k := 1 - math.Exp(-rate*dt)
		d.weights[i] = clamp(d.weights[i]+(target[i]-d.weights[i])*k, 0, 1)
	}
}

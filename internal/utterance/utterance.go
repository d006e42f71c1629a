package utterance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/avneetpandey82/Lip-Sync/internal/audio"
	"github.com/avneetpandey82/Lip-Sync/internal/avatar3d"
	"github.com/avneetpandey82/Lip-Sync/internal/bus"
	"github.com/avneetpandey82/Lip-Sync/internal/refine"
	"github.com/avneetpandey82/Lip-Sync/internal/viseme"
)

// ErrStopped is returned by Play when Stop ended playback.
var ErrStopped = errors.New("utterance stopped")

// Utterance is one prepared piece of speech. Its envelope is immutable; its
// timeline may be replaced once by an accepted refinement.
type Utterance struct {
	ID   string
	Text string

	pipeline *Pipeline
	duration float64
	envelope audio.Envelope
	fps      int
	arbiter  *refine.Arbiter
	driver   *avatar3d.Driver
	log      zerolog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	playing  sync.Mutex

	refined  chan struct{}
	decision refine.Decision
}

// Timeline returns the active timeline.
func (u *Utterance) Timeline() viseme.Timeline {
	return u.arbiter.Current()
}

// Envelope returns the amplitude envelope.
func (u *Utterance) Envelope() audio.Envelope {
	return u.envelope
}

// Duration returns the audio length in seconds.
func (u *Utterance) Duration() float64 {
	return u.duration
}

// State returns the driver's lifecycle state.
func (u *Utterance) State() avatar3d.State {
	return u.driver.State()
}

// Snapshot returns the driver state after its last tick.
func (u *Utterance) Snapshot() avatar3d.PlaybackState {
	return u.driver.Snapshot()
}

func (u *Utterance) finishRefinement(d refine.Decision) {
	u.decision = d
	close(u.refined)
}

// Refined is closed once the refinement has been decided, including when no
// refiner is configured.
func (u *Utterance) Refined() <-chan struct{} {
	return u.refined
}

// Decision returns the refinement outcome. It is only meaningful after
// Refined is closed.
func (u *Utterance) Decision() refine.Decision {
	select {
	case <-u.refined:
		return u.decision
	default:
		return refine.Decision{}
	}
}

// Play runs the tick loop at the configured frame rate, reading playback
// time from clock, until the audio is over, ctx is done or Stop is called.
// Each tick reads the arbiter's current timeline, so a refinement accepted
// mid-playback takes effect on the next frame.
func (u *Utterance) Play(ctx context.Context, clock audio.Clock) error {
	if !u.playing.TryLock() {
		return errors.New("utterance already playing")
	}
	defer u.playing.Unlock()

	if err := u.driver.Play(); err != nil {
		return err
	}
	u.pipeline.bus.Publish(bus.Event{Type: bus.EventTypeUtterancePlaying, Data: map[string]any{"id": u.ID}})
	u.log.Debug().Int("fps", u.fps).Msg("Playback started")

	ticker := time.NewTicker(time.Second / time.Duration(u.fps))
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			u.Stop()
			return ctx.Err()
		case <-u.stop:
			return ErrStopped
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			if u.tick(clock, dt) {
				u.finish()
				return nil
			}
		}
	}
}

// tick renders one frame and reports whether playback reached the end.
func (u *Utterance) tick(clock audio.Clock, dt float64) bool {
	w := u.driver.Tick(avatar3d.Frame{
		Clock:    clock,
		Dt:       dt,
		Timeline: u.arbiter.Current(),
		Envelope: u.envelope,
	})
	s := u.driver.Snapshot()
	u.pipeline.sink.SendFrame(Frame{
		Utterance: u.ID,
		Time:      s.CurrentTime,
		State:     s.State,
		Viseme:    s.Active,
		Weights:   w,
	})
	return s.State == avatar3d.StateFinished
}

func (u *Utterance) finish() {
	u.arbiter.Cancel()
	u.pipeline.release(u.ID)
	u.log.Debug().Msg("Playback finished")
	u.pipeline.bus.Publish(bus.Event{Type: bus.EventTypeUtteranceFinished, Data: map[string]any{
		"id":      u.ID,
		"refined": u.arbiter.Replaced(),
	}})
}

// Stop halts playback, discards any pending refinement and returns the
// driver to the rest pose. It is safe to call more than once.
func (u *Utterance) Stop() {
	u.stopOnce.Do(func() {
		close(u.stop)
		u.arbiter.Cancel()
		u.driver.Reset()
		u.pipeline.release(u.ID)

		u.pipeline.sink.SendFrame(Frame{Utterance: u.ID, State: avatar3d.StateIdle, Viseme: viseme.Rest})
		u.pipeline.bus.Publish(bus.Event{Type: bus.EventTypeUtteranceStopped, Data: map[string]any{"id": u.ID}})
		u.log.Debug().Msg("Utterance stopped")
	})
}

// RenderedFrame is one frame of an offline render.
type RenderedFrame struct {
	Time    float64            `json:"t"`
	Viseme  viseme.Viseme      `json:"viseme"`
	Weights map[string]float64 `json:"weights"`
}

// Render plays the current timeline against a manual clock at fps and
// returns every frame up to the end of the audio. It uses its own driver,
// so it does not disturb live playback, and identical inputs give identical
// frames.
func (u *Utterance) Render(fps int) []RenderedFrame {
	if fps <= 0 {
		fps = u.fps
	}
	params := u.pipeline.Config().Playback.Driver
	d := avatar3d.NewDriver(params, zerolog.Nop())
	_ = d.Arm()
	_ = d.Play()

	tl := u.arbiter.Current()
	clock := audio.NewManualClock()
	dt := 1 / float64(fps)

	n := int(u.duration*float64(fps)) + 1
	out := make([]RenderedFrame, 0, n)
	for i := 0; i < n; i++ {
		clock.Set(float64(i) * dt)
		w := d.Tick(avatar3d.Frame{Clock: clock, Dt: dt, Timeline: tl, Envelope: u.envelope})
		s := d.Snapshot()
		out = append(out, RenderedFrame{Time: clock.Position(), Viseme: s.Active, Weights: w.Map()})
		if s.State == avatar3d.StateFinished {
			break
		}
	}
	return out
}

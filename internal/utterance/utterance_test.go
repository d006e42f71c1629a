package utterance

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avneetpandey82/Lip-Sync/internal/audio"
	"github.com/avneetpandey82/Lip-Sync/internal/avatar3d"
	"github.com/avneetpandey82/Lip-Sync/internal/bus"
	"github.com/avneetpandey82/Lip-Sync/internal/config"
	"github.com/avneetpandey82/Lip-Sync/internal/refine"
	"github.com/avneetpandey82/Lip-Sync/internal/viseme"
)

type recordingSink struct {
	mu        sync.Mutex
	frames    []Frame
	timelines []bool
}

func (s *recordingSink) SendFrame(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
}

func (s *recordingSink) SendTimeline(_ string, _ viseme.Timeline, refined bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timelines = append(s.timelines, refined)
}

func (s *recordingSink) snapshot() ([]Frame, []bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.frames...), append([]bool(nil), s.timelines...)
}

// stepClock advances a fixed step every time it is read.
type stepClock struct {
	mu   sync.Mutex
	t    float64
	step float64
}

func (c *stepClock) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.t
	c.t += c.step
	return t
}

func tone(seconds float64) audio.PCM {
	rate := 16000
	n := int(seconds * float64(rate))
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(10000 * math.Sin(2*math.Pi*220*float64(i)/float64(rate)))
	}
	return audio.PCM{Samples: samples, SampleRate: rate}
}

func newPipeline(t *testing.T, opts ...Option) (*Pipeline, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	cfg := config.DefaultConfig()
	cfg.Playback.FPS = 200
	p, err := New(cfg, append([]Option{WithSink(sink), WithLogger(zerolog.Nop())}, opts...)...)
	require.NoError(t, err)
	return p, sink
}

func waitRefined(t *testing.T, u *Utterance) refine.Decision {
	t.Helper()
	select {
	case <-u.Refined():
		return u.Decision()
	case <-time.After(5 * time.Second):
		t.Fatal("refinement not decided")
		return refine.Decision{}
	}
}

func TestPrepare_EstimateOnly(t *testing.T) {
	p, sink := newPipeline(t)

	u, err := p.Prepare(context.Background(), "Hello", tone(1.0))
	require.NoError(t, err)

	assert.NotEmpty(t, u.ID)
	assert.InDelta(t, 1.0, u.Duration(), 1e-9)
	require.NoError(t, u.Timeline().Validate(1.0))
	assert.LessOrEqual(t, u.Timeline().Cues[0].End, 0.03)
	assert.InDelta(t, 1.0, u.Envelope().Peak(), 1e-9)
	assert.Equal(t, avatar3d.StateArmed, u.State())
	assert.Equal(t, 1, p.Active())

	d := waitRefined(t, u)
	assert.False(t, d.Accepted)
	assert.Equal(t, "refinement disabled", d.Reason)

	_, timelines := sink.snapshot()
	assert.Equal(t, []bool{false}, timelines)
}

func TestPrepare_InvalidAudio(t *testing.T) {
	p, _ := newPipeline(t)
	_, err := p.Prepare(context.Background(), "Hello", audio.PCM{Samples: []int16{1, 2}})
	assert.ErrorIs(t, err, audio.ErrSampleRate)
}

func TestPrepare_EmptyText(t *testing.T) {
	p, _ := newPipeline(t)
	u, err := p.Prepare(context.Background(), "", tone(0.5))
	require.NoError(t, err)
	assert.Equal(t, []viseme.Cue{{Start: 0, End: 0.5, Viseme: viseme.Rest}}, u.Timeline().Cues)
}

func TestPrepare_RefinementAcceptedAndCached(t *testing.T) {
	var calls atomic.Int32
	refiner := refine.RefinerFunc(func(ctx context.Context, req refine.Request) ([]viseme.Cue, error) {
		calls.Add(1)
		return []viseme.Cue{
			{Start: 0, End: 0.3, Viseme: viseme.Closed},
			{Start: 0.3, End: 0.9, Viseme: viseme.WideOpen},
		}, nil
	})
	p, sink := newPipeline(t, WithRefiner(refiner))

	accepted := make(chan bus.Event, 2)
	p.Bus().Subscribe(bus.EventTypeRefineAccepted, func(e bus.Event) { accepted <- e })

	u, err := p.Prepare(context.Background(), "Hello", tone(1.0))
	require.NoError(t, err)
	d := waitRefined(t, u)
	require.True(t, d.Accepted)
	assert.InDelta(t, 0.9, d.Coverage, 1e-9)

	tl := u.Timeline()
	require.NoError(t, tl.Validate(1.0))
	assert.Equal(t, viseme.Closed, tl.Cues[0].Viseme)
	assert.Equal(t, viseme.Rest, tl.Cues[len(tl.Cues)-1].Viseme, "tail padded with rest")

	select {
	case e := <-accepted:
		assert.Equal(t, u.ID, e.Data["id"])
	case <-time.After(time.Second):
		t.Fatal("no refine.accepted event")
	}

	again, err := p.Prepare(context.Background(), "Hello", tone(1.0))
	require.NoError(t, err)
	d = waitRefined(t, again)
	assert.True(t, d.Accepted)
	assert.Equal(t, int32(1), calls.Load(), "second utterance served from cache")
	assert.Equal(t, 1, p.Cache().Len())
	assert.Equal(t, tl, again.Timeline())

	_, timelines := sink.snapshot()
	assert.Equal(t, []bool{false, true, false, true}, timelines)
}

func TestPrepare_LowCoverageKeepsEstimate(t *testing.T) {
	refiner := refine.RefinerFunc(func(ctx context.Context, req refine.Request) ([]viseme.Cue, error) {
		return []viseme.Cue{{Start: 0, End: 0.65, Viseme: viseme.Open}}, nil
	})
	p, _ := newPipeline(t, WithRefiner(refiner))

	rejected := make(chan bus.Event, 1)
	p.Bus().Subscribe(bus.EventTypeRefineRejected, func(e bus.Event) { rejected <- e })

	u, err := p.Prepare(context.Background(), "Hello", tone(1.0))
	require.NoError(t, err)
	estimate := u.Timeline()

	d := waitRefined(t, u)
	assert.False(t, d.Accepted)
	assert.ErrorIs(t, d.Err, refine.ErrLowCoverage)
	assert.Equal(t, estimate, u.Timeline())
	assert.Equal(t, 0, p.Cache().Len())

	select {
	case e := <-rejected:
		assert.Equal(t, d.Reason, e.Data["reason"])
	case <-time.After(time.Second):
		t.Fatal("no refine.rejected event")
	}
}

func TestPrepare_ToolFailureKeepsEstimate(t *testing.T) {
	refiner := refine.RefinerFunc(func(ctx context.Context, req refine.Request) ([]viseme.Cue, error) {
		return nil, &refine.ExitError{ExitCode: 1, Stderr: "boom"}
	})
	p, _ := newPipeline(t, WithRefiner(refiner))

	u, err := p.Prepare(context.Background(), "Hello there", tone(1.0))
	require.NoError(t, err)
	estimate := u.Timeline()

	d := waitRefined(t, u)
	assert.False(t, d.Accepted)
	var exitErr *refine.ExitError
	assert.True(t, errors.As(d.Err, &exitErr))
	assert.Equal(t, estimate, u.Timeline())
}

func TestStop_DiscardsLateRefinement(t *testing.T) {
	started := make(chan struct{})
	refiner := refine.RefinerFunc(func(ctx context.Context, req refine.Request) ([]viseme.Cue, error) {
		close(started)
		<-ctx.Done()
		return []viseme.Cue{{Start: 0, End: 1, Viseme: viseme.WideOpen}}, ctx.Err()
	})
	p, sink := newPipeline(t, WithRefiner(refiner))

	u, err := p.Prepare(context.Background(), "Hello", tone(1.0))
	require.NoError(t, err)
	estimate := u.Timeline()
	<-started

	u.Stop()
	u.Stop()

	d := waitRefined(t, u)
	assert.False(t, d.Accepted)
	assert.ErrorIs(t, d.Err, refine.ErrCancelled)
	assert.Equal(t, estimate, u.Timeline())
	assert.Equal(t, avatar3d.StateIdle, u.State())
	assert.Equal(t, 0, p.Active())

	frames, _ := sink.snapshot()
	require.Len(t, frames, 1)
	assert.Equal(t, viseme.Rest, frames[0].Viseme)

	assert.Error(t, u.Play(context.Background(), audio.NewManualClock()), "stopped utterance cannot play")
}

func TestFinish_DiscardsLateRefinement(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	refiner := refine.RefinerFunc(func(ctx context.Context, req refine.Request) ([]viseme.Cue, error) {
		close(started)
		<-release
		return []viseme.Cue{{Start: 0, End: 0.3, Viseme: viseme.WideOpen}}, nil
	})
	p, sink := newPipeline(t, WithRefiner(refiner))

	u, err := p.Prepare(context.Background(), "Hi there", tone(0.3))
	require.NoError(t, err)
	estimate := u.Timeline()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, u.Play(ctx, &stepClock{step: 0.02}))
	require.Equal(t, avatar3d.StateFinished, u.State())
	require.Equal(t, 0, p.Active())

	close(release)
	d := waitRefined(t, u)
	assert.False(t, d.Accepted)
	assert.ErrorIs(t, d.Err, refine.ErrCancelled)
	assert.Equal(t, estimate, u.Timeline())
	assert.Equal(t, 0, p.Cache().Len())

	_, timelines := sink.snapshot()
	assert.Equal(t, []bool{false}, timelines)
}

func TestPlay_RunsToEnd(t *testing.T) {
	p, sink := newPipeline(t)

	finished := make(chan bus.Event, 1)
	p.Bus().Subscribe(bus.EventTypeUtteranceFinished, func(e bus.Event) { finished <- e })

	u, err := p.Prepare(context.Background(), "Hi there", tone(0.3))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, u.Play(ctx, &stepClock{step: 0.02}))

	assert.Equal(t, avatar3d.StateFinished, u.State())
	snap := u.Snapshot()
	assert.True(t, snap.Weights.IsRest(0))
	assert.Equal(t, 0, p.Active())

	frames, _ := sink.snapshot()
	require.NotEmpty(t, frames)
	last := frames[len(frames)-1]
	assert.Equal(t, avatar3d.StateFinished, last.State)
	for i := 1; i < len(frames); i++ {
		assert.GreaterOrEqual(t, frames[i].Time, frames[i-1].Time)
	}

	select {
	case e := <-finished:
		assert.Equal(t, u.ID, e.Data["id"])
	case <-time.After(time.Second):
		t.Fatal("no utterance.finished event")
	}
}

func TestPlay_ContextCancelResets(t *testing.T) {
	p, _ := newPipeline(t)
	u, err := p.Prepare(context.Background(), "Hello", tone(1.0))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = u.Play(ctx, audio.NewManualClock())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, avatar3d.StateIdle, u.State())
}

func TestPlay_StopEndsLoop(t *testing.T) {
	p, _ := newPipeline(t)
	u, err := p.Prepare(context.Background(), "Hello", tone(1.0))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- u.Play(context.Background(), audio.NewManualClock()) }()

	time.Sleep(20 * time.Millisecond)
	p.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("Play did not return after Stop")
	}
}

func TestRender_Deterministic(t *testing.T) {
	p, _ := newPipeline(t)
	u, err := p.Prepare(context.Background(), "Hello world.", tone(1.0))
	require.NoError(t, err)

	a := u.Render(60)
	b := u.Render(60)
	require.Equal(t, a, b)
	assert.Len(t, a, 61)
	assert.Equal(t, 0.0, a[0].Time)
	assert.Contains(t, a[30].Weights, "jawOpen")

	var opened bool
	for _, f := range a {
		if f.Weights["jawOpen"] > 0.2 {
			opened = true
		}
	}
	assert.True(t, opened, "voiced audio opens the jaw")
	assert.Equal(t, avatar3d.StateArmed, u.State(), "render leaves live driver alone")
}

func TestApply(t *testing.T) {
	p, _ := newPipeline(t)
	reloaded := make(chan struct{}, 1)
	p.Bus().Subscribe(bus.EventTypeConfigReloaded, func(bus.Event) { reloaded <- struct{}{} })

	cfg := config.DefaultConfig()
	cfg.Playback.Driver.AttackRate = 40
	cfg.Allocator.MinCue = 0.05
	p.Apply(cfg)

	got := p.Config()
	assert.Equal(t, 40.0, got.Playback.Driver.AttackRate)
	assert.Equal(t, 0.05, got.Allocator.MinCue)
	assert.Equal(t, 60, got.Playback.FPS)

	select {
	case <-reloaded:
	case <-time.After(time.Second):
		t.Fatal("no config.reloaded event")
	}

	u, err := p.Prepare(context.Background(), "Hello", tone(0.5))
	require.NoError(t, err)
	for _, c := range u.Timeline().Cues {
		if c.Viseme != viseme.Rest {
			assert.GreaterOrEqual(t, c.Duration(), 0.05-1e-9)
		}
	}
}

func TestNew_PronunciationOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.yaml")
	require.NoError(t, os.WriteFile(path, []byte("words:\n  zyxq: \"Z IY1 K\"\n"), 0644))

	cfg := config.DefaultConfig()
	cfg.Pronunciation.Overlay = path
	p, err := New(cfg)
	require.NoError(t, err)
	assert.True(t, p.Estimator().Known("zyxq"))

	cfg.Pronunciation.Overlay = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestNew_RefineEnabledWithoutTool(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Refine.Enabled = true
	cfg.Refine.Tool.Binary = "definitely-not-a-real-lipsync-binary"
	p, err := New(cfg)
	require.NoError(t, err)

	u, err := p.Prepare(context.Background(), "Hello", tone(0.5))
	require.NoError(t, err)
	d := waitRefined(t, u)
	assert.Equal(t, "refinement disabled", d.Reason)
}

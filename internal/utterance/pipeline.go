// Package utterance composes estimation, envelope extraction, refinement and
// playback into the lifecycle of one spoken utterance.
package utterance

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/avneetpandey82/Lip-Sync/internal/audio"
	"github.com/avneetpandey82/Lip-Sync/internal/avatar3d"
	"github.com/avneetpandey82/Lip-Sync/internal/bus"
	"github.com/avneetpandey82/Lip-Sync/internal/config"
	"github.com/avneetpandey82/Lip-Sync/internal/phoneme"
	"github.com/avneetpandey82/Lip-Sync/internal/refine"
	"github.com/avneetpandey82/Lip-Sync/internal/timeline"
)

// Pipeline is long-lived and shared by every utterance it prepares.
type Pipeline struct {
	estimator *phoneme.Estimator
	refiner   refine.Refiner
	cache     *refine.Cache
	bus       *bus.EventBus
	sink      FrameSink
	log       zerolog.Logger

	mu        sync.RWMutex
	cfg       config.Config
	allocator *timeline.Allocator
	active    map[string]*Utterance
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRefiner sets the refiner, overriding the configured tool.
func WithRefiner(r refine.Refiner) Option {
	return func(p *Pipeline) { p.refiner = r }
}

// WithSink sets where rendered frames go.
func WithSink(s FrameSink) Option {
	return func(p *Pipeline) { p.sink = s }
}

// WithBus sets the event bus.
func WithBus(b *bus.EventBus) Option {
	return func(p *Pipeline) { p.bus = b }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithEstimator replaces the estimator built from the configuration.
func WithEstimator(e *phoneme.Estimator) Option {
	return func(p *Pipeline) { p.estimator = e }
}

// New builds a pipeline from cfg. The external tool is only used when
// refinement is enabled and its binary can be found.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:       *cfg,
		allocator: timeline.NewAllocator(cfg.Allocator),
		sink:      nopSink{},
		log:       zerolog.Nop(),
		active:    make(map[string]*Utterance),
	}
	for _, o := range opts {
		o(p)
	}
	p.log = p.log.With().Str("component", "pipeline").Logger()
	if p.bus == nil {
		p.bus = bus.NewEventBus()
	}

	if p.estimator == nil {
		est, err := loadEstimator(cfg.Pronunciation.Overlay)
		if err != nil {
			return nil, err
		}
		p.estimator = est
	}

	if p.refiner == nil && cfg.Refine.Enabled {
		tool := refine.NewTool(cfg.Refine.Tool, p.log)
		if err := tool.Available(); err != nil {
			p.log.Warn().Err(err).Msg("Refinement tool unavailable, using estimates only")
		} else {
			p.refiner = tool
		}
	}

	cache, err := refine.NewCache(cfg.Refine.CacheSize)
	if err != nil {
		return nil, err
	}
	p.cache = cache
	return p, nil
}

func loadEstimator(overlay string) (*phoneme.Estimator, error) {
	if overlay == "" {
		return phoneme.NewEstimator(), nil
	}
	f, err := os.Open(overlay)
	if err != nil {
		return nil, fmt.Errorf("open pronunciation overlay: %w", err)
	}
	defer f.Close()
	dict, err := phoneme.LoadOverlay(f)
	if err != nil {
		return nil, fmt.Errorf("load pronunciation overlay %s: %w", overlay, err)
	}
	return phoneme.NewEstimator(dict), nil
}

// Bus returns the event bus.
func (p *Pipeline) Bus() *bus.EventBus {
	return p.bus
}

// Cache returns the refinement cache.
func (p *Pipeline) Cache() *refine.Cache {
	return p.cache
}

// Estimator returns the phoneme estimator.
func (p *Pipeline) Estimator() *phoneme.Estimator {
	return p.estimator
}

// Config returns a copy of the configuration in effect.
func (p *Pipeline) Config() config.Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Apply swaps in reloaded tuning. Allocation changes affect utterances
// prepared afterwards; driver tuning also reaches utterances in flight.
func (p *Pipeline) Apply(cfg *config.Config) {
	p.mu.Lock()
	p.cfg.Allocator = cfg.Allocator
	p.cfg.Envelope = cfg.Envelope
	p.cfg.Playback.Driver = cfg.Playback.Driver
	p.cfg.Playback.FPS = cfg.Playback.FPS
	p.cfg.Refine.MinCoverage = cfg.Refine.MinCoverage
	p.allocator = timeline.NewAllocator(cfg.Allocator)
	active := make([]*Utterance, 0, len(p.active))
	for _, u := range p.active {
		active = append(active, u)
	}
	p.mu.Unlock()

	for _, u := range active {
		u.driver.SetParams(cfg.Playback.Driver)
	}
	p.log.Info().Int("active", len(active)).Msg("Configuration applied")
	p.bus.Publish(bus.Event{Type: bus.EventTypeConfigReloaded})
}

// Prepare estimates the timeline and envelope for text spoken as pcm, arms a
// driver and starts refinement in the background. ctx bounds the refinement
// only. Prepare fails only for audio without a usable sample rate.
func (p *Pipeline) Prepare(ctx context.Context, text string, pcm audio.PCM) (*Utterance, error) {
	if err := pcm.Validate(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	cfg := p.cfg
	alloc := p.allocator
	p.mu.RUnlock()

	id := uuid.NewString()
	log := p.log.With().Str("utterance", id).Logger()
	d := pcm.Duration()

	words := p.estimator.Analyze(text)
	tl := alloc.Allocate(words, d)
	env := audio.Extract(pcm.Samples, pcm.SampleRate, cfg.Envelope.FrameRate)

	u := &Utterance{
		ID:       id,
		Text:     text,
		pipeline: p,
		duration: d,
		envelope: env,
		fps:      cfg.Playback.FPS,
		arbiter: refine.NewArbiter(tl, d,
			refine.WithMinCoverage(cfg.Refine.MinCoverage),
			refine.WithLogger(log)),
		driver:  avatar3d.NewDriver(cfg.Playback.Driver, log),
		log:     log,
		stop:    make(chan struct{}),
		refined: make(chan struct{}),
	}
	if err := u.driver.Arm(); err != nil {
		return nil, fmt.Errorf("arm driver: %w", err)
	}

	p.mu.Lock()
	p.active[id] = u
	p.mu.Unlock()

	log.Info().
		Int("words", len(words)).
		Int("cues", tl.Len()).
		Float64("duration", d).
		Msg("Utterance prepared")
	p.sink.SendTimeline(id, tl, false)
	p.bus.Publish(bus.Event{Type: bus.EventTypeUtteranceArmed, Data: map[string]any{
		"id":       id,
		"duration": d,
		"cues":     tl.Len(),
	}})

	p.refine(ctx, u, refine.Request{PCM: pcm, Transcript: text})
	return u, nil
}

// refine applies a cached refinement at once or starts the refiner.
func (p *Pipeline) refine(ctx context.Context, u *Utterance, req refine.Request) {
	if p.refiner == nil {
		u.finishRefinement(refine.Decision{Reason: "refinement disabled", Timeline: u.Timeline()})
		return
	}

	key := refine.Key(req)
	if cues, ok := p.cache.Get(key); ok {
		u.log.Debug().Msg("Refinement cache hit")
		p.decided(u, key, u.arbiter.Offer(cues))
		return
	}

	p.bus.Publish(bus.Event{Type: bus.EventTypeRefineStarted, Data: map[string]any{"id": u.ID}})
	ch := u.arbiter.Run(ctx, p.refiner, req)
	go func() {
		p.decided(u, key, <-ch)
	}()
}

func (p *Pipeline) decided(u *Utterance, key string, d refine.Decision) {
	if d.Accepted {
		p.cache.Add(key, d.Timeline.Cues)
		p.sink.SendTimeline(u.ID, d.Timeline, true)
		p.bus.Publish(bus.Event{Type: bus.EventTypeRefineAccepted, Data: map[string]any{
			"id":       u.ID,
			"coverage": d.Coverage,
		}})
	} else {
		p.bus.Publish(bus.Event{Type: bus.EventTypeRefineRejected, Data: map[string]any{
			"id":       u.ID,
			"coverage": d.Coverage,
			"reason":   d.Reason,
		}})
	}
	u.finishRefinement(d)
}

func (p *Pipeline) release(id string) {
	p.mu.Lock()
	delete(p.active, id)
	p.mu.Unlock()
}

// Active returns the number of utterances not yet finished or stopped.
func (p *Pipeline) Active() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.active)
}

// Close stops every utterance in flight.
func (p *Pipeline) Close() {
	p.mu.RLock()
	active := make([]*Utterance, 0, len(p.active))
	for _, u := range p.active {
		active = append(active, u)
	}
	p.mu.RUnlock()

	for _, u := range active {
		u.Stop()
	}
}

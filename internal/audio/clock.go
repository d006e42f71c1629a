package audio

import (
	"math"
	"sync"
)

// Clock reports the playback position in seconds of audio actually played.
type Clock interface {
	Position() float64
}

// ManualClock is a Clock advanced explicitly, for offline rendering and tests.
type ManualClock struct {
	mu  sync.Mutex
	pos float64
}

// NewManualClock returns a clock at position 0.
func NewManualClock() *ManualClock {
	return &ManualClock{}
}

// Position implements Clock.
func (c *ManualClock) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos
}

// Set moves the clock to t. Negative or NaN values are clamped to 0.
func (c *ManualClock) Set(t float64) {
	if math.IsNaN(t) || t < 0 {
		t = 0
	}
	c.mu.Lock()
	c.pos = t
	c.mu.Unlock()
}

// Advance moves the clock forward by dt seconds.
func (c *ManualClock) Advance(dt float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if dt > 0 {
		c.pos += dt
	}
	return c.pos
}

package avatar3d

import (
	"math"
	"math/rand"
	"sync"
)

// IdleAnimator adds low-amplitude breathing and lip micro motion while the
// avatar is not speaking. Offsets are deterministic for a given seed.
type IdleAnimator struct {
	mu sync.RWMutex

	enabled   bool
	intensity float64
	time      float64

	breathingRate      float64
	breathingAmplitude float64

	microMovementRate      float64
	microMovementAmplitude float64

	noiseOffsets [4]float64
}

func NewIdleAnimator(seed int64) *IdleAnimator {
	ia := &IdleAnimator{
		enabled:                true,
		intensity:              1.0,
		breathingRate:          0.2,
		breathingAmplitude:     0.03,
		microMovementRate:      0.5,
		microMovementAmplitude: 0.02,
	}

	rng := rand.New(rand.NewSource(seed))
	for i := range ia.noiseOffsets {
		ia.noiseOffsets[i] = rng.Float64() * 100
	}

	return ia
}

func (ia *IdleAnimator) SetEnabled(enabled bool) {
	ia.mu.Lock()
	defer ia.mu.Unlock()
	ia.enabled = enabled
}

func (ia *IdleAnimator) SetIntensity(intensity float64) {
	ia.mu.Lock()
	defer ia.mu.Unlock()
	ia.intensity = clamp(intensity, 0, 1)
}

// Advance moves the idle clock forward without touching any weights, so
// motion stays continuous while speech suppresses it.
func (ia *IdleAnimator) Advance(dt float64) {
	ia.mu.Lock()
	defer ia.mu.Unlock()
	if dt > 0 {
		ia.time += dt
	}
}

// Apply adds the current idle offsets to weights.
func (ia *IdleAnimator) Apply(weights *Weights) {
	ia.mu.RLock()
	defer ia.mu.RUnlock()

	if !ia.enabled || ia.intensity <= 0 {
		return
	}

	ia.applyBreathing(weights)
	ia.applyMicroMovements(weights)
}

func (ia *IdleAnimator) applyBreathing(weights *Weights) {
	breathPhase := ia.time * ia.breathingRate * 2 * math.Pi
	breathValue := math.Sin(breathPhase)*0.5 + 0.5
	breathValue *= ia.breathingAmplitude * ia.intensity

	weights.Set(JawOpen, weights.Get(JawOpen)+breathValue*0.3)
}

func (ia *IdleAnimator) applyMicroMovements(weights *Weights) {
	amp := ia.microMovementAmplitude * ia.intensity

	pressNoise := ia.noise(ia.time*ia.microMovementRate*0.7, ia.noiseOffsets[0])
	weights.Set(MouthPress, weights.Get(MouthPress)+math.Max(pressNoise, 0)*amp*0.5)

	smileNoise := ia.noise(ia.time*ia.microMovementRate*0.5, ia.noiseOffsets[1])
	weights.Set(MouthSmile, weights.Get(MouthSmile)+math.Max(smileNoise, 0)*amp*0.3)

	rollNoise := ia.noise(ia.time*ia.microMovementRate*0.3, ia.noiseOffsets[2])
	weights.Set(MouthRollLower, weights.Get(MouthRollLower)+math.Max(rollNoise, 0)*amp*0.2)
}

// noise is a cheap smooth pseudo noise in [-1,1].
func (ia *IdleAnimator) noise(t, offset float64) float64 {
	t += offset

	n1 := math.Sin(t * 1.0)
	n2 := math.Sin(t*2.3+1.7) * 0.5
	n3 := math.Sin(t*4.1+3.2) * 0.25

	return (n1 + n2 + n3) / 1.75
}

func (ia *IdleAnimator) Reset() {
	ia.mu.Lock()
	defer ia.mu.Unlock()
	ia.time = 0
}

func (ia *IdleAnimator) Time() float64 {
	ia.mu.RLock()
	defer ia.mu.RUnlock()
	return ia.time
}

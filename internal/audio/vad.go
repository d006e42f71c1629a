package audio

import (
	"math"
	"sync"
)

// VAD is an energy gate over envelope levels. It is driven by the playback
// clock rather than wall time, so the same audio always gates the same way.
type VAD struct {
	config *VADConfig
	mu     sync.Mutex

	// State
	isActive bool
	silence  float64 // seconds of sub-threshold energy since last speech

	// Smoothing
	history []float64
	index   int
}

// VADConfig holds VAD configuration
type VADConfig struct {
	Threshold       float64 `mapstructure:"threshold" json:"threshold"`               // Envelope level (0-1), default 0.07
	SmoothingFrames int     `mapstructure:"smoothing_frames" json:"smoothing_frames"` // Number of frames to smooth, default 3
	HangoverMs      int     `mapstructure:"hangover_ms" json:"hangover_ms"`           // Silence tolerated inside speech, default 120
}

// DefaultVADConfig returns sensible defaults
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		Threshold:       0.07,
		SmoothingFrames: 3,
		HangoverMs:      120,
	}
}

// NewVAD creates a new VAD instance
func NewVAD(config *VADConfig) *VAD {
	if config == nil {
		config = DefaultVADConfig()
	}
	if config.SmoothingFrames < 1 {
		config.SmoothingFrames = 1
	}

	return &VAD{
		config:  config,
		history: make([]float64, config.SmoothingFrames),
	}
}

// Process feeds one envelope level observed dt seconds after the previous one.
func (v *VAD) Process(level, dt float64) VADResult {
	v.mu.Lock()
	defer v.mu.Unlock()

	if math.IsNaN(level) || level < 0 {
		level = 0
	}
	v.history[v.index] = level
	v.index = (v.index + 1) % len(v.history)

	smoothed := 0.0
	for _, e := range v.history {
		smoothed += e
	}
	smoothed /= float64(len(v.history))

	isSpeech := smoothed >= v.config.Threshold
	if isSpeech {
		v.isActive = true
		v.silence = 0
	} else if v.isActive {
		v.silence += dt
		if v.silence*1000 > float64(v.config.HangoverMs) {
			v.isActive = false
		} else {
			// still inside the speech segment
			isSpeech = true
		}
	}

	// confidence grows with the distance from the threshold
	var confidence float64
	if isSpeech {
		confidence = math.Min(1.0, 0.5+(smoothed-v.config.Threshold)*2)
	} else {
		confidence = math.Max(0.0, 0.5-(v.config.Threshold-smoothed)*5)
	}

	return VADResult{
		IsSpeech:   isSpeech,
		Confidence: confidence,
		Level:      smoothed,
	}
}

// SetThreshold retunes the gate; smoothing history is kept.
func (v *VAD) SetThreshold(threshold float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.config.Threshold = threshold
}

// IsActive returns whether speech is currently detected
func (v *VAD) IsActive() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.isActive
}

// Reset clears VAD state
func (v *VAD) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.isActive = false
	v.silence = 0
	v.index = 0
	for i := range v.history {
		v.history[i] = 0
	}
}

package utterance

import (
	"github.com/avneetpandey82/Lip-Sync/internal/avatar3d"
	"github.com/avneetpandey82/Lip-Sync/internal/viseme"
)

// Frame is what the renderer receives every tick.
type Frame struct {
	Utterance string           `json:"utterance"`
	Time      float64          `json:"t"`
	State     avatar3d.State   `json:"state"`
	Viseme    viseme.Viseme    `json:"viseme"`
	Weights   avatar3d.Weights `json:"-"`
}

// FrameSink consumes rendered output. Implementations must not block; the
// tick loop calls them inline.
type FrameSink interface {
	SendFrame(f Frame)
	SendTimeline(utterance string, tl viseme.Timeline, refined bool)
}

type nopSink struct{}

func (nopSink) SendFrame(Frame) {}
func (nopSink) SendTimeline(string, viseme.Timeline, bool) {}

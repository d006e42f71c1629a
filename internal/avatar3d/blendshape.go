// Package avatar3d turns a viseme timeline and an amplitude envelope into
// per-frame mouth blendshape weights for a 3D renderer.
package avatar3d

import "math"

// Shape indexes a mouth blendshape channel.
type Shape int

const (
	JawOpen Shape = iota
	MouthClose
	MouthPress
	MouthFunnel
	MouthPucker
	MouthSpread
	MouthSmile
	MouthRollLower
	MouthUpperUp
	TongueOut
	ShapeCount
)

// ShapeNames are the renderer-facing channel names.
var ShapeNames = [ShapeCount]string{
	"jawOpen",
	"mouthClose",
	"mouthPress",
	"mouthFunnel",
	"mouthPucker",
	"mouthSpread",
	"mouthSmile",
	"mouthRollLower",
	"mouthUpperUp",
	"tongueOut",
}

func (s Shape) String() string {
	if s < 0 || s >= ShapeCount {
		return "unknown"
	}
	return ShapeNames[s]
}

// ShapeFromName returns the channel for a renderer name, or -1.
func ShapeFromName(name string) Shape {
	for i, n := range ShapeNames {
		if n == name {
			return Shape(i)
		}
	}
	return -1
}

// Weights holds one value in [0,1] per channel.
type Weights [ShapeCount]float64

func (w *Weights) Set(s Shape, value float64) {
	w[s] = clamp(value, 0, 1)
}

func (w *Weights) Get(s Shape) float64 {
	return w[s]
}

func (w *Weights) Reset() {
	for i := range w {
		w[i] = 0
	}
}

// Add returns w + other, clamped.
func (w *Weights) Add(other *Weights) Weights {
	var result Weights
	for i := range w {
		result[i] = clamp(w[i]+other[i], 0, 1)
	}
	return result
}

// Scale returns w * factor, clamped.
func (w *Weights) Scale(factor float64) Weights {
	var result Weights
	for i := range w {
		result[i] = clamp(w[i]*factor, 0, 1)
	}
	return result
}

// Map returns the weights keyed by channel name.
func (w *Weights) Map() map[string]float64 {
	m := make(map[string]float64, ShapeCount)
	for i, v := range w {
		m[ShapeNames[i]] = v
	}
	return m
}

// IsRest reports whether every channel is below eps.
func (w *Weights) IsRest(eps float64) bool {
	for _, v := range w {
		if v > eps {
			return false
		}
	}
	return true
}

func clamp(v, min, max float64) float64 {
	if math.IsNaN(v) || v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

package avatar3d

import (
	"github.com/avneetpandey82/Lip-Sync/internal/viseme"
)

type shapeMapping struct {
	Shape  Shape
	Weight float64
}

var visemeToShapes = [viseme.Count][]shapeMapping{
	viseme.Rest:        {},
	viseme.Closed:      {{MouthClose, 0.7}, {MouthPress, 0.5}},
	viseme.Clenched:    {{JawOpen, 0.12}, {MouthSpread, 0.45}, {MouthSmile, 0.15}},
	viseme.Open:        {{JawOpen, 0.55}, {MouthSpread, 0.2}, {MouthUpperUp, 0.1}},
	viseme.WideOpen:    {{JawOpen, 1.0}, {MouthSpread, 0.15}, {MouthSmile, 0.1}, {MouthUpperUp, 0.15}},
	viseme.Rounded:     {{JawOpen, 0.45}, {MouthFunnel, 0.5}, {MouthPucker, 0.2}},
	viseme.Puckered:    {{JawOpen, 0.15}, {MouthPucker, 0.75}, {MouthFunnel, 0.35}},
	viseme.Labiodental: {{JawOpen, 0.05}, {MouthRollLower, 0.6}, {MouthUpperUp, 0.2}},
	viseme.Tongue:      {{JawOpen, 0.3}, {TongueOut, 0.35}, {MouthSpread, 0.1}},
}

// visemeWeights is visemeToShapes expanded once into dense weight arrays.
var visemeWeights = func() [viseme.Count]Weights {
	var out [viseme.Count]Weights
	for v, mappings := range visemeToShapes {
		for _, m := range mappings {
			out[v].Set(m.Shape, m.Weight)
		}
	}
	return out
}()

// ShapesFor returns the fixed weights of a viseme. Unknown visemes map to
// the rest pose.
func ShapesFor(v viseme.Viseme) Weights {
	if !v.Valid() {
		return Weights{}
	}
	return visemeWeights[v]
}

// isConsonant reports the visemes that stand for consonants only.
func isConsonant(v viseme.Viseme) bool {
	switch v {
	case viseme.Closed, viseme.Clenched, viseme.Labiodental, viseme.Tongue:
		return true
	}
	return false
}

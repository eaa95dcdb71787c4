package render

import "math"

// Mode is how a node is drawn in a frame.
type Mode int

const (
	Simple Mode = iota
	Transition
	Detailed
)

func (m Mode) String() string {
	switch m {
	case Detailed:
		return "detailed"
	case Transition:
		return "transition"
	default:
		return "simple"
	}
}

// LOD holds the level-of-detail thresholds.
type LOD struct {
	// LowCount is the node count below which every node is detailed.
	LowCount int
	// LowZoom and HighZoom bound the cross-fade at LowCount nodes.
	LowZoom  float64
	HighZoom float64
	// Padding widens the viewport, in pixels, for the membership test.
	Padding float64
}

// DefaultLOD returns the stock thresholds.
func DefaultLOD() LOD {
	return LOD{LowCount: 20, LowZoom: 0.5, HighZoom: 1.0, Padding: 120}
}

// Thresholds returns the zoom thresholds for a graph of n nodes. Both grow
// with the node count so dense graphs stay cheap to draw.
func (l LOD) Thresholds(n int) (low, high float64) {
	low, high = l.LowZoom, l.HighZoom
	if n <= l.LowCount || l.LowCount <= 0 {
		return low, high
	}
	f := 1 + 0.25*math.Log2(float64(n)/float64(l.LowCount))
	return low * f, high * f
}

// Decide picks the mode for one node and the opacity of its detailed
// rendering. Between the thresholds the opacity is the square of the
// normalized zoom so the simple glyph dominates longer.
func (l LOD) Decide(scale float64, n int, inViewport bool) (Mode, float64) {
	if n < l.LowCount {
		return Detailed, 1
	}
	if !inViewport {
		return Simple, 0
	}
	low, high := l.Thresholds(n)
	switch {
	case scale >= high:
		return Detailed, 1
	case scale <= low:
		return Simple, 0
	}
	t := (scale - low) / (high - low)
	return Transition, t * t
}

package render

import (
	"math"

	"github.com/msalah0e/graphlens/internal/layout"
)

const (
	MinScale = 0.1
	MaxScale = 5.0
)

// Viewport maps graph space to screen pixels: screen = graph*Scale + T.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Scale  float64 `json:"scale"`
	TX     float64 `json:"tx"`
	TY     float64 `json:"ty"`
}

// NewViewport returns an unzoomed viewport whose graph origin is at the
// top-left corner.
func NewViewport(w, h float64) Viewport {
	return Viewport{Width: w, Height: h, Scale: 1}
}

// ToGraph converts screen coordinates to graph space.
func (v Viewport) ToGraph(sx, sy float64) layout.Point {
	s := v.scale()
	return layout.Point{X: (sx - v.TX) / s, Y: (sy - v.TY) / s}
}

// ToScreen converts a graph-space point to screen coordinates.
func (v Viewport) ToScreen(p layout.Point) (float64, float64) {
	s := v.scale()
	return p.X*s + v.TX, p.Y*s + v.TY
}

// Contains reports whether a graph-space point falls on screen, widened by
// padding pixels on every side.
func (v Viewport) Contains(p layout.Point, padding float64) bool {
	x, y := v.ToScreen(p)
	return x >= -padding && x <= v.Width+padding && y >= -padding && y <= v.Height+padding
}

// Center is the graph-space point under the middle of the screen.
func (v Viewport) Center() layout.Point {
	return v.ToGraph(v.Width/2, v.Height/2)
}

// ZoomAt multiplies the scale by factor keeping the graph point under the
// screen position (sx, sy) fixed.
func (v Viewport) ZoomAt(sx, sy, factor float64) Viewport {
	anchor := v.ToGraph(sx, sy)
	v.Scale = clampScale(v.scale() * factor)
	v.TX = sx - anchor.X*v.Scale
	v.TY = sy - anchor.Y*v.Scale
	return v
}

// Pan shifts the view by screen pixels.
func (v Viewport) Pan(dx, dy float64) Viewport {
	v.TX += dx
	v.TY += dy
	return v
}

// CenteredOn returns the viewport at scale with p in the middle of the screen.
func (v Viewport) CenteredOn(p layout.Point, scale float64) Viewport {
	v.Scale = clampScale(scale)
	v.TX = v.Width/2 - p.X*v.Scale
	v.TY = v.Height/2 - p.Y*v.Scale
	return v
}

// Resize changes the screen size keeping the center point fixed.
func (v Viewport) Resize(w, h float64) Viewport {
	c := v.Center()
	v.Width, v.Height = w, h
	return v.CenteredOn(c, v.scale())
}

func (v Viewport) scale() float64 {
	if v.Scale <= 0 {
		return 1
	}
	return v.Scale
}

func clampScale(s float64) float64 {
	if math.IsNaN(s) || s <= 0 {
		return 1
	}
	return math.Max(MinScale, math.Min(MaxScale, s))
}

package render

import (
	"math"

	"github.com/msalah0e/graphlens/internal/layout"
)

// FocusScale is the zoom a camera recenter on a focused node animates to.
const FocusScale = 1.5

// Camera eases the viewport toward a target over a fixed number of frames.
type Camera struct {
	View   Viewport
	target *Viewport
	frames int
}

// NewCamera starts at v.
func NewCamera(v Viewport) *Camera {
	return &Camera{View: v}
}

// AnimateTo eases the view so that p is centered at scale.
func (c *Camera) AnimateTo(p layout.Point, scale float64, frames int) {
	t := c.View.CenteredOn(p, scale)
	if frames < 1 {
		c.View = t
		c.target = nil
		return
	}
	c.target = &t
	c.frames = frames
}

// Set jumps to v, cancelling any animation.
func (c *Camera) Set(v Viewport) {
	c.View = v
	c.target = nil
}

// Animating reports whether a transition is in progress.
func (c *Camera) Animating() bool { return c.target != nil }

// Step advances the animation one frame.
func (c *Camera) Step() bool {
	if c.target == nil {
		return false
	}
	if c.frames <= 1 {
		c.View = *c.target
		c.target = nil
		return true
	}
	// Cover 1/frames of the remaining distance, easing out.
	k := 1 / float64(c.frames)
	k = 1 - math.Pow(1-k, 2)
	c.View.Scale += (c.target.Scale - c.View.Scale) * k
	c.View.TX += (c.target.TX - c.View.TX) * k
	c.View.TY += (c.target.TY - c.View.TY) * k
	c.frames--
	return true
}

package layout

import "math"

// Params are the force constants of one simulation tick.
type Params struct {
	// Repulsion is the charge between every pair of bodies.
	Repulsion float64
	// LinkDistance is the spring rest length.
	LinkDistance float64
	// LinkStrength is the spring constant.
	LinkStrength float64
	// Damping multiplies velocities each tick.
	Damping float64
	// Gravity pulls bodies toward the center.
	Gravity float64
	// AlphaDecay is how fast the simulation cools toward rest.
	AlphaDecay float64
}

var base = map[State]Params{
	Initial:   {Repulsion: 800, LinkDistance: 160, LinkStrength: 0.004, Damping: 0.85, Gravity: 0.001, AlphaDecay: 0.02},
	Connected: {Repulsion: 1200, LinkDistance: 110, LinkStrength: 0.008, Damping: 0.85, Gravity: 0.0015, AlphaDecay: 0.0228},
	Focused:   {Repulsion: 600, LinkDistance: 70, LinkStrength: 0.012, Damping: 0.7, Gravity: 0.002, AlphaDecay: 0.05},
}

// ParamsFor derives the forces for a state and graph size. Dragging keeps
// the springs of the state it is layered on and nearly switches off
// repulsion. Settled parameters are the relaxed pass scheduled after
// placement.
func ParamsFor(s, prior State, n int, settled bool) Params {
	src := s
	if s == Dragging {
		src = prior
	}
	p, ok := base[src]
	if !ok {
		p = base[Initial]
	}

	// Denser graphs need more room.
	scale := 1 + math.Log1p(float64(max(n, 0))/50)
	p.Repulsion *= scale
	p.LinkDistance *= math.Min(scale, 1.6)

	if s == Dragging {
		p.Repulsion *= 0.05
		p.Damping = 0.6
	}
	if settled && s != Dragging {
		p.Repulsion *= 0.6
		p.LinkStrength *= 0.5
		p.Damping *= 0.9
		p.AlphaDecay *= 2
	}
	return p
}

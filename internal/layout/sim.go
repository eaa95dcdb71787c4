package layout

import (
	"hash/fnv"
	"math"

	"github.com/msalah0e/graphlens/internal/graph"
)

// Point is a position in graph space.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Body is one simulated node. FX and FY pin it while set.
type Body struct {
	X, Y   float64
	VX, VY float64
	FX, FY *float64
}

// Pinned reports whether the body is held in place.
func (b *Body) Pinned() bool { return b.FX != nil && b.FY != nil }

const (
	alphaMin     = 0.001
	minSeedDist  = 24.0
	growthSpread = 80.0
	maxSpeed     = 40.0
)

// Simulation is a force-directed layout over the current view. Bodies of
// nodes that leave the view keep their position until Reset so they reappear
// where they were.
type Simulation struct {
	bodies map[string]*Body
	active []string
	links  [][2]string
	alpha  float64
}

// NewSimulation returns an empty, cold simulation.
func NewSimulation() *Simulation {
	return &Simulation{bodies: make(map[string]*Body)}
}

// Sync makes the view's nodes and relationships the simulated set. New
// nodes are seeded at a position derived from their id: spread around
// center on the first load, close to center when the graph grows. The
// simulation is reheated when anything was added.
func (s *Simulation) Sync(v graph.View, center Point) int {
	first := len(s.bodies) == 0
	spread := 60 + 40*math.Sqrt(float64(len(v.Nodes)))

	added := 0
	s.active = s.active[:0]
	for _, n := range v.Nodes {
		s.active = append(s.active, n.ID)
		if _, ok := s.bodies[n.ID]; ok {
			continue
		}
		var p Point
		if first {
			p = seed(n.ID, center, minSeedDist, spread)
		} else {
			p = seed(n.ID, center, minSeedDist, growthSpread)
		}
		s.bodies[n.ID] = &Body{X: p.X, Y: p.Y}
		added++
	}

	s.links = s.links[:0]
	for _, r := range v.Relationships {
		s.links = append(s.links, [2]string{r.From, r.To})
	}
	if added > 0 {
		s.Reheat(1)
	}
	return added
}

// seed places id at a deterministic angle and distance from center. The
// distance is at least lo so no two seeds land exactly on the center.
func seed(id string, center Point, lo, hi float64) Point {
	h := fnv.New64a()
	h.Write([]byte(id))
	sum := h.Sum64()
	angle := float64(sum&0xffff) / 0xffff * 2 * math.Pi
	frac := float64((sum>>16)&0xffff) / 0xffff
	r := lo + frac*(hi-lo)
	p := Point{X: center.X + r*math.Cos(angle), Y: center.Y + r*math.Sin(angle)}
	if p.X == 0 && p.Y == 0 {
		p.X = lo
	}
	return p
}

// Reheat raises the temperature to at least alpha.
func (s *Simulation) Reheat(alpha float64) {
	if alpha > s.alpha {
		s.alpha = alpha
	}
}

// Alpha is the current temperature.
func (s *Simulation) Alpha() float64 { return s.alpha }

// Stable reports whether the simulation has cooled down.
func (s *Simulation) Stable() bool { return s.alpha < alphaMin }

// Tick advances the simulation one step and reports whether it moved.
func (s *Simulation) Tick(p Params, center Point) bool {
	if s.Stable() || len(s.active) == 0 {
		return false
	}
	a := s.alpha
	nodes := make([]*Body, len(s.active))
	for i, id := range s.active {
		nodes[i] = s.bodies[id]
	}

	for _, n := range nodes {
		n.VX += (center.X - n.X) * p.Gravity * a
		n.VY += (center.Y - n.Y) * p.Gravity * a
	}
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			dx := nodes[j].X - nodes[i].X
			dy := nodes[j].Y - nodes[i].Y
			d2 := dx*dx + dy*dy
			if d2 < 1 {
				d2 = 1
			}
			f := p.Repulsion / d2 * a
			fx, fy := dx*f, dy*f
			nodes[i].VX -= fx
			nodes[i].VY -= fy
			nodes[j].VX += fx
			nodes[j].VY += fy
		}
	}
	for _, l := range s.links {
		from, to := s.bodies[l[0]], s.bodies[l[1]]
		if from == nil || to == nil || from == to {
			continue
		}
		dx := to.X - from.X
		dy := to.Y - from.Y
		d := math.Sqrt(dx*dx + dy*dy)
		if d == 0 {
			d = 1
		}
		f := (d - p.LinkDistance) * p.LinkStrength * a
		from.VX += dx / d * f
		from.VY += dy / d * f
		to.VX -= dx / d * f
		to.VY -= dy / d * f
	}
	for _, n := range nodes {
		if n.Pinned() {
			n.X, n.Y = *n.FX, *n.FY
			n.VX, n.VY = 0, 0
			continue
		}
		n.VX = clamp(n.VX*p.Damping, maxSpeed)
		n.VY = clamp(n.VY*p.Damping, maxSpeed)
		n.X += n.VX
		n.Y += n.VY
	}

	s.alpha += (0 - s.alpha) * p.AlphaDecay
	return true
}

func clamp(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}

// Position returns a body's position.
func (s *Simulation) Position(id string) (Point, bool) {
	b, ok := s.bodies[id]
	if !ok {
		return Point{}, false
	}
	return Point{X: b.X, Y: b.Y}, true
}

// Body returns the simulated body for id.
func (s *Simulation) Body(id string) (*Body, bool) {
	b, ok := s.bodies[id]
	return b, ok
}

// Pin holds a body at (x, y).
func (s *Simulation) Pin(id string, x, y float64) bool {
	b, ok := s.bodies[id]
	if !ok {
		return false
	}
	b.FX, b.FY = &x, &y
	b.X, b.Y = x, y
	b.VX, b.VY = 0, 0
	return true
}

// Unpin releases a body.
func (s *Simulation) Unpin(id string) {
	if b, ok := s.bodies[id]; ok {
		b.FX, b.FY = nil, nil
	}
}

// Reset forgets every body.
func (s *Simulation) Reset() {
	s.bodies = make(map[string]*Body)
	s.active = nil
	s.links = nil
	s.alpha = 0
}

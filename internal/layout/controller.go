// Package layout positions the graph with a force simulation whose
// parameters follow an explicit interaction state machine.
package layout

import (
	"log/slog"
	"sync"
	"time"

	"github.com/msalah0e/graphlens/internal/graph"
)

// DefaultSettleDelay is how long after placement the relaxed forces apply.
const DefaultSettleDelay = 1500 * time.Millisecond

// Timer is the part of *time.Timer the controller needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Controller owns the simulation and its state machine. It is safe for use
// by the frame loop and by the settle timer concurrently.
type Controller struct {
	mu         sync.Mutex
	machine    Machine
	sim        *Simulation
	center     Point
	nodes      int
	settled    bool
	stickyDrop bool

	settleDelay time.Duration
	afterFunc   AfterFunc
	timer       Timer
	generation  uint64

	logger *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithSettleDelay sets the delay before the relaxed pass.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Controller) { c.settleDelay = d }
}

// WithAfterFunc replaces the timer used for the settle pass.
func WithAfterFunc(f AfterFunc) Option {
	return func(c *Controller) { c.afterFunc = f }
}

// WithStickyDrop keeps dragged nodes pinned where they are dropped.
func WithStickyDrop(on bool) Option {
	return func(c *Controller) { c.stickyDrop = on }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController creates a controller in the Initial state.
func NewController(opts ...Option) *Controller {
	c := &Controller{
		sim:         NewSimulation(),
		settleDelay: DefaultSettleDelay,
		afterFunc:   stdAfterFunc,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.State()
}

// Settled reports whether the relaxed pass is active.
func (c *Controller) Settled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settled
}

// Params returns the forces in effect.
func (c *Controller) Params() Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params()
}

func (c *Controller) params() Params {
	return ParamsFor(c.machine.State(), c.machine.Prior(), c.nodes, c.settled)
}

// Fire applies an event. Every event except the drag pair restarts the
// settle timer: the relaxed pass begins once the new placement has had
// time to stabilize.
func (c *Controller) Fire(ev Event) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fire(ev)
}

func (c *Controller) fire(ev Event) State {
	from := c.machine.State()
	to, changed := c.machine.Fire(ev)
	if changed {
		c.logger.Debug("layout state", "event", ev, "from", from, "to", to)
	}
	switch ev {
	case DragStart, DragEnd:
		c.sim.Reheat(0.3)
	case Reset:
		c.stopTimer()
		c.settled = false
		c.sim.Reset()
	default:
		c.settled = false
		c.sim.Reheat(0.5)
		c.scheduleSettle()
	}
	return to
}

func (c *Controller) scheduleSettle() {
	c.stopTimer()
	c.generation++
	gen := c.generation
	c.timer = c.afterFunc(c.settleDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.generation {
			return
		}
		c.settled = true
		c.timer = nil
		c.logger.Debug("layout settled", "state", c.machine.State(), "alpha", c.sim.Alpha())
	})
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.generation++
}

// Sync lays out the view around center, seeding nodes that have no
// position yet. It returns the number of seeded nodes.
func (c *Controller) Sync(v graph.View, center Point) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.center = center
	c.nodes = len(v.Nodes)
	return c.sim.Sync(v, center)
}

// Tick advances the simulation one step and reports whether anything moved.
func (c *Controller) Tick() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sim.Tick(c.params(), c.center)
}

// Position returns the live position of a node.
func (c *Controller) Position(id string) (Point, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sim.Position(id)
}

// Pinned reports whether a node is held in place.
func (c *Controller) Pinned(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.sim.Body(id)
	return ok && b.Pinned()
}

// BeginDrag pins a node at its current position and enters Dragging.
func (c *Controller) BeginDrag(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.sim.Position(id)
	if !ok {
		return false
	}
	c.sim.Pin(id, p.X, p.Y)
	c.fire(DragStart)
	return true
}

// DragTo moves a pinned node.
func (c *Controller) DragTo(id string, p Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sim.Pin(id, p.X, p.Y)
	c.sim.Reheat(0.3)
}

// EndDrag releases the node, unless drops are sticky, and reverts to the
// state the drag was layered on.
func (c *Controller) EndDrag(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.stickyDrop {
		c.sim.Unpin(id)
	}
	c.fire(DragEnd)
}

// Stop cancels a pending settle timer.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimer()
}

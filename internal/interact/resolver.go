// Package interact turns pointer input into semantic actions using the hit
// geometry of the last rendered frame.
package interact

import (
	"math"

	"github.com/msalah0e/graphlens/internal/layout"
	"github.com/msalah0e/graphlens/internal/render"
)

// Action is the semantic result of a pointer gesture.
type Action int

const (
	None Action = iota
	ToggleFields
	ExpandConnections
	FocusNode
	ClearFocus
	DragNode
	PanView
)

func (a Action) String() string {
	return [...]string{"none", "toggle_fields", "expand_connections", "focus", "clear_focus", "drag", "pan"}[a]
}

// Outcome is what a gesture did. ID names the node involved, if any.
type Outcome struct {
	Action Action
	ID     string
}

// HitTester finds the node drawn under a graph-space point.
type HitTester interface {
	HitTest(p layout.Point) (string, render.RenderCache, bool)
}

// Layout is the part of the layout controller gestures drive.
type Layout interface {
	Fire(ev layout.Event) layout.State
	BeginDrag(id string) bool
	DragTo(id string, p layout.Point)
	EndDrag(id string)
}

const (
	// DefaultDragThreshold is how far, in screen pixels, the pointer must
	// travel while pressed before a press becomes a drag.
	DefaultDragThreshold = 4.0
	recenterFrames       = 20
)

type press struct {
	id       string
	sx, sy   float64
	lastX    float64
	lastY    float64
	dragging bool
}

// Resolver maps pointer events to actions. It is not safe for concurrent
// use; the session loop owns it.
type Resolver struct {
	hits      HitTester
	layout    Layout
	camera    *render.Camera
	state     *ViewState
	threshold float64

	press *press
}

// NewResolver wires a resolver to the renderer's hit geometry, the layout
// controller, the camera and the view state.
func NewResolver(hits HitTester, l Layout, cam *render.Camera, state *ViewState) *Resolver {
	return &Resolver{hits: hits, layout: l, camera: cam, state: state, threshold: DefaultDragThreshold}
}

// SetDragThreshold overrides the click/drag distance.
func (r *Resolver) SetDragThreshold(px float64) { r.threshold = px }

// Click resolves a click at screen coordinates. In order: a hit on the
// card's more/less toggle flips the expanded flag; a hit on the
// expand-connections region asks for a single-node expand; any other hit on
// a node focuses it and recenters the camera; a click on the background
// clears the focus. Neither of the first two changes focus or camera.
func (r *Resolver) Click(sx, sy float64) Outcome {
	p := r.camera.View.ToGraph(sx, sy)
	id, c, ok := r.hits.HitTest(p)
	if !ok {
		if r.state.Focus == "" {
			return Outcome{Action: None}
		}
		r.state.Focus = ""
		r.layout.Fire(layout.Unfocus)
		return Outcome{Action: ClearFocus}
	}

	dx, dy := p.X-c.Center.X, p.Y-c.Center.Y
	if c.More != nil && c.More.Contains(dx, dy) {
		r.state.Toggle(id)
		return Outcome{Action: ToggleFields, ID: id}
	}
	if c.Expand != nil && c.Expand.Contains(dx, dy) {
		return Outcome{Action: ExpandConnections, ID: id}
	}

	r.state.Focus = id
	r.layout.Fire(layout.Focus)
	r.camera.AnimateTo(c.Center, render.FocusScale, recenterFrames)
	return Outcome{Action: FocusNode, ID: id}
}

// PointerDown starts a gesture. The node under the pointer, if any, becomes
// the drag candidate; otherwise the gesture pans.
func (r *Resolver) PointerDown(sx, sy float64) {
	id, _, _ := r.hits.HitTest(r.camera.View.ToGraph(sx, sy))
	r.press = &press{id: id, sx: sx, sy: sy, lastX: sx, lastY: sy}
}

// PointerMove updates hover, and drags or pans once the pointer has moved
// past the threshold while pressed.
func (r *Resolver) PointerMove(sx, sy float64) Outcome {
	p := r.camera.View.ToGraph(sx, sy)
	if r.press == nil {
		id, _, _ := r.hits.HitTest(p)
		r.state.Hover = id
		return Outcome{Action: None, ID: id}
	}

	pr := r.press
	if !pr.dragging && math.Hypot(sx-pr.sx, sy-pr.sy) <= r.threshold {
		return Outcome{Action: None}
	}
	if !pr.dragging {
		pr.dragging = true
		if pr.id != "" && !r.layout.BeginDrag(pr.id) {
			pr.id = ""
		}
	}

	if pr.id == "" {
		r.camera.Set(r.camera.View.Pan(sx-pr.lastX, sy-pr.lastY))
		pr.lastX, pr.lastY = sx, sy
		return Outcome{Action: PanView}
	}
	r.layout.DragTo(pr.id, p)
	pr.lastX, pr.lastY = sx, sy
	return Outcome{Action: DragNode, ID: pr.id}
}

// PointerUp ends a gesture. A press that never moved past the threshold is
// resolved as a click.
func (r *Resolver) PointerUp(sx, sy float64) Outcome {
	pr := r.press
	r.press = nil
	if pr == nil || !pr.dragging {
		return r.Click(sx, sy)
	}
	if pr.id != "" {
		r.layout.EndDrag(pr.id)
		return Outcome{Action: DragNode, ID: pr.id}
	}
	return Outcome{Action: PanView}
}

// Cancel abandons a gesture in progress, releasing a dragged node.
func (r *Resolver) Cancel() {
	if r.press != nil && r.press.dragging && r.press.id != "" {
		r.layout.EndDrag(r.press.id)
	}
	r.press = nil
}

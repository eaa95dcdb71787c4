// Package render draws the laid-out graph at a level of detail chosen per
// node from zoom, viewport membership and graph size, and keeps the hit
// geometry of what it drew.
package render

import (
	"math"

	"github.com/msalah0e/graphlens/internal/graph"
	"github.com/msalah0e/graphlens/internal/layout"
)

// Shape is the hit-test shape of a drawn node.
type Shape int

const (
	ShapeCircle Shape = iota
	ShapeRect
)

func (s Shape) String() string {
	if s == ShapeRect {
		return "rect"
	}
	return "circle"
}

// RenderCache is the geometry a node was drawn with in the last frame.
// More and Expand are the toggle and expand-connections regions relative
// to the node center; nil when not drawn.
type RenderCache struct {
	Center  layout.Point
	Mode    Mode
	Opacity float64
	Shape   Shape
	Radius  float64
	Width   float64
	Height  float64
	More    *Bounds
	Expand  *Bounds
}

// Hit reports whether the graph-space point p lies on the node.
func (c RenderCache) Hit(p layout.Point) bool {
	dx, dy := p.X-c.Center.X, p.Y-c.Center.Y
	if c.Shape == ShapeRect {
		return math.Abs(dx) <= c.Width/2 && math.Abs(dy) <= c.Height/2
	}
	r := c.Radius + hitSlop
	return dx*dx+dy*dy <= r*r
}

// Positioner supplies live node positions.
type Positioner interface {
	Position(id string) (layout.Point, bool)
}

// Scene is everything one frame depends on.
type Scene struct {
	View      graph.View
	Positions Positioner
	Viewport  Viewport
	Hover     string
	Expanded  map[string]bool
}

// Stats counts what a frame drew.
type Stats struct {
	Nodes      int `json:"nodes"`
	Edges      int `json:"edges"`
	Detailed   int `json:"detailed"`
	Transition int `json:"transition"`
	Simple     int `json:"simple"`
}

// Renderer draws frames and owns the hit-geometry side table.
type Renderer struct {
	lod        LOD
	maxFields  int
	withExpand bool

	cache map[string]RenderCache
	// order is the draw order of the last frame; later entries are on top.
	order []string
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLOD sets the level-of-detail thresholds.
func WithLOD(l LOD) Option {
	return func(r *Renderer) { r.lod = l }
}

// WithMaxFields sets how many properties a collapsed card shows.
func WithMaxFields(n int) Option {
	return func(r *Renderer) { r.maxFields = n }
}

// WithExpandAffordance toggles the expand-connections row on cards.
func WithExpandAffordance(on bool) Option {
	return func(r *Renderer) { r.withExpand = on }
}

// New creates a renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		lod:        DefaultLOD(),
		maxFields:  5,
		withExpand: true,
		cache:      make(map[string]RenderCache),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LOD returns the thresholds in use.
func (r *Renderer) LOD() LOD { return r.lod }

type placed struct {
	e     graph.Entity
	cache RenderCache
	card  *card
}

// Render draws one frame and replaces the hit geometry with what it drew.
// Nodes without a position are skipped.
func (r *Renderer) Render(c Canvas, s Scene) Stats {
	var st Stats
	n := len(s.View.Nodes)
	nodes := make([]placed, 0, n)
	index := make(map[string]int, n)

	for _, e := range s.View.Nodes {
		p, ok := s.Positions.Position(e.ID)
		if !ok {
			continue
		}
		inView := s.Viewport.Contains(p, r.lod.Padding)
		mode, opacity := r.lod.Decide(s.Viewport.Scale, n, inView)
		pl := placed{e: e, cache: RenderCache{Center: p, Mode: mode, Opacity: opacity}}

		if mode != Simple {
			cd := layoutCard(e, r.maxFields, s.Expanded[e.ID], r.withExpand)
			pl.card = &cd
		}
		radius := SimpleRadius
		if s.Hover == e.ID {
			radius = HoverRadius
		}
		// The hit shape follows the dominant glyph.
		if pl.card != nil && opacity >= 0.5 {
			pl.cache.Shape = ShapeRect
			pl.cache.Width, pl.cache.Height = pl.card.w, pl.card.h
			pl.cache.More, pl.cache.Expand = pl.card.more, pl.card.expand
		} else {
			pl.cache.Shape = ShapeCircle
			pl.cache.Radius = radius
		}

		switch mode {
		case Detailed:
			st.Detailed++
		case Transition:
			st.Transition++
		default:
			st.Simple++
		}
		index[e.ID] = len(nodes)
		nodes = append(nodes, pl)
	}

	for _, rel := range s.View.Relationships {
		if rel.Synthetic {
			continue
		}
		i, ok1 := index[rel.From]
		j, ok2 := index[rel.To]
		if !ok1 || !ok2 || i == j {
			continue
		}
		r.drawEdge(c, rel, nodes[i].cache, nodes[j].cache, s.Hover)
		st.Edges++
	}

	cache := make(map[string]RenderCache, len(nodes))
	order := make([]string, 0, len(nodes))
	for _, pl := range nodes {
		r.drawNode(c, pl, s.Hover == pl.e.ID)
		cache[pl.e.ID] = pl.cache
		order = append(order, pl.e.ID)
	}
	r.cache = cache
	r.order = order
	st.Nodes = len(nodes)
	return st
}

// Cache returns the geometry a node was last drawn with.
func (r *Renderer) Cache(id string) (RenderCache, bool) {
	c, ok := r.cache[id]
	return c, ok
}

// HitTest returns the topmost node under the graph-space point p.
func (r *Renderer) HitTest(p layout.Point) (string, RenderCache, bool) {
	for i := len(r.order) - 1; i >= 0; i-- {
		id := r.order[i]
		c := r.cache[id]
		if c.Hit(p) {
			return id, c, true
		}
	}
	return "", RenderCache{}, false
}

// Reset drops the hit geometry.
func (r *Renderer) Reset() {
	r.cache = make(map[string]RenderCache)
	r.order = nil
}

// boundary is the distance from a node's center to the edge of its drawn
// shape along the direction (ux, uy).
func boundary(c RenderCache, ux, uy float64) float64 {
	if c.Shape == ShapeCircle {
		return c.Radius
	}
	hw, hh := c.Width/2, c.Height/2
	tx, ty := math.Inf(1), math.Inf(1)
	if ux != 0 {
		tx = hw / math.Abs(ux)
	}
	if uy != 0 {
		ty = hh / math.Abs(uy)
	}
	return math.Min(tx, ty)
}

func (r *Renderer) drawEdge(c Canvas, rel graph.Relationship, from, to RenderCache, hover string) {
	dx, dy := to.Center.X-from.Center.X, to.Center.Y-from.Center.Y
	d := math.Hypot(dx, dy)
	if d == 0 {
		return
	}
	ux, uy := dx/d, dy/d
	sx, sy := from.Center.X+ux*boundary(from, ux, uy), from.Center.Y+uy*boundary(from, ux, uy)
	tb := boundary(to, ux, uy) + 2
	tx, ty := to.Center.X-ux*tb, to.Center.Y-uy*tb

	hl := hover != "" && (hover == rel.From || hover == rel.To)
	st := Style{Stroke: "rgba(255,255,255,0.15)", Width: 1}
	head := Style{Fill: "rgba(255,255,255,0.2)"}
	if hl {
		st = Style{Stroke: "rgba(45,182,130,0.7)", Width: 2}
		head = Style{Fill: "rgba(45,182,130,0.7)"}
	}
	c.Line(sx, sy, tx, ty, st)

	angle := math.Atan2(dy, dx)
	c.Polygon([]float64{
		tx, ty,
		tx - 8*math.Cos(angle-0.3), ty - 8*math.Sin(angle-0.3),
		tx - 8*math.Cos(angle+0.3), ty - 8*math.Sin(angle+0.3),
	}, head)

	if hl && rel.Label != "" {
		c.Text((sx+tx)/2, (sy+ty)/2-6, rel.Label, Style{Fill: "#2DB682", FontSize: 10, Align: "center"})
	}
}

func (r *Renderer) drawNode(c Canvas, pl placed, hovered bool) {
	color := graph.Color(pl.e.Label)
	p := pl.cache.Center

	glyphAlpha := 1 - pl.cache.Opacity
	if pl.cache.Mode == Simple {
		glyphAlpha = 1
	}
	if glyphAlpha > 0 {
		radius := SimpleRadius
		if hovered {
			radius = HoverRadius
		}
		c.Circle(p.X, p.Y, radius, Style{Fill: color, Stroke: color, Width: 1, Alpha: alpha(glyphAlpha)})
		if hovered {
			label := pl.e.Label
			if label == "" {
				label = pl.e.ID
			}
			c.Text(p.X+radius+4, p.Y+4, label, Style{Fill: "#ffffff", FontSize: 11, Alpha: alpha(glyphAlpha)})
		}
	}

	if pl.card == nil || pl.cache.Opacity <= 0 {
		return
	}
	r.drawCard(c, *pl.card, p, color, hovered, pl.cache.Opacity)
}

func (r *Renderer) drawCard(c Canvas, cd card, p layout.Point, color string, hovered bool, opacity float64) {
	a := alpha(opacity)
	left, top := p.X-cd.w/2, p.Y-cd.h/2

	border := Style{Fill: "#111827", Stroke: color, Width: 1, Alpha: a}
	if hovered {
		border.Width = 2
	}
	c.Rect(left, top, cd.w, cd.h, cardRadius, border)
	c.Rect(left, top, cd.w, headerHeight, cardRadius, Style{Fill: color, Alpha: a})
	c.Text(left+cardPad, top+headerHeight-7, cd.title, Style{Fill: "#ffffff", FontSize: headerFont, Bold: true, Alpha: a})

	y := top + headerHeight
	for _, rw := range cd.rows {
		base := y + rowHeight - 4
		c.Text(left+cardPad, base, rw.key, Style{Fill: "#9ca3af", FontSize: rowFont, Alpha: a})
		tagW := TextWidth(rw.tag, tagFont)
		right := left + cd.w - cardPad
		c.Text(right, base, rw.tag, Style{Fill: color, FontSize: tagFont, Align: "right", Alpha: a})
		c.Text(right-tagW-4, base, rw.value, Style{Fill: "#e5e7eb", FontSize: rowFont, Align: "right", Alpha: a})
		y += rowHeight
	}

	if cd.more != nil {
		b := cd.more
		c.Text(p.X, p.Y+b.Y+rowHeight-4, cd.toggleLabel(), Style{Fill: "#60a5fa", FontSize: rowFont, Align: "center", Alpha: a})
	}
	if cd.expand != nil {
		b := cd.expand
		c.Text(p.X, p.Y+b.Y+rowHeight-4, expandLabel, Style{Fill: "#2DB682", FontSize: rowFont, Align: "center", Alpha: a})
	}
}

// alpha maps full opacity to the zero value so it is omitted on the wire.
func alpha(v float64) float64 {
	if v >= 1 {
		return 0
	}
	return v
}

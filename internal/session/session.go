// Package session runs one explorer: a store, the fetchers that feed it, and
// the frame loop that lays out, renders and resolves input against it.
//
// Layout, rendering and interaction state is owned by whichever goroutine
// calls Frame (normally Run). Other methods only enqueue work for that
// goroutine, or touch the store, which is safe for concurrent use.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/msalah0e/graphlens/internal/dispatch"
	"github.com/msalah0e/graphlens/internal/expand"
	"github.com/msalah0e/graphlens/internal/graph"
	"github.com/msalah0e/graphlens/internal/interact"
	"github.com/msalah0e/graphlens/internal/layout"
	"github.com/msalah0e/graphlens/internal/metrics"
	"github.com/msalah0e/graphlens/internal/render"
)

// DefaultFPS is the frame rate of Run.
const DefaultFPS = 30

// Source is the database service as seen by one session.
type Source interface {
	dispatch.Querier
	dispatch.Sampler
	expand.Source
}

// Frame is one rendered picture and the state it was drawn from.
type Frame struct {
	Seq      uint64          `json:"seq"`
	Viewport render.Viewport `json:"viewport"`
	Ops      []render.Op     `json:"ops"`
	Stats    render.Stats    `json:"stats"`
	Focus    string          `json:"focus,omitempty"`
	Layout   string          `json:"layout"`
	Busy     bool            `json:"busy,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Session is one explorer instance.
type Session struct {
	ID string

	store      *graph.Store
	dispatcher *dispatch.Dispatcher
	expander   *expand.Expander
	layout     *layout.Controller
	renderer   *render.Renderer
	camera     *render.Camera
	view       *interact.ViewState
	resolver   *interact.Resolver

	fps     int
	logger  *slog.Logger
	metrics *metrics.Metrics

	// set once by Run before the loop starts; used by fetches the loop spawns
	ctx context.Context
	wg  sync.WaitGroup

	mu        sync.Mutex
	pending   []func()
	lastErr   string
	subs      map[int]chan Frame
	nextSub   int
	republish bool

	seq     uint64
	version uint64
}

type options struct {
	dispatch []dispatch.Option
	expand   []expand.Option
	layout   []layout.Option
	render   []render.Option
	width    float64
	height   float64
	fps      int
	drag     float64
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Session.
type Option func(*options)

// WithDispatchOptions passes options to the query dispatcher.
func WithDispatchOptions(opts ...dispatch.Option) Option {
	return func(o *options) { o.dispatch = append(o.dispatch, opts...) }
}

// WithExpandOptions passes options to the neighbourhood expander.
func WithExpandOptions(opts ...expand.Option) Option {
	return func(o *options) { o.expand = append(o.expand, opts...) }
}

// WithLayoutOptions passes options to the layout controller.
func WithLayoutOptions(opts ...layout.Option) Option {
	return func(o *options) { o.layout = append(o.layout, opts...) }
}

// WithRenderOptions passes options to the renderer.
func WithRenderOptions(opts ...render.Option) Option {
	return func(o *options) { o.render = append(o.render, opts...) }
}

// WithViewport sets the initial canvas size in pixels.
func WithViewport(w, h float64) Option {
	return func(o *options) { o.width, o.height = w, h }
}

// WithFPS sets the frame rate of Run.
func WithFPS(n int) Option {
	return func(o *options) { o.fps = n }
}

// WithDragThreshold sets how far, in screen pixels, a pressed pointer must
// travel before the press becomes a drag.
func WithDragThreshold(px float64) Option {
	return func(o *options) { o.drag = px }
}

// WithLogger sets the logger for the session and its components.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records fetches, merges and frames.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New creates a session reading from src.
func New(src Source, opts ...Option) *Session {
	o := options{width: 1200, height: 800, fps: DefaultFPS}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.fps < 1 {
		o.fps = DefaultFPS
	}

	id := uuid.NewString()
	logger := o.logger.With("session", id[:8])
	store := graph.NewStore()

	s := &Session{
		ID:    id,
		store: store,
		dispatcher: dispatch.New(src, store, append([]dispatch.Option{
			dispatch.WithLogger(logger), dispatch.WithMetrics(o.metrics),
		}, o.dispatch...)...),
		expander: expand.New(src, store, append([]expand.Option{
			expand.WithLogger(logger), expand.WithMetrics(o.metrics),
		}, o.expand...)...),
		layout:   layout.NewController(append([]layout.Option{layout.WithLogger(logger)}, o.layout...)...),
		renderer: render.New(o.render...),
		camera:   render.NewCamera(render.NewViewport(o.width, o.height)),
		view:     interact.NewViewState(store.Snapshot().Epoch),
		fps:      o.fps,
		logger:   logger,
		metrics:  o.metrics,
		ctx:      context.Background(),
		subs:     make(map[int]chan Frame),
	}
	s.resolver = interact.NewResolver(s.renderer, s.layout, s.camera, s.view)
	if o.drag > 0 {
		s.resolver.SetDragThreshold(o.drag)
	}
	return s
}

// Store returns the session's entity store.
func (s *Session) Store() *graph.Store { return s.store }

// Focus returns the focused entity id. Call it from the frame goroutine.
func (s *Session) Focus() string { return s.view.Focus }

// LayoutState returns the layout controller's state.
func (s *Session) LayoutState() layout.State { return s.layout.State() }

// Position returns the live layout position of an entity.
func (s *Session) Position(id string) (layout.Point, bool) { return s.layout.Position(id) }

// post queues fn for the frame goroutine.
func (s *Session) post(fn func()) {
	s.mu.Lock()
	s.pending = append(s.pending, fn)
	s.mu.Unlock()
}

func (s *Session) drain() int {
	s.mu.Lock()
	fns := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

func (s *Session) setError(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg != s.lastErr {
		s.lastErr = msg
		s.republish = true
	}
}

// Err returns the message of the last failed operation, if any.
func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// spawn runs a fetch off the frame goroutine.
func (s *Session) spawn(fn func(ctx context.Context)) {
	ctx := s.ctx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(ctx)
	}()
}

// Wait blocks until fetches started by the frame goroutine have finished.
func (s *Session) Wait() { s.wg.Wait() }

// Select runs the selected queries, merges their results in one update and
// tells the layout new data arrived. Successful siblings of a failed query
// are still merged; the error names the failures.
func (s *Session) Select(ctx context.Context, sels []dispatch.Selection) (dispatch.Report, error) {
	report, err := s.dispatcher.Run(ctx, sels)
	s.setError(err)
	if report.Merge.Changed() {
		s.post(func() { s.layout.Fire(layout.Loaded) })
	}
	s.logger.Info("queries merged", "queries", len(sels),
		"entities_added", report.Merge.EntitiesAdded, "relationships_added", report.Merge.RelationshipsAdded)
	return report, err
}

// LoadSample seeds the store with a sample of the graph, without a stored
// query, and tells the layout new data arrived.
func (s *Session) LoadSample(ctx context.Context, req dispatch.SampleRequest) (dispatch.Report, error) {
	report, err := s.dispatcher.Sample(ctx, req)
	s.setError(err)
	if report.Merge.Changed() {
		s.post(func() { s.layout.Fire(layout.Loaded) })
	}
	s.logger.Info("sample merged", "route", req.Route(), "label", req.Label,
		"entities_added", report.Merge.EntitiesAdded, "relationships_added", report.Merge.RelationshipsAdded)
	return report, err
}

// ExpandAll loads the neighbourhood of every entity in the store. It is
// refused while another bulk expand runs, on an empty store and when every
// entity was already expanded.
func (s *Session) ExpandAll(ctx context.Context) (expand.Result, error) {
	res, err := s.expander.ExpandAll(ctx)
	s.setError(err)
	if res.Requested > res.Failed {
		s.post(func() { s.layout.Fire(layout.NeighborsLoaded) })
	}
	return res, err
}

// ExpandNode loads one entity's neighbourhood. Focus and camera are left
// alone.
func (s *Session) ExpandNode(ctx context.Context, id string) (expand.Result, error) {
	res, err := s.expander.ExpandNode(ctx, id)
	s.setError(err)
	return res, err
}

// Clear empties the store. Transient view state and layout are reset by
// the next frame. Fetches still in flight merge into the cleared store.
func (s *Session) Clear() {
	s.store.Clear()
	s.setError(nil)
	s.logger.Info("store cleared")
}

// PointerKind names a pointer event.
type PointerKind string

const (
	PointerDown   PointerKind = "down"
	PointerMove   PointerKind = "move"
	PointerUp     PointerKind = "up"
	PointerClick  PointerKind = "click"
	PointerCancel PointerKind = "cancel"
)

// PointerEvent is a pointer event in screen pixels.
type PointerEvent struct {
	Kind PointerKind `json:"kind"`
	X    float64     `json:"x"`
	Y    float64     `json:"y"`
}

// Pointer queues a pointer event for the next frame. A resolved
// expand-connections click starts a single-node expand in the background.
func (s *Session) Pointer(ev PointerEvent) {
	s.post(func() {
		out := s.handlePointer(ev)
		if out.Action == interact.ExpandConnections {
			id := out.ID
			s.spawn(func(ctx context.Context) { _, _ = s.ExpandNode(ctx, id) })
		}
		if out.Action != interact.None {
			s.logger.Debug("pointer", "kind", ev.Kind, "action", out.Action, "id", out.ID)
		}
	})
}

func (s *Session) handlePointer(ev PointerEvent) interact.Outcome {
	switch ev.Kind {
	case PointerDown:
		s.resolver.PointerDown(ev.X, ev.Y)
	case PointerMove:
		return s.resolver.PointerMove(ev.X, ev.Y)
	case PointerUp:
		return s.resolver.PointerUp(ev.X, ev.Y)
	case PointerClick:
		return s.resolver.Click(ev.X, ev.Y)
	case PointerCancel:
		s.resolver.Cancel()
	}
	return interact.Outcome{}
}

// Resize changes the canvas size.
func (s *Session) Resize(w, h float64) {
	s.post(func() { s.camera.Set(s.camera.View.Resize(w, h)) })
}

// Zoom scales the view by factor around a screen point.
func (s *Session) Zoom(factor, sx, sy float64) {
	s.post(func() { s.camera.Set(s.camera.View.ZoomAt(sx, sy, factor)) })
}

// Pan moves the view by a screen offset.
func (s *Session) Pan(dx, dy float64) {
	s.post(func() { s.camera.Set(s.camera.View.Pan(dx, dy)) })
}

// Frame applies queued input, advances the layout one tick and renders.
func (s *Session) Frame() Frame {
	f, _ := s.step()
	return f
}

// step renders a frame and reports whether it can differ from the last one.
func (s *Session) step() (Frame, bool) {
	start := time.Now()
	changed := s.drain() > 0

	snap := s.store.Snapshot()
	if s.view.Sync(snap.Epoch) {
		s.resolver.Cancel()
		s.layout.Fire(layout.Reset)
		s.renderer.Reset()
		changed = true
	}
	if snap.Version != s.version {
		s.version = snap.Version
		changed = true
	}

	v := snap.View(s.view.Focus)
	s.layout.Sync(v, s.camera.View.Center())
	if s.layout.Tick() {
		changed = true
	}
	if s.camera.Step() {
		changed = true
	}

	var dl render.DisplayList
	st := s.renderer.Render(&dl, render.Scene{
		View:      v,
		Positions: s.layout,
		Viewport:  s.camera.View,
		Hover:     s.view.Hover,
		Expanded:  s.view.Expanded,
	})
	s.metrics.ObserveFrame(time.Since(start), st.Nodes)

	s.seq++
	return Frame{
		Seq:      s.seq,
		Viewport: s.camera.View,
		Ops:      dl.Ops,
		Stats:    st,
		Focus:    s.view.Focus,
		Layout:   s.layout.State().String(),
		Busy:     s.expander.Busy(),
		Error:    s.Err(),
	}, changed
}

// Relax runs frames until the layout stops moving or limit frames have
// run, and returns the number of frames.
func (s *Session) Relax(limit int) int {
	for i := 1; i <= limit; i++ {
		if _, changed := s.step(); !changed {
			return i
		}
	}
	return limit
}

// Subscribe returns a channel receiving rendered frames from Run. Slow
// readers only see the latest frame. The returned func unsubscribes.
func (s *Session) Subscribe() (<-chan Frame, func()) {
	ch := make(chan Frame, 1)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.republish = true
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Session) publish(f Frame, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !changed && !s.republish {
		return
	}
	s.republish = false
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- f
	}
}

// Run drives frames at the configured rate until ctx is done, publishing
// them to subscribers. Frames that cannot differ from the previous one are
// not published.
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx
	defer s.layout.Stop()

	ticker := time.NewTicker(time.Second / time.Duration(s.fps))
	defer ticker.Stop()

	s.logger.Debug("session started", "fps", s.fps)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Debug("session stopped")
			return ctx.Err()
		case <-ticker.C:
			f, changed := s.step()
			s.publish(f, changed)
		}
	}
}

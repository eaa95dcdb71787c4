package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/msalah0e/graphlens/internal/client"
	"github.com/msalah0e/graphlens/internal/dispatch"
	"github.com/msalah0e/graphlens/internal/expand"
	"github.com/msalah0e/graphlens/internal/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu      sync.Mutex
	bodies  map[string]string
	hoods   map[string]client.Neighborhood
	details map[string]map[string]any
	sample  client.Sample
}

func (f *fakeSource) Query(_ context.Context, name, _ string, _ map[string]any) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.bodies[name]
	if !ok {
		return nil, errors.New("connection refused")
	}
	return []byte(body), nil
}

func (f *fakeSource) Connections(_ context.Context, id string) (client.Neighborhood, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hoods[id], nil
}

func (f *fakeSource) Details(_ context.Context, id string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.details[id]; ok {
		return d, nil
	}
	return nil, client.ErrNotFound
}

func (f *fakeSource) NodesEdges(_ context.Context, limit int, _ string) (client.Sample, error) {
	if limit > client.MaxLimit {
		return client.Sample{}, client.ErrLimitExceeded
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sample, nil
}

func (f *fakeSource) NodesByLabel(ctx context.Context, label string, limit int) (client.Sample, error) {
	return f.NodesEdges(ctx, limit, label)
}

type noopTimer struct{}

func (noopTimer) Stop() bool { return true }

func noopAfter(time.Duration, func()) layout.Timer { return noopTimer{} }

func newSession(src *fakeSource) *Session {
	return New(src, WithLayoutOptions(layout.WithAfterFunc(noopAfter)), WithViewport(1000, 800))
}

func hospital() *fakeSource {
	return &fakeSource{
		bodies: map[string]string{
			"getDoctors":            `{"doctors":[{"id":"d1","label":"Doctor","name":"A"}]}`,
			"getPatients":           `{"patients":[{"id":"p1","label":"Patient","name":"P"}]}`,
			"assignDoctorToPatient": `{"edges":[{"id":"e1","from":"d1","to":"p1","label":"treats"}]}`,
		},
		hoods: map[string]client.Neighborhood{
			"d1": {
				Nodes:    []any{map[string]any{"id": "p2", "label": "Patient"}},
				Outgoing: []any{map[string]any{"id": "e2", "from": "d1", "to": "p2", "label": "treats"}},
			},
		},
		details: map[string]map[string]any{
			"p2": {"id": "p2", "label": "Patient", "name": "Q", "age": 40},
		},
		sample: client.Sample{
			Nodes: []any{map[string]any{"id": "d1", "label": "Doctor"}, map[string]any{"id": "p1", "label": "Patient"}},
			Edges: []any{map[string]any{"id": "e1", "from": "d1", "to": "p1", "label": "treats"}},
		},
	}
}

func TestSelectThenFrame(t *testing.T) {
	s := newSession(hospital())

	_, err := s.Select(context.Background(), []dispatch.Selection{{Name: "getDoctors"}, {Name: "assignDoctorToPatient"}})
	require.NoError(t, err)

	f := s.Frame()
	assert.Equal(t, 1, f.Stats.Nodes)
	assert.Zero(t, f.Stats.Edges, "dangling e1 is not drawn")
	assert.Equal(t, "initial", f.Layout)
	assert.NotEmpty(t, f.Ops)
	assert.Empty(t, f.Error)

	_, err = s.Select(context.Background(), []dispatch.Selection{{Name: "getPatients"}})
	require.NoError(t, err)
	f = s.Frame()
	assert.Equal(t, 2, f.Stats.Nodes)
	assert.Equal(t, 1, f.Stats.Edges)
	assert.Greater(t, f.Seq, uint64(1))
}

func TestSelectFailureSurfacesInFrame(t *testing.T) {
	s := newSession(hospital())
	_, err := s.Select(context.Background(), []dispatch.Selection{{Name: "getDoctors"}, {Name: "missing"}})
	require.Error(t, err)

	f := s.Frame()
	assert.Equal(t, 1, f.Stats.Nodes)
	assert.Contains(t, f.Error, "missing")
}

func TestLoadSampleSeedsStore(t *testing.T) {
	s := newSession(hospital())
	report, err := s.LoadSample(context.Background(), dispatch.SampleRequest{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Merge.EntitiesAdded)

	f := s.Frame()
	assert.Equal(t, 2, f.Stats.Nodes)
	assert.Equal(t, 1, f.Stats.Edges)
	assert.Empty(t, f.Error)

	_, err = s.LoadSample(context.Background(), dispatch.SampleRequest{Limit: 1000})
	require.ErrorIs(t, err, client.ErrLimitExceeded)
	f = s.Frame()
	assert.Contains(t, f.Error, "nodes-edges")
	assert.Equal(t, 2, f.Stats.Nodes, "a failed sample leaves the store alone")
}

func TestExpandAllMovesLayoutToConnected(t *testing.T) {
	s := newSession(hospital())
	_, err := s.Select(context.Background(), []dispatch.Selection{{Name: "getDoctors"}})
	require.NoError(t, err)
	s.Frame()

	res, err := s.ExpandAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Enriched)

	f := s.Frame()
	assert.Equal(t, layout.Connected, s.LayoutState())
	assert.Equal(t, 2, f.Stats.Nodes)
	p2, ok := s.Store().Snapshot().Entity("p2")
	require.True(t, ok)
	assert.Equal(t, "Q", p2.Props["name"])

	_, err = s.ExpandAll(context.Background())
	require.NoError(t, err, "p2 has not been expanded yet")
	_, err = s.ExpandAll(context.Background())
	assert.ErrorIs(t, err, expand.ErrAlreadyLoaded)
	assert.Contains(t, s.Frame().Error, "already")
}

func TestExpandRegionClickExpandsInBackground(t *testing.T) {
	s := newSession(hospital())
	_, err := s.Select(context.Background(), []dispatch.Selection{{Name: "getDoctors"}})
	require.NoError(t, err)
	s.Frame()

	c, ok := s.renderer.Cache("d1")
	require.True(t, ok)
	require.NotNil(t, c.Expand)
	sx, sy := s.camera.View.ToScreen(layout.Point{X: c.Center.X, Y: c.Center.Y + c.Expand.Y + c.Expand.H/2})

	s.Pointer(PointerEvent{Kind: PointerClick, X: sx, Y: sy})
	s.Frame()
	s.Wait()

	assert.True(t, s.Store().Snapshot().Has("p2"))
	assert.Empty(t, s.Focus())
	f := s.Frame()
	assert.Equal(t, 2, f.Stats.Nodes)
}

func TestClearResetsViewState(t *testing.T) {
	s := newSession(hospital())
	_, err := s.Select(context.Background(), []dispatch.Selection{{Name: "getDoctors"}})
	require.NoError(t, err)
	s.Frame()

	c, ok := s.renderer.Cache("d1")
	require.True(t, ok)
	sx, sy := s.camera.View.ToScreen(layout.Point{X: c.Center.X, Y: c.Center.Y - c.Height/2 + 5})
	s.Pointer(PointerEvent{Kind: PointerClick, X: sx, Y: sy})
	f := s.Frame()
	require.Equal(t, "d1", f.Focus)
	assert.Equal(t, "focused", f.Layout)

	s.Clear()
	f = s.Frame()
	assert.Empty(t, f.Focus)
	assert.Zero(t, f.Stats.Nodes)
	assert.Equal(t, "initial", f.Layout)
	_, ok = s.renderer.Cache("d1")
	assert.False(t, ok)
}

func TestDragThreshold(t *testing.T) {
	for _, tt := range []struct {
		name      string
		threshold float64
		focus     string
	}{
		{"default turns the move into a gesture", 0, ""},
		{"wide threshold keeps it a click", 50, "d1"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			s := New(hospital(), WithLayoutOptions(layout.WithAfterFunc(noopAfter)), WithViewport(1000, 800), WithDragThreshold(tt.threshold))
			_, err := s.Select(context.Background(), []dispatch.Selection{{Name: "getDoctors"}})
			require.NoError(t, err)
			s.Frame()

			c, ok := s.renderer.Cache("d1")
			require.True(t, ok)
			sx, sy := s.camera.View.ToScreen(layout.Point{X: c.Center.X, Y: c.Center.Y - c.Height/2 + 5})
			s.Pointer(PointerEvent{Kind: PointerDown, X: sx, Y: sy})
			s.Pointer(PointerEvent{Kind: PointerMove, X: sx + 20, Y: sy})
			s.Pointer(PointerEvent{Kind: PointerUp, X: sx + 20, Y: sy})
			assert.Equal(t, tt.focus, s.Frame().Focus)
		})
	}
}

func TestViewportEvents(t *testing.T) {
	s := newSession(hospital())
	center := s.Frame().Viewport.Center()

	s.Resize(400, 300)
	f := s.Frame()
	assert.Equal(t, 400.0, f.Viewport.Width)
	assert.Equal(t, 300.0, f.Viewport.Height)
	assert.InDelta(t, center.X, f.Viewport.Center().X, 1e-9, "resize keeps the center")
	assert.InDelta(t, center.Y, f.Viewport.Center().Y, 1e-9)
	assert.InDelta(t, -300, f.Viewport.TX, 1e-9)
	assert.InDelta(t, -250, f.Viewport.TY, 1e-9)

	s.Zoom(2, 0, 0)
	s.Pan(10, 20)
	f = s.Frame()
	assert.InDelta(t, 2, f.Viewport.Scale, 1e-9)
	assert.InDelta(t, -590, f.Viewport.TX, 1e-9)
	assert.InDelta(t, -480, f.Viewport.TY, 1e-9)
}

func TestRelaxStops(t *testing.T) {
	s := newSession(hospital())
	_, err := s.Select(context.Background(), []dispatch.Selection{{Name: "getDoctors"}, {Name: "getPatients"}, {Name: "assignDoctorToPatient"}})
	require.NoError(t, err)

	n := s.Relax(5000)
	assert.Less(t, n, 5000)
	a, _ := s.Position("d1")
	b, _ := s.Position("p1")
	assert.NotEqual(t, a, b)
}

func TestRunPublishesFrames(t *testing.T) {
	s := New(hospital(), WithFPS(200), WithLayoutOptions(layout.WithAfterFunc(noopAfter)))
	frames, stop := s.Subscribe()
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	_, err := s.Select(context.Background(), []dispatch.Selection{{Name: "getDoctors"}})
	require.NoError(t, err)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case f := <-frames:
			if f.Stats.Nodes == 1 {
				cancel()
				assert.ErrorIs(t, <-done, context.Canceled)
				return
			}
		case <-deadline:
			cancel()
			t.Fatal("no frame with the merged node")
		}
	}
}

// Package expand loads the immediate neighbourhood of loaded entities, one
// node at a time or for the whole store in bounded batches.
package expand

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/msalah0e/graphlens/internal/client"
	"github.com/msalah0e/graphlens/internal/graph"
	"github.com/msalah0e/graphlens/internal/metrics"
	"github.com/msalah0e/graphlens/internal/parallel"
)

// DefaultBatchSize bounds the requests in flight during a bulk expand.
const DefaultBatchSize = 10

var (
	ErrBusy          = errors.New("a bulk expand is already running")
	ErrEmptyStore    = errors.New("nothing to expand: the graph is empty")
	ErrAlreadyLoaded = errors.New("connections are already loaded for every node")
)

// Source fetches neighbourhoods and entity details.
type Source interface {
	Connections(ctx context.Context, id string) (client.Neighborhood, error)
	Details(ctx context.Context, id string) (map[string]any, error)
}

// NodeError reports a failed neighbourhood fetch for one entity.
type NodeError struct {
	ID  string
	Err error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("expand %s: %v", e.ID, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// Result summarizes an expansion.
type Result struct {
	Requested int
	Failed    int
	Enriched  int
	Merge     graph.MergeResult
}

// Expander merges neighbourhoods into a store.
type Expander struct {
	src       Source
	store     *graph.Store
	batchSize int
	typeMesh  bool
	logger    *slog.Logger
	metrics   *metrics.Metrics

	busy atomic.Bool

	mu     sync.Mutex
	epoch  uint64
	loaded map[string]bool
}

// Option configures an Expander.
type Option func(*Expander)

// WithBatchSize sets how many neighbourhoods are fetched concurrently.
func WithBatchSize(n int) Option {
	return func(e *Expander) { e.batchSize = n }
}

// WithTypeMesh links newly discovered entities into the same-label mesh.
func WithTypeMesh(on bool) Option {
	return func(e *Expander) { e.typeMesh = on }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Expander) { e.logger = l }
}

// WithMetrics records requests, merges and refusals.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Expander) { e.metrics = m }
}

// New creates an expander.
func New(src Source, store *graph.Store, opts ...Option) *Expander {
	e := &Expander{
		src:       src,
		store:     store,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
		loaded:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.batchSize < 1 {
		e.batchSize = DefaultBatchSize
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Busy reports whether a bulk expand is in flight.
func (e *Expander) Busy() bool { return e.busy.Load() }

// ExpandNode fetches and merges one entity's neighbourhood.
func (e *Expander) ExpandNode(ctx context.Context, id string) (Result, error) {
	base := e.store.Snapshot()
	n, err := e.src.Connections(ctx, id)
	e.metrics.ObserveRequest("connections", err)
	if err != nil {
		return Result{Requested: 1, Failed: 1}, &NodeError{ID: id, Err: err}
	}
	entities := graph.EntitiesFromItems(n.Nodes)
	rels := graph.RelationshipsFromItems(n.Edges())

	entities, enriched := e.enrich(ctx, base, entities)
	res := Result{Requested: 1, Enriched: enriched}
	res.Merge = e.merge(entities, rels)
	e.markLoaded(base.Epoch, []string{id})
	e.logger.Debug("expanded node", "id", id, "entities", res.Merge.EntitiesAdded, "relationships", res.Merge.RelationshipsAdded)
	return res, nil
}

// ExpandAll fetches the neighbourhood of every loaded entity. Batches run one
// after another with the requests inside a batch issued concurrently. The
// whole expansion is merged once, after the last batch. It is refused
// without any request while another bulk expand runs, when the store is
// empty, or when every loaded entity has been expanded already. Per-node
// failures are returned as a *multierror.Error of *NodeError alongside the
// merged result of the nodes that succeeded.
func (e *Expander) ExpandAll(ctx context.Context) (Result, error) {
	if !e.busy.CompareAndSwap(false, true) {
		e.metrics.ObserveRejected("busy")
		return Result{}, ErrBusy
	}
	defer e.busy.Store(false)

	base := e.store.Snapshot()
	ids := base.IDs()
	if len(ids) == 0 {
		e.metrics.ObserveRejected("empty")
		return Result{}, ErrEmptyStore
	}
	if e.allLoaded(base.Epoch, ids) {
		e.metrics.ObserveRejected("loaded")
		return Result{}, ErrAlreadyLoaded
	}

	start := time.Now()
	var (
		res      = Result{Requested: len(ids)}
		errs     *multierror.Error
		entities []graph.Entity
		rels     []graph.Relationship
		seenRel  = make(map[string]bool)
		seenEnt  = make(map[string]bool)
		expanded []string
	)
	for i, batch := range parallel.Batches(ids, e.batchSize) {
		if ctx.Err() != nil {
			errs = multierror.Append(errs, ctx.Err())
			break
		}
		tasks := make([]parallel.Task[client.Neighborhood], len(batch))
		for j, id := range batch {
			tasks[j] = parallel.Task[client.Neighborhood]{
				Name: id,
				Fn: func(ctx context.Context) (client.Neighborhood, error) {
					n, err := e.src.Connections(ctx, id)
					e.metrics.ObserveRequest("connections", err)
					return n, err
				},
			}
		}
		results := parallel.Settle(ctx, tasks, len(tasks))
		for _, r := range results {
			if r.Err != nil {
				res.Failed++
				errs = multierror.Append(errs, &NodeError{ID: r.Name, Err: r.Err})
				continue
			}
			expanded = append(expanded, r.Name)
			for _, ent := range graph.EntitiesFromItems(r.Value.Nodes) {
				if seenEnt[ent.ID] {
					continue
				}
				seenEnt[ent.ID] = true
				entities = append(entities, ent)
			}
			for _, rel := range graph.RelationshipsFromItems(r.Value.Edges()) {
				if seenRel[rel.ID] {
					continue
				}
				seenRel[rel.ID] = true
				rels = append(rels, rel)
			}
		}
		e.logger.Debug("expand batch settled", "batch", i, "size", len(batch), "failed", len(parallel.Failed(results)))
	}

	entities, res.Enriched = e.enrich(ctx, base, entities)
	res.Merge = e.merge(entities, rels)
	e.markLoaded(base.Epoch, expanded)
	e.metrics.ObserveBatch("expand", time.Since(start))
	e.logger.Info("bulk expand finished",
		"nodes", len(ids), "failed", res.Failed,
		"entities", res.Merge.EntitiesAdded, "relationships", res.Merge.RelationshipsAdded,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return res, errs.ErrorOrNil()
}

// enrich replaces entities that are new to the store and carry no
// properties with their full details. A failed lookup keeps the partial
// record.
func (e *Expander) enrich(ctx context.Context, base *graph.Snapshot, entities []graph.Entity) ([]graph.Entity, int) {
	var need []int
	for i, ent := range entities {
		if !base.Has(ent.ID) && len(ent.Props) == 0 {
			need = append(need, i)
		}
	}
	if len(need) == 0 {
		return entities, 0
	}

	enriched := 0
	for _, batch := range parallel.Batches(need, e.batchSize) {
		tasks := make([]parallel.Task[map[string]any], len(batch))
		for j, idx := range batch {
			id := entities[idx].ID
			tasks[j] = parallel.Task[map[string]any]{
				Name: id,
				Fn: func(ctx context.Context) (map[string]any, error) {
					m, err := e.src.Details(ctx, id)
					e.metrics.ObserveRequest("details", err)
					return m, err
				},
			}
		}
		for j, r := range parallel.Settle(ctx, tasks, len(tasks)) {
			if r.Err != nil {
				e.logger.Warn("details lookup failed", "id", r.Name, "error", r.Err)
				continue
			}
			full, ok := graph.EntityFromMap(r.Value)
			if !ok {
				full = graph.Entity{Props: r.Value}
			}
			idx := batch[j]
			full.ID = entities[idx].ID
			if full.Label == "" {
				full.Label = entities[idx].Label
			}
			entities[idx] = full
			enriched++
		}
	}
	return entities, enriched
}

func (e *Expander) merge(entities []graph.Entity, rels []graph.Relationship) graph.MergeResult {
	if e.typeMesh && len(entities) > 0 {
		snap := e.store.Snapshot()
		all := snap.Entities()
		for _, ent := range entities {
			if !snap.Has(ent.ID) {
				all = append(all, ent)
			}
		}
		rels = append(rels, graph.TypeMesh(all)...)
	}
	res := e.store.Merge(entities, rels)
	e.metrics.ObserveMerge(res)
	return res
}

func (e *Expander) markLoaded(epoch uint64, ids []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if epoch != e.epoch {
		if epoch < e.epoch {
			return
		}
		e.epoch = epoch
		e.loaded = make(map[string]bool)
	}
	for _, id := range ids {
		e.loaded[id] = true
	}
}

func (e *Expander) allLoaded(epoch uint64, ids []string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if epoch != e.epoch {
		return false
	}
	for _, id := range ids {
		if !e.loaded[id] {
			return false
		}
	}
	return true
}

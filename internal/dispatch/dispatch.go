// Package dispatch runs a batch of selected queries concurrently and merges
// their results into the entity store as one atomic update.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/msalah0e/graphlens/internal/client"
	"github.com/msalah0e/graphlens/internal/extract"
	"github.com/msalah0e/graphlens/internal/graph"
	"github.com/msalah0e/graphlens/internal/metrics"
	"github.com/msalah0e/graphlens/internal/parallel"
)

// Kind decides how a query's result items are merged.
type Kind int

const (
	KindNode Kind = iota
	KindEdge
	KindVector
)

func (k Kind) String() string {
	switch k {
	case KindEdge:
		return "edge"
	case KindVector:
		return "vector"
	default:
		return "node"
	}
}

var (
	edgeMarkers   = []string{"edge", "assign", "link", "referral"}
	vectorMarkers = []string{"vector", "note"}
)

// Classify guesses the kind of a query from its name. Edge markers are
// checked before vector markers; anything else is a node query.
func Classify(name string) Kind {
	lower := strings.ToLower(name)
	for _, m := range edgeMarkers {
		if strings.Contains(lower, m) {
			return KindEdge
		}
	}
	for _, m := range vectorMarkers {
		if strings.Contains(lower, m) {
			return KindVector
		}
	}
	return KindNode
}

// Querier executes one stored query and returns the raw response body.
type Querier interface {
	Query(ctx context.Context, name, method string, params map[string]any) ([]byte, error)
}

// Sampler fetches part of the stored graph without a stored query.
type Sampler interface {
	NodesEdges(ctx context.Context, limit int, label string) (client.Sample, error)
	NodesByLabel(ctx context.Context, label string, limit int) (client.Sample, error)
}

// ErrNoSampler is returned by Sample when the source cannot sample.
var ErrNoSampler = errors.New("source does not support sampling")

// SampleRequest selects a sample of the graph. Limit zero leaves the size
// to the service.
type SampleRequest struct {
	Label string
	Limit int
	// NodesOnly loads the nodes carrying Label without any edges.
	NodesOnly bool
}

// Route names the service route the request uses.
func (r SampleRequest) Route() string {
	if r.NodesOnly {
		return "nodes-by-label"
	}
	return "nodes-edges"
}

// Selection is one query picked by the user.
type Selection struct {
	Name   string
	Method string
	Params map[string]any
	// TopK caps the number of result items merged. Zero uses the
	// dispatcher default; negative means uncapped.
	TopK int
}

// QueryError reports the failure of one query in a batch.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s: %v", e.Query, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// QueryResult describes what one query contributed.
type QueryResult struct {
	Name      string
	Kind      Kind
	Items     int
	Extractor string
	Elapsed   time.Duration
	Err       error
}

// Report summarizes a batch.
type Report struct {
	Queries []QueryResult
	Merge   graph.MergeResult
}

// Dispatcher fans selected queries out and merges the results.
type Dispatcher struct {
	q           Querier
	sampler     Sampler
	store       *graph.Store
	extractors  extract.Chain
	concurrency int
	topK        int
	typeMesh    bool
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithExtractors replaces the result extraction chain.
func WithExtractors(c extract.Chain) Option {
	return func(d *Dispatcher) { d.extractors = c }
}

// WithConcurrency bounds simultaneous requests within a batch.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) { d.concurrency = n }
}

// WithTopK sets the default per-query result cap. Zero means uncapped.
func WithTopK(k int) Option {
	return func(d *Dispatcher) { d.topK = k }
}

// WithTypeMesh adds synthetic same-label relationships after node merges.
func WithTypeMesh(on bool) Option {
	return func(d *Dispatcher) { d.typeMesh = on }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMetrics records requests and merges.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// New creates a dispatcher merging into store. A q that also implements
// Sampler serves Sample.
func New(q Querier, store *graph.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		q:           q,
		store:       store,
		extractors:  extract.Default,
		concurrency: 8,
		logger:      slog.Default(),
	}
	if sm, ok := q.(Sampler); ok {
		d.sampler = sm
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

type payload struct {
	items     []any
	extractor string
}

// Run issues every selection concurrently, waits for all of them to settle
// and merges the successful results in one store update. Failed queries are
// reported in the returned error (a *multierror.Error of *QueryError) without
// discarding the results of their siblings.
func (d *Dispatcher) Run(ctx context.Context, sels []Selection) (Report, error) {
	tasks := make([]parallel.Task[payload], len(sels))
	for i, sel := range sels {
		tasks[i] = parallel.Task[payload]{
			Name: sel.Name,
			Fn: func(ctx context.Context) (payload, error) {
				body, err := d.q.Query(ctx, sel.Name, sel.Method, sel.Params)
				d.metrics.ObserveRequest("query", err)
				if err != nil {
					return payload{}, err
				}
				items, by := d.extractors.Extract(body)
				return payload{items: extract.TopK(items, d.capFor(sel)), extractor: by}, nil
			},
		}
	}

	start := time.Now()
	results := parallel.Settle(ctx, tasks, d.concurrency)
	d.metrics.ObserveBatch("query", time.Since(start))

	var (
		report   Report
		errs     *multierror.Error
		entities []graph.Entity
		rels     []graph.Relationship
	)
	for i, res := range results {
		kind := Classify(sels[i].Name)
		qr := QueryResult{Name: res.Name, Kind: kind, Elapsed: res.Elapsed, Err: res.Err}
		if res.Err != nil {
			d.logger.Warn("query failed", "query", res.Name, "error", res.Err)
			errs = multierror.Append(errs, &QueryError{Query: res.Name, Err: res.Err})
			report.Queries = append(report.Queries, qr)
			continue
		}
		qr.Extractor = res.Value.extractor
		switch kind {
		case KindEdge:
			found := graph.RelationshipsFromItems(res.Value.items)
			qr.Items = len(found)
			rels = append(rels, found...)
		default:
			found := graph.EntitiesFromItems(res.Value.items)
			qr.Items = len(found)
			entities = append(entities, found...)
		}
		d.logger.Debug("query settled", "query", res.Name, "kind", kind, "items", qr.Items, "elapsed", res.Elapsed)
		report.Queries = append(report.Queries, qr)
	}

	report.Merge = d.merge(entities, rels)
	return report, errs.ErrorOrNil()
}

// Sample fetches a slice of the graph through the sampling routes and
// merges it like a query batch: nodes and vectors become entities, edges
// relationships. A failure comes back as a *multierror.Error holding one
// *QueryError named after the route.
func (d *Dispatcher) Sample(ctx context.Context, req SampleRequest) (Report, error) {
	if d.sampler == nil {
		return Report{}, ErrNoSampler
	}
	if req.NodesOnly && req.Label == "" {
		return Report{}, errors.New("sample: nodes only needs a label")
	}

	route := req.Route()
	start := time.Now()
	var (
		s   client.Sample
		err error
	)
	if req.NodesOnly {
		s, err = d.sampler.NodesByLabel(ctx, req.Label, req.Limit)
	} else {
		s, err = d.sampler.NodesEdges(ctx, req.Limit, req.Label)
	}
	elapsed := time.Since(start)
	d.metrics.ObserveRequest("sample", err)
	d.metrics.ObserveBatch("sample", elapsed)

	qr := QueryResult{Name: route, Kind: KindNode, Elapsed: elapsed, Err: err}
	if err != nil {
		d.logger.Warn("sample failed", "route", route, "label", req.Label, "error", err)
		var errs *multierror.Error
		errs = multierror.Append(errs, &QueryError{Query: route, Err: err})
		return Report{Queries: []QueryResult{qr}}, errs
	}

	items := make([]any, 0, len(s.Nodes)+len(s.Vectors))
	items = append(append(items, s.Nodes...), s.Vectors...)
	entities := graph.EntitiesFromItems(items)
	rels := graph.RelationshipsFromItems(s.Edges)
	qr.Items = len(entities) + len(rels)
	qr.Extractor = route
	d.logger.Debug("sample settled", "route", route, "entities", len(entities), "relationships", len(rels), "elapsed", elapsed)

	report := Report{Queries: []QueryResult{qr}}
	report.Merge = d.merge(entities, rels)
	return report, nil
}

// merge applies one batch to the store, meshing new entities with the
// stored ones of the same label when enabled.
func (d *Dispatcher) merge(entities []graph.Entity, rels []graph.Relationship) graph.MergeResult {
	if d.typeMesh && len(entities) > 0 {
		rels = append(rels, graph.TypeMesh(d.withExisting(entities))...)
	}
	res := d.store.Merge(entities, rels)
	d.metrics.ObserveMerge(res)
	return res
}

func (d *Dispatcher) capFor(sel Selection) int {
	switch {
	case sel.TopK > 0:
		return sel.TopK
	case sel.TopK < 0:
		return 0
	default:
		return d.topK
	}
}

// withExisting lists the stored entities followed by incoming ones not yet
// stored, so the mesh extends the chains already laid out.
func (d *Dispatcher) withExisting(incoming []graph.Entity) []graph.Entity {
	snap := d.store.Snapshot()
	all := snap.Entities()
	seen := make(map[string]bool, len(incoming))
	for _, e := range incoming {
		if snap.Has(e.ID) || seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		all = append(all, e)
	}
	return all
}

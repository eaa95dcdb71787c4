// Package metrics holds the Prometheus collectors for the explorer engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/msalah0e/graphlens/internal/graph"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the engine's collectors.
type Metrics struct {
	Requests      *prometheus.CounterVec
	Merged        *prometheus.CounterVec
	BatchDuration *prometheus.HistogramVec
	FrameDuration prometheus.Histogram
	Nodes         prometheus.Gauge
	Rejected      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphlens",
			Name:      "requests_total",
			Help:      "Remote calls to the database service by operation and outcome.",
		}, []string{"op", "outcome"}),
		Merged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphlens",
			Name:      "merged_total",
			Help:      "Entities and relationships merged into the store.",
		}, []string{"kind"}),
		BatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "graphlens",
			Name:      "batch_duration_seconds",
			Help:      "Wall time of a settled fan-out batch.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"op"}),
		FrameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "graphlens",
			Name:      "frame_duration_seconds",
			Help:      "Time spent on one layout tick plus render.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		Nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "graphlens",
			Name:      "rendered_nodes",
			Help:      "Nodes drawn in the last frame.",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphlens",
			Name:      "rejected_total",
			Help:      "Operations refused by a guard.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Merged, m.BatchDuration, m.FrameDuration, m.Nodes, m.Rejected)
	}
	return m
}

// ObserveRequest counts one remote call.
func (m *Metrics) ObserveRequest(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Requests.WithLabelValues(op, outcome).Inc()
}

// ObserveMerge counts what a merge added.
func (m *Metrics) ObserveMerge(res graph.MergeResult) {
	if m == nil {
		return
	}
	m.Merged.WithLabelValues("entity").Add(float64(res.EntitiesAdded))
	m.Merged.WithLabelValues("relationship").Add(float64(res.RelationshipsAdded))
}

// ObserveBatch records the duration of a settled batch.
func (m *Metrics) ObserveBatch(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.BatchDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveFrame records one frame.
func (m *Metrics) ObserveFrame(d time.Duration, nodes int) {
	if m == nil {
		return
	}
	m.FrameDuration.Observe(d.Seconds())
	m.Nodes.Set(float64(nodes))
}

// ObserveRejected counts an operation refused by a guard.
func (m *Metrics) ObserveRejected(reason string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(reason).Inc()
}

package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/msalah0e/graphlens/internal/extract"
)

// ErrLimitExceeded is returned for a sample limit above MaxLimit.
var ErrLimitExceeded = errors.New("limit exceeds maximum")

// Sample is a slice of the stored graph fetched without a stored query.
type Sample struct {
	Nodes   []any
	Edges   []any
	Vectors []any
}

// NodesEdges fetches up to limit nodes and the edges between them,
// restricted to one node label when label is set. A limit of zero leaves
// the size to the service.
func (c *Client) NodesEdges(ctx context.Context, limit int, label string) (Sample, error) {
	q := url.Values{}
	if err := setLimit(q, limit); err != nil {
		return Sample{}, err
	}
	if label != "" {
		q.Set("node_label", label)
	}
	return c.sample(ctx, "/nodes-edges", q)
}

// NodesByLabel fetches up to limit nodes carrying label.
func (c *Client) NodesByLabel(ctx context.Context, label string, limit int) (Sample, error) {
	if label == "" {
		return Sample{}, errors.New("nodes by label: label is required")
	}
	q := url.Values{"label": {label}}
	if err := setLimit(q, limit); err != nil {
		return Sample{}, err
	}
	return c.sample(ctx, "/nodes-by-label", q)
}

func setLimit(q url.Values, limit int) error {
	if limit > MaxLimit {
		return fmt.Errorf("limit %d: %w %d", limit, ErrLimitExceeded, MaxLimit)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return nil
}

// sample decodes {"nodes", "edges", "vectors"}, either at the top level or
// under "data". Each part may be a plain array or {"values": [...]}.
func (c *Client) sample(ctx context.Context, endpoint string, q url.Values) (Sample, error) {
	var raw map[string]any
	if err := c.getJSON(ctx, endpoint, q, &raw); err != nil {
		return Sample{}, err
	}
	if data, ok := raw["data"].(map[string]any); ok {
		raw = data
	}
	var s Sample
	s.Nodes, _ = extract.Unwrap(raw["nodes"])
	s.Edges, _ = extract.Unwrap(raw["edges"])
	s.Vectors, _ = extract.Unwrap(raw["vectors"])
	return s, nil
}

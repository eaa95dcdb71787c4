package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/msalah0e/graphlens/internal/extract"
	"github.com/spf13/cast"
)

// Parameter describes one query parameter.
type Parameter struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"param_type" yaml:"type"`
}

// Endpoint describes one stored query exposed by the service.
type Endpoint struct {
	Path       string      `json:"path" yaml:"path"`
	Method     string      `json:"method" yaml:"method"`
	QueryName  string      `json:"query_name" yaml:"query_name"`
	Parameters []Parameter `json:"parameters" yaml:"parameters"`
}

// Endpoints lists the queries the service exposes.
func (c *Client) Endpoints(ctx context.Context) ([]Endpoint, error) {
	var eps []Endpoint
	if err := c.getJSON(ctx, "/api/endpoints", nil, &eps); err != nil {
		return nil, err
	}
	for i := range eps {
		if eps[i].Method == "" {
			eps[i].Method = MethodFor(eps[i].QueryName)
		}
		if eps[i].Path == "" {
			eps[i].Path = "/api/query/" + eps[i].QueryName
		}
	}
	return eps, nil
}

// MethodFor infers the HTTP method of a query from its name.
func MethodFor(queryName string) string {
	switch {
	case strings.HasPrefix(queryName, "create"),
		strings.HasPrefix(queryName, "add"),
		strings.HasPrefix(queryName, "assign"):
		return http.MethodPost
	case strings.HasPrefix(queryName, "update"):
		return http.MethodPut
	case strings.HasPrefix(queryName, "delete"),
		strings.HasPrefix(queryName, "remove"):
		return http.MethodDelete
	default:
		return http.MethodGet
	}
}

// Query executes a stored query and returns the raw response body. GET
// queries carry params in the URL; other methods send them as a JSON body.
func (c *Client) Query(ctx context.Context, name, method string, params map[string]any) ([]byte, error) {
	if method == "" {
		method = MethodFor(name)
	}
	method = strings.ToUpper(method)
	endpoint := "/api/query/" + url.PathEscape(name)

	if method == http.MethodGet {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, queryValue(v))
		}
		return c.do(ctx, method, endpoint, q, nil)
	}
	body := params
	if body == nil {
		body = map[string]any{}
	}
	return c.do(ctx, method, endpoint, nil, body)
}

func queryValue(v any) string {
	switch v.(type) {
	case []any, []float64, map[string]any:
		data, err := json.Marshal(v)
		if err == nil {
			return string(data)
		}
	}
	return cast.ToString(v)
}

// NodeType is a node definition from the schema.
type NodeType struct {
	Name       string            `json:"name" yaml:"name"`
	Properties map[string]string `json:"properties" yaml:"properties"`
}

// EdgeType is an edge definition from the schema.
type EdgeType struct {
	Name       string            `json:"name" yaml:"name"`
	From       string            `json:"from_node" yaml:"from"`
	To         string            `json:"to_node" yaml:"to"`
	Properties map[string]string `json:"properties" yaml:"properties"`
}

// Schema describes the node, edge and vector types of the database.
type Schema struct {
	Nodes   []NodeType `json:"nodes" yaml:"nodes"`
	Edges   []EdgeType `json:"edges" yaml:"edges"`
	Vectors []NodeType `json:"vectors" yaml:"vectors"`
}

// Schema fetches the type schema.
func (c *Client) Schema(ctx context.Context) (Schema, error) {
	var raw struct {
		Nodes []NodeType `json:"nodes"`
		Edges []struct {
			EdgeType
			AltFrom string `json:"from"`
			AltTo   string `json:"to"`
		} `json:"edges"`
		Vectors []NodeType `json:"vectors"`
	}
	if err := c.getJSON(ctx, "/api/schema", nil, &raw); err != nil {
		return Schema{}, err
	}
	s := Schema{Nodes: raw.Nodes, Vectors: raw.Vectors}
	for _, e := range raw.Edges {
		et := e.EdgeType
		if et.From == "" {
			et.From = e.AltFrom
		}
		if et.To == "" {
			et.To = e.AltTo
		}
		s.Edges = append(s.Edges, et)
	}
	return s, nil
}

// Neighborhood is the immediate surroundings of one node.
type Neighborhood struct {
	Nodes    []any
	Incoming []any
	Outgoing []any
}

// Edges returns incoming and outgoing edge records together.
func (n Neighborhood) Edges() []any {
	out := make([]any, 0, len(n.Incoming)+len(n.Outgoing))
	out = append(out, n.Incoming...)
	return append(out, n.Outgoing...)
}

// Connections fetches the neighbourhood of a node. Each part may arrive as a
// plain array or as {"values": [...]}; missing parts are empty.
func (c *Client) Connections(ctx context.Context, nodeID string) (Neighborhood, error) {
	var raw map[string]any
	if err := c.getJSON(ctx, "/node-connections", url.Values{"node_id": {nodeID}}, &raw); err != nil {
		return Neighborhood{}, err
	}
	var n Neighborhood
	n.Nodes, _ = extract.Unwrap(raw["connected_nodes"])
	n.Incoming, _ = extract.Unwrap(raw["incoming_edges"])
	n.Outgoing, _ = extract.Unwrap(raw["outgoing_edges"])
	return n, nil
}

// Details fetches the full property set of one entity. The body may be
// {"found": true, "node": {...}}, {"data": {...}} or the entity itself.
func (c *Client) Details(ctx context.Context, id string) (map[string]any, error) {
	var raw map[string]any
	if err := c.getJSON(ctx, "/node-details", url.Values{"id": {id}}, &raw); err != nil {
		return nil, err
	}
	if found, ok := raw["found"]; ok {
		node, isMap := raw["node"].(map[string]any)
		if !cast.ToBool(found) || !isMap {
			return nil, fmt.Errorf("node %s: %w", id, ErrNotFound)
		}
		return node, nil
	}
	if data, ok := raw["data"].(map[string]any); ok {
		return data, nil
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return raw, nil
}

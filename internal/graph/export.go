package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Stats holds summary counts.
type Stats struct {
	Entities      int `json:"entities" yaml:"entities"`
	Relationships int `json:"relationships" yaml:"relationships"`
	Synthetic     int `json:"synthetic" yaml:"synthetic"`
	Dangling      int `json:"dangling" yaml:"dangling"`
	Types         int `json:"types" yaml:"types"`
}

// Stats returns summary statistics.
func (s *Snapshot) Stats() Stats {
	st := Stats{Entities: s.Len()}
	types := make(map[string]bool)
	for _, e := range s.entities {
		if e.Label != "" {
			types[e.Label] = true
		}
	}
	st.Types = len(types)
	for _, r := range s.rels {
		switch {
		case !s.Has(r.From) || !s.Has(r.To):
			st.Dangling++
		case r.Synthetic:
			st.Synthetic++
		default:
			st.Relationships++
		}
	}
	return st
}

// Document is the serializable form of a view.
type Document struct {
	Focus string         `json:"focus,omitempty" yaml:"focus,omitempty"`
	Stats Stats          `json:"stats" yaml:"stats"`
	Nodes []Entity       `json:"nodes" yaml:"nodes"`
	Edges []Relationship `json:"edges" yaml:"edges"`
}

// Document builds the serializable form of the given focus view. Synthetic
// relationships are left out.
func (s *Snapshot) Document(focus string) Document {
	v := s.View(focus)
	doc := Document{Focus: v.Focus, Stats: s.Stats(), Nodes: v.Nodes, Edges: make([]Relationship, 0, len(v.Relationships))}
	for _, r := range v.Relationships {
		if !r.Synthetic {
			doc.Edges = append(doc.Edges, r)
		}
	}
	return doc
}

// ExportDOT returns the view in Graphviz DOT format.
func (s *Snapshot) ExportDOT(focus string) string {
	v := s.View(focus)
	var b strings.Builder
	b.WriteString("digraph graphlens {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, style=\"rounded,filled\", fontcolor=white];\n\n")

	nodes := append([]Entity(nil), v.Nodes...)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	for _, e := range nodes {
		label := e.ID
		if e.Label != "" {
			label += "\\n(" + e.Label + ")"
		}
		b.WriteString(fmt.Sprintf("  %q [label=%q, fillcolor=%q];\n", e.ID, label, Color(e.Label)))
	}

	b.WriteString("\n")
	for _, r := range v.Relationships {
		if r.Synthetic {
			continue
		}
		b.WriteString(fmt.Sprintf("  %q -> %q [label=%q];\n", r.From, r.To, r.Label))
	}

	b.WriteString("}\n")
	return b.String()
}

// ─── Schema discovery ───

// NodeType describes a label seen among loaded entities.
type NodeType struct {
	Name       string   `json:"name" yaml:"name"`
	Properties []string `json:"properties" yaml:"properties"`
	Count      int      `json:"count" yaml:"count"`
}

// EdgeType describes a relationship label seen among loaded relationships.
type EdgeType struct {
	Name  string `json:"name" yaml:"name"`
	From  string `json:"from" yaml:"from"`
	To    string `json:"to" yaml:"to"`
	Count int    `json:"count" yaml:"count"`
}

// DiscoverSchema samples loaded entities and relationships to describe the
// types in play. It stands in for the schema endpoint when that is
// unavailable.
func (s *Snapshot) DiscoverSchema() ([]NodeType, []EdgeType) {
	props := make(map[string]map[string]bool)
	counts := make(map[string]int)
	for _, id := range s.order {
		e := s.entities[id]
		name := e.Label
		if name == "" {
			name = "(unlabeled)"
		}
		if props[name] == nil {
			props[name] = make(map[string]bool)
		}
		counts[name]++
		for k := range e.Props {
			props[name][k] = true
		}
	}
	nodes := make([]NodeType, 0, len(props))
	for name, set := range props {
		nt := NodeType{Name: name, Count: counts[name]}
		for k := range set {
			nt.Properties = append(nt.Properties, k)
		}
		sort.Strings(nt.Properties)
		nodes = append(nodes, nt)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })

	type edgeKey struct{ name, from, to string }
	edgeCounts := make(map[edgeKey]int)
	for _, r := range s.rels {
		if r.Synthetic {
			continue
		}
		from, okFrom := s.entities[r.From]
		to, okTo := s.entities[r.To]
		if !okFrom || !okTo {
			continue
		}
		edgeCounts[edgeKey{r.Label, from.Label, to.Label}]++
	}
	edges := make([]EdgeType, 0, len(edgeCounts))
	for k, n := range edgeCounts {
		edges = append(edges, EdgeType{Name: k.name, From: k.from, To: k.to, Count: n})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Name != edges[j].Name {
			return edges[i].Name < edges[j].Name
		}
		return edges[i].From+edges[i].To < edges[j].From+edges[j].To
	})
	return nodes, edges
}

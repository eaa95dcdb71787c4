package graph

// View is the subset of the graph that is laid out and drawn.
// Every relationship in a view has both endpoints among its nodes.
type View struct {
	Focus         string
	Nodes         []Entity
	Relationships []Relationship

	index map[string]int
}

// Contains reports whether a node id is part of the view.
func (v View) Contains(id string) bool {
	_, ok := v.index[id]
	return ok
}

// Visible returns the relationships whose endpoints both exist. Dangling
// relationships stay in the store and appear once their endpoints arrive.
func (s *Snapshot) Visible() []Relationship {
	out := make([]Relationship, 0, len(s.rels))
	for _, r := range s.rels {
		if s.Has(r.From) && s.Has(r.To) {
			out = append(out, r)
		}
	}
	return out
}

// Neighbors returns the ids connected to id by a non-synthetic relationship
// in either direction, in relationship order, without duplicates.
func (s *Snapshot) Neighbors(id string) []string {
	seen := map[string]bool{id: true}
	var out []string
	for _, r := range s.rels {
		if r.Synthetic {
			continue
		}
		var other string
		switch id {
		case r.From:
			other = r.To
		case r.To:
			other = r.From
		default:
			continue
		}
		if seen[other] || !s.Has(other) {
			continue
		}
		seen[other] = true
		out = append(out, other)
	}
	return out
}

// Degree counts non-synthetic relationships touching id whose other endpoint
// is loaded.
func (s *Snapshot) Degree(id string) int {
	n := 0
	for _, r := range s.rels {
		if r.Synthetic {
			continue
		}
		if (r.From == id && s.Has(r.To)) || (r.To == id && s.Has(r.From)) {
			n++
		}
	}
	return n
}

// View computes the rendered subgraph. With no focus, or a focus id that is
// not loaded, it is the whole graph minus dangling relationships. With a
// focus it is the focused node plus its non-synthetic neighbours, and the
// relationships among them.
func (s *Snapshot) View(focus string) View {
	if focus == "" || !s.Has(focus) {
		v := View{Nodes: s.Entities(), Relationships: s.Visible()}
		v.index = make(map[string]int, len(v.Nodes))
		for i, n := range v.Nodes {
			v.index[n.ID] = i
		}
		return v
	}

	ids := append([]string{focus}, s.Neighbors(focus)...)
	v := View{Focus: focus, index: make(map[string]int, len(ids))}
	for _, id := range ids {
		v.index[id] = len(v.Nodes)
		v.Nodes = append(v.Nodes, s.entities[id])
	}
	for _, r := range s.rels {
		if v.Contains(r.From) && v.Contains(r.To) {
			v.Relationships = append(v.Relationships, r)
		}
	}
	return v
}

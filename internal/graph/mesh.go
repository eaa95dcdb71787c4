package graph

// MeshLabel is the label carried by synthetic type-mesh relationships.
const MeshLabel = "same_type"

// TypeMesh links each entity to the previous entity of the same label,
// forming one chain per type. The relationships are synthetic: they pull
// entities of a type together in the layout and nothing else. Ids depend
// only on the pair, so rebuilding the mesh after a merge only adds the new
// links.
func TypeMesh(entities []Entity) []Relationship {
	last := make(map[string]string)
	var out []Relationship
	for _, e := range entities {
		if e.Label == "" {
			continue
		}
		if prev, ok := last[e.Label]; ok {
			out = append(out, Relationship{
				ID:        "mesh:" + prev + ":" + e.ID,
				From:      prev,
				To:        e.ID,
				Label:     MeshLabel,
				Synthetic: true,
			})
		}
		last[e.Label] = e.ID
	}
	return out
}

package graph

import (
	"fmt"
	"hash/fnv"
	"reflect"
	"sort"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cast"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Entity is a node as returned by the database: an id, a type label and an
// open bag of properties merged from any number of partial responses.
type Entity struct {
	ID    string
	Label string
	Props map[string]any
}

// Relationship is a directed edge between two entities. Synthetic
// relationships exist only to shape the layout and are never real
// connections.
type Relationship struct {
	ID        string `json:"id" yaml:"id"`
	From      string `json:"from" yaml:"from"`
	To        string `json:"to" yaml:"to"`
	Label     string `json:"label" yaml:"label"`
	Synthetic bool   `json:"synthetic,omitempty" yaml:"synthetic,omitempty"`
}

// relNamespace seeds deterministic ids for relationships that arrive without one.
var relNamespace = uuid.MustParse("6f1c7a52-8d0e-4b59-9a55-2b8d3c1e4f70")

// EntityFromMap builds an entity from a decoded JSON object. Records without
// a usable id are rejected. Numeric ids are accepted and stringified.
func EntityFromMap(m map[string]any) (Entity, bool) {
	if m == nil {
		return Entity{}, false
	}
	id, err := cast.ToStringE(m["id"])
	if err != nil || id == "" {
		return Entity{}, false
	}
	e := Entity{ID: id, Props: make(map[string]any, len(m))}
	if label, ok := m["label"].(string); ok {
		e.Label = label
	}
	for k, v := range m {
		if k == "id" || k == "label" {
			continue
		}
		e.Props[k] = v
	}
	return e, true
}

// EntitiesFromItems converts raw result items, skipping anything that is not
// an object with an id.
func EntitiesFromItems(items []any) []Entity {
	out := make([]Entity, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		if e, ok := EntityFromMap(m); ok {
			out = append(out, e)
		}
	}
	return out
}

// RelationshipFromMap builds a relationship from a decoded JSON object.
// Endpoints are read from from/to, from_node/to_node or source/target.
// A missing id is derived from the endpoints and label so that repeated
// deliveries of the same edge deduplicate.
func RelationshipFromMap(m map[string]any) (Relationship, bool) {
	if m == nil {
		return Relationship{}, false
	}
	from := firstString(m, "from", "from_node", "source")
	to := firstString(m, "to", "to_node", "target")
	if from == "" || to == "" {
		return Relationship{}, false
	}
	r := Relationship{From: from, To: to}
	if label, ok := m["label"].(string); ok {
		r.Label = label
	}
	r.ID = cast.ToString(m["id"])
	if r.ID == "" {
		r.ID = uuid.NewSHA1(relNamespace, []byte(from+"\x00"+r.Label+"\x00"+to)).String()
	}
	return r, true
}

// RelationshipsFromItems converts raw result items, skipping anything that
// lacks both endpoints.
func RelationshipsFromItems(items []any) []Relationship {
	out := make([]Relationship, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		if r, ok := RelationshipFromMap(m); ok {
			out = append(out, r)
		}
	}
	return out
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := cast.ToString(m[k]); s != "" {
			return s
		}
	}
	return ""
}

// Get returns a property value. "id" and "label" resolve to the identity fields.
func (e Entity) Get(key string) (any, bool) {
	switch key {
	case "id":
		return e.ID, true
	case "label":
		return e.Label, true
	}
	v, ok := e.Props[key]
	return v, ok
}

// Keys returns the property names in display order: keys ending in "_id"
// first, then alphabetical.
func (e Entity) Keys() []string {
	keys := make([]string, 0, len(e.Props))
	for k := range e.Props {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ai, aj := isIDKey(keys[i]), isIDKey(keys[j])
		if ai != aj {
			return ai
		}
		return keys[i] < keys[j]
	})
	return keys
}

func isIDKey(k string) bool {
	return len(k) > 3 && k[len(k)-3:] == "_id"
}

// merge returns a new entity with other's fields layered over e's.
func (e Entity) merge(other Entity) Entity {
	out := Entity{ID: e.ID, Label: e.Label, Props: make(map[string]any, len(e.Props)+len(other.Props))}
	for k, v := range e.Props {
		out.Props[k] = v
	}
	for k, v := range other.Props {
		out.Props[k] = v
	}
	if other.Label != "" {
		out.Label = other.Label
	}
	return out
}

func (e Entity) equal(other Entity) bool {
	return e.ID == other.ID && e.Label == other.Label && reflect.DeepEqual(e.Props, other.Props)
}

func (e Entity) flat() map[string]any {
	m := make(map[string]any, len(e.Props)+2)
	for k, v := range e.Props {
		m[k] = v
	}
	m["id"] = e.ID
	m["label"] = e.Label
	return m
}

// MarshalJSON flattens the property bag next to id and label.
func (e Entity) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.flat())
}

// MarshalYAML flattens the property bag next to id and label.
func (e Entity) MarshalYAML() (any, error) {
	return e.flat(), nil
}

// UnmarshalJSON accepts a flat JSON object.
func (e *Entity) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	parsed, ok := EntityFromMap(m)
	if !ok {
		return fmt.Errorf("entity without id")
	}
	*e = parsed
	return nil
}

// ─── Colors ───

// Palette holds the label colors, shared with the browser legend.
var Palette = []string{"#2DB682", "#0171E3", "#E07C3A", "#9B59B6", "#E74C3C", "#1ABC9C", "#F1C40F", "#3498DB", "#E91E63", "#00BCD4"}

// Color returns a stable color for a label.
func Color(label string) string {
	h := fnv.New32a()
	h.Write([]byte(label))
	return Palette[h.Sum32()%uint32(len(Palette))]
}

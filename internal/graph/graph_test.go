package graph

import (
	"strings"
	"sync"
	"testing"
)

func ent(id, label string, kv ...any) Entity {
	e := Entity{ID: id, Label: label, Props: map[string]any{}}
	for i := 0; i+1 < len(kv); i += 2 {
		e.Props[kv[i].(string)] = kv[i+1]
	}
	return e
}

func TestMergeEntitiesInsert(t *testing.T) {
	s := NewStore()
	res := s.MergeEntities([]Entity{ent("1", "Doctor", "name", "A")})

	if res.EntitiesAdded != 1 {
		t.Fatalf("expected 1 added, got %d", res.EntitiesAdded)
	}
	snap := s.Snapshot()
	if snap.Len() != 1 {
		t.Fatalf("expected 1 entity, got %d", snap.Len())
	}
	e, ok := snap.Entity("1")
	if !ok {
		t.Fatal("entity 1 not found")
	}
	if e.Label != "Doctor" || e.Props["name"] != "A" {
		t.Errorf("unexpected entity %+v", e)
	}
}

func TestMergeEntitiesIdempotent(t *testing.T) {
	s := NewStore()
	s.MergeEntities([]Entity{ent("1", "Doctor", "name", "A")})
	before := s.Snapshot()

	res := s.MergeEntities([]Entity{ent("1", "Doctor", "name", "A")})
	if res.Changed() {
		t.Errorf("identical merge should not change anything: %+v", res)
	}
	after := s.Snapshot()
	if before != after {
		t.Error("identical merge should keep the same snapshot")
	}
	if after.Len() != 1 {
		t.Errorf("expected 1 entity, got %d", after.Len())
	}
}

func TestMergeEntitiesShallowMerge(t *testing.T) {
	s := NewStore()
	s.MergeEntities([]Entity{ent("1", "Doctor", "name", "A", "age", 40)})
	s.MergeEntities([]Entity{ent("1", "", "name", "B", "ward", "east")})

	e, _ := s.Snapshot().Entity("1")
	if e.Label != "Doctor" {
		t.Errorf("label should survive a partial record, got %q", e.Label)
	}
	if e.Props["name"] != "B" {
		t.Errorf("new field should win, got %v", e.Props["name"])
	}
	if e.Props["age"] != 40 {
		t.Errorf("absent field should be preserved, got %v", e.Props["age"])
	}
	if e.Props["ward"] != "east" {
		t.Errorf("new field should be added, got %v", e.Props["ward"])
	}
}

func TestMergeEntitiesSkipsMissingID(t *testing.T) {
	s := NewStore()
	res := s.MergeEntities([]Entity{{Label: "Doctor"}, ent("2", "Patient")})
	if res.EntitiesAdded != 1 {
		t.Errorf("expected only the record with an id, got %d", res.EntitiesAdded)
	}
}

func TestMergeEntitiesDoesNotAliasInput(t *testing.T) {
	s := NewStore()
	in := ent("1", "Doctor", "name", "A")
	s.MergeEntities([]Entity{in})
	in.Props["name"] = "mutated"

	e, _ := s.Snapshot().Entity("1")
	if e.Props["name"] != "A" {
		t.Errorf("store must not share the caller's map, got %v", e.Props["name"])
	}
}

func TestMergeRelationshipsDedup(t *testing.T) {
	s := NewStore()
	s.MergeRelationships([]Relationship{{ID: "e1", From: "a", To: "b", Label: "treats"}})
	res := s.MergeRelationships([]Relationship{{ID: "e1", From: "x", To: "y", Label: "other"}})

	if res.RelationshipsAdded != 0 {
		t.Errorf("duplicate id should be skipped, got %d added", res.RelationshipsAdded)
	}
	rels := s.Snapshot().Relationships()
	if len(rels) != 1 || rels[0].Label != "treats" {
		t.Errorf("first relationship should win, got %+v", rels)
	}
}

func TestSnapshotsAreImmutable(t *testing.T) {
	s := NewStore()
	s.MergeEntities([]Entity{ent("1", "Doctor")})
	old := s.Snapshot()

	s.Merge([]Entity{ent("2", "Patient")}, []Relationship{{ID: "e1", From: "1", To: "2"}})

	if old.Len() != 1 || len(old.Relationships()) != 0 {
		t.Errorf("old snapshot changed: %d entities, %d relationships", old.Len(), len(old.Relationships()))
	}
	if s.Snapshot().Len() != 2 {
		t.Errorf("expected 2 entities in new snapshot, got %d", s.Snapshot().Len())
	}
}

func TestClear(t *testing.T) {
	s := NewStore()
	s.Merge([]Entity{ent("1", "Doctor")}, []Relationship{{ID: "e1", From: "1", To: "2"}})
	epoch := s.Snapshot().Epoch

	s.Clear()

	snap := s.Snapshot()
	if snap.Len() != 0 || len(snap.Relationships()) != 0 {
		t.Error("clear should empty both collections")
	}
	if snap.Epoch != epoch+1 {
		t.Errorf("expected epoch %d, got %d", epoch+1, snap.Epoch)
	}
}

func TestConcurrentMerges(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i%26))
			s.Merge([]Entity{ent(id, "T")}, []Relationship{{ID: id, From: id, To: "a"}})
			_ = s.Snapshot().Visible()
		}(i)
	}
	wg.Wait()
	if got := s.Snapshot().Len(); got != 26 {
		t.Errorf("expected 26 entities, got %d", got)
	}
}

func TestVisibleFiltersDangling(t *testing.T) {
	s := NewStore()
	s.MergeEntities([]Entity{ent("d1", "Doctor")})
	s.MergeRelationships([]Relationship{{ID: "e1", From: "d1", To: "p1", Label: "treats"}})

	snap := s.Snapshot()
	if len(snap.Relationships()) != 1 {
		t.Fatal("dangling relationship should stay in the store")
	}
	if len(snap.Visible()) != 0 {
		t.Error("dangling relationship should not be visible")
	}

	s.MergeEntities([]Entity{ent("p1", "Patient")})
	if len(s.Snapshot().Visible()) != 1 {
		t.Error("relationship should become visible once both endpoints exist")
	}
}

func TestViewFocus(t *testing.T) {
	s := NewStore()
	s.MergeEntities([]Entity{ent("a", "T"), ent("b", "T"), ent("c", "T"), ent("d", "U")})
	s.MergeRelationships([]Relationship{
		{ID: "ab", From: "a", To: "b"},
		{ID: "ca", From: "c", To: "a"},
		{ID: "bd", From: "b", To: "d"},
		{ID: "mesh", From: "a", To: "d", Synthetic: true},
	})

	v := s.Snapshot().View("a")
	if v.Focus != "a" {
		t.Errorf("expected focus a, got %q", v.Focus)
	}
	got := map[string]bool{}
	for _, n := range v.Nodes {
		got[n.ID] = true
	}
	if len(got) != 3 || !got["a"] || !got["b"] || !got["c"] {
		t.Errorf("expected {a,b,c}, got %v", got)
	}
	for _, r := range v.Relationships {
		if !v.Contains(r.From) || !v.Contains(r.To) {
			t.Errorf("relationship %s escapes the view", r.ID)
		}
	}
	if len(v.Relationships) != 2 {
		t.Errorf("expected 2 relationships, got %d", len(v.Relationships))
	}
}

func TestViewUnknownFocusFallsBack(t *testing.T) {
	s := NewStore()
	s.MergeEntities([]Entity{ent("a", "T"), ent("b", "T")})
	v := s.Snapshot().View("zzz")
	if v.Focus != "" || len(v.Nodes) != 2 {
		t.Errorf("unknown focus should yield the full view, got focus=%q nodes=%d", v.Focus, len(v.Nodes))
	}
}

func TestNeighborsExcludeSynthetic(t *testing.T) {
	s := NewStore()
	s.MergeEntities([]Entity{ent("a", "T"), ent("b", "T"), ent("c", "T")})
	s.MergeRelationships([]Relationship{
		{ID: "ab", From: "a", To: "b"},
		{ID: "ab2", From: "b", To: "a"},
		{ID: "m", From: "a", To: "c", Synthetic: true},
	})
	n := s.Snapshot().Neighbors("a")
	if len(n) != 1 || n[0] != "b" {
		t.Errorf("expected [b], got %v", n)
	}
	if d := s.Snapshot().Degree("a"); d != 2 {
		t.Errorf("expected degree 2, got %d", d)
	}
}

func TestEntityFromMap(t *testing.T) {
	e, ok := EntityFromMap(map[string]any{"id": float64(42), "label": "Doctor", "name": "A"})
	if !ok {
		t.Fatal("expected numeric id to be accepted")
	}
	if e.ID != "42" {
		t.Errorf("expected id 42, got %q", e.ID)
	}
	if _, has := e.Props["id"]; has {
		t.Error("id should not be duplicated into props")
	}

	if _, ok := EntityFromMap(map[string]any{"label": "Doctor"}); ok {
		t.Error("record without id should be rejected")
	}
	if _, ok := EntityFromMap(nil); ok {
		t.Error("nil record should be rejected")
	}
}

func TestRelationshipFromMap(t *testing.T) {
	r, ok := RelationshipFromMap(map[string]any{"from_node": "a", "to_node": "b", "label": "knows"})
	if !ok {
		t.Fatal("expected from_node/to_node to be accepted")
	}
	r2, _ := RelationshipFromMap(map[string]any{"from": "a", "to": "b", "label": "knows"})
	if r.ID == "" || r.ID != r2.ID {
		t.Errorf("derived ids should be stable: %q vs %q", r.ID, r2.ID)
	}
	r3, _ := RelationshipFromMap(map[string]any{"from": "a", "to": "b", "label": "likes"})
	if r3.ID == r.ID {
		t.Error("different labels should derive different ids")
	}
	if _, ok := RelationshipFromMap(map[string]any{"from": "a"}); ok {
		t.Error("relationship without a target should be rejected")
	}
}

func TestItemsSkipMalformed(t *testing.T) {
	items := []any{"str", 3.0, nil, map[string]any{"id": "x"}, map[string]any{"name": "no id"}}
	if got := EntitiesFromItems(items); len(got) != 1 {
		t.Errorf("expected 1 entity, got %d", len(got))
	}
	if got := RelationshipsFromItems(items); len(got) != 0 {
		t.Errorf("expected 0 relationships, got %d", len(got))
	}
}

func TestEntityJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(ent("1", "Doctor", "name", "A"))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var m map[string]any
	json.Unmarshal(data, &m)
	if m["id"] != "1" || m["label"] != "Doctor" || m["name"] != "A" {
		t.Errorf("expected flat object, got %s", data)
	}
}

func TestKeysOrder(t *testing.T) {
	e := ent("1", "T", "zeta", 1, "alpha", 2, "doctor_id", "d")
	keys := e.Keys()
	if keys[0] != "doctor_id" || keys[1] != "alpha" || keys[2] != "zeta" {
		t.Errorf("unexpected order %v", keys)
	}
}

func TestTypeMesh(t *testing.T) {
	mesh := TypeMesh([]Entity{ent("a", "T"), ent("b", "U"), ent("c", "T"), ent("d", "T"), ent("e", "")})
	if len(mesh) != 2 {
		t.Fatalf("expected 2 mesh links, got %d", len(mesh))
	}
	for _, r := range mesh {
		if !r.Synthetic {
			t.Errorf("mesh link %s should be synthetic", r.ID)
		}
	}
	if mesh[0].ID != "mesh:a:c" || mesh[1].ID != "mesh:c:d" {
		t.Errorf("unexpected mesh ids %s, %s", mesh[0].ID, mesh[1].ID)
	}
}

func TestColorStable(t *testing.T) {
	if Color("Doctor") != Color("Doctor") {
		t.Error("color should be deterministic")
	}
}

func TestStatsAndDOT(t *testing.T) {
	s := NewStore()
	s.MergeEntities([]Entity{ent("a", "T"), ent("b", "U")})
	s.MergeRelationships([]Relationship{
		{ID: "ab", From: "a", To: "b", Label: "rel"},
		{ID: "ax", From: "a", To: "x"},
		{ID: "m", From: "a", To: "b", Synthetic: true},
	})
	st := s.Snapshot().Stats()
	if st.Entities != 2 || st.Relationships != 1 || st.Dangling != 1 || st.Synthetic != 1 || st.Types != 2 {
		t.Errorf("unexpected stats %+v", st)
	}

	dot := s.Snapshot().ExportDOT("")
	if !strings.Contains(dot, `"a" -> "b" [label="rel"]`) {
		t.Errorf("missing edge in DOT:\n%s", dot)
	}
	if strings.Contains(dot, "same_type") || strings.Count(dot, "->") != 1 {
		t.Errorf("synthetic or dangling edges leaked into DOT:\n%s", dot)
	}
}

func TestDiscoverSchema(t *testing.T) {
	s := NewStore()
	s.MergeEntities([]Entity{ent("d1", "Doctor", "name", "A"), ent("d2", "Doctor", "ward", "e"), ent("p1", "Patient")})
	s.MergeRelationships([]Relationship{{ID: "t", From: "d1", To: "p1", Label: "treats"}})

	nodes, edges := s.Snapshot().DiscoverSchema()
	if len(nodes) != 2 || nodes[0].Name != "Doctor" || nodes[0].Count != 2 {
		t.Fatalf("unexpected node types %+v", nodes)
	}
	if strings.Join(nodes[0].Properties, ",") != "name,ward" {
		t.Errorf("unexpected properties %v", nodes[0].Properties)
	}
	if len(edges) != 1 || edges[0].From != "Doctor" || edges[0].To != "Patient" {
		t.Errorf("unexpected edge types %+v", edges)
	}
}

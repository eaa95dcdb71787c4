package graph

import (
	"sync"
	"sync/atomic"
)

// Snapshot is an immutable view of the store. Every mutation produces a new
// snapshot; readers holding an older one keep a consistent picture.
// Callers must treat returned slices and property maps as read-only.
type Snapshot struct {
	// Epoch increments on every Clear so that transient UI state keyed by
	// entity id can tell it belongs to a previous graph.
	Epoch uint64
	// Version increments on every mutation that changed something.
	Version uint64

	entities map[string]Entity
	order    []string
	rels     []Relationship
	relIDs   map[string]struct{}
}

func emptySnapshot(epoch, version uint64) *Snapshot {
	return &Snapshot{
		Epoch:    epoch,
		Version:  version,
		entities: make(map[string]Entity),
		relIDs:   make(map[string]struct{}),
	}
}

// Len returns the number of entities.
func (s *Snapshot) Len() int { return len(s.order) }

// Has reports whether an entity with this id exists.
func (s *Snapshot) Has(id string) bool {
	_, ok := s.entities[id]
	return ok
}

// Entity returns the entity for id.
func (s *Snapshot) Entity(id string) (Entity, bool) {
	e, ok := s.entities[id]
	return e, ok
}

// Entities returns all entities in first-merge order.
func (s *Snapshot) Entities() []Entity {
	out := make([]Entity, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entities[id])
	}
	return out
}

// IDs returns all entity ids in first-merge order.
func (s *Snapshot) IDs() []string {
	return s.order
}

// Relationships returns every stored relationship, including dangling and
// synthetic ones.
func (s *Snapshot) Relationships() []Relationship {
	return s.rels
}

// HasRelationship reports whether a relationship id is stored.
func (s *Snapshot) HasRelationship(id string) bool {
	_, ok := s.relIDs[id]
	return ok
}

// MergeResult counts what a merge changed.
type MergeResult struct {
	EntitiesAdded      int
	EntitiesUpdated    int
	RelationshipsAdded int
}

// Changed reports whether the merge produced a new snapshot.
func (r MergeResult) Changed() bool {
	return r.EntitiesAdded+r.EntitiesUpdated+r.RelationshipsAdded > 0
}

// Store owns the canonical entity map and relationship list. Writers are
// serialized; readers load the current snapshot without locking.
type Store struct {
	mu  sync.Mutex
	cur atomic.Pointer[Snapshot]
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{}
	s.cur.Store(emptySnapshot(0, 0))
	return s
}

// Snapshot returns the current immutable view.
func (s *Store) Snapshot() *Snapshot {
	return s.cur.Load()
}

// MergeEntities inserts or shallow-merges entities by id. Fields absent from
// the new record are preserved; fields present in it win. Records without an
// id are ignored.
func (s *Store) MergeEntities(items []Entity) MergeResult {
	return s.Merge(items, nil)
}

// MergeRelationships appends relationships whose id is not yet stored.
// The first delivery of an id wins.
func (s *Store) MergeRelationships(rels []Relationship) MergeResult {
	return s.Merge(nil, rels)
}

// Merge applies entities and relationships as one atomic update so the
// render loop never observes half of a batch.
func (s *Store) Merge(items []Entity, rels []Relationship) MergeResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.cur.Load()
	var res MergeResult

	entities := old.entities
	order := old.order
	copied := false
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		prev, exists := entities[it.ID]
		var next Entity
		if exists {
			next = prev.merge(it)
			if next.equal(prev) {
				continue
			}
		} else {
			next = Entity{}.merge(it)
			next.ID = it.ID
		}
		if !copied {
			entities = make(map[string]Entity, len(old.entities)+len(items))
			for k, v := range old.entities {
				entities[k] = v
			}
			order = append(make([]string, 0, len(old.order)+len(items)), old.order...)
			copied = true
		}
		entities[it.ID] = next
		if exists {
			res.EntitiesUpdated++
		} else {
			order = append(order, it.ID)
			res.EntitiesAdded++
		}
	}

	relList := old.rels
	relIDs := old.relIDs
	relCopied := false
	for _, r := range rels {
		if r.ID == "" {
			continue
		}
		if _, dup := relIDs[r.ID]; dup {
			continue
		}
		if !relCopied {
			relList = append(make([]Relationship, 0, len(old.rels)+len(rels)), old.rels...)
			relIDs = make(map[string]struct{}, len(old.relIDs)+len(rels))
			for k := range old.relIDs {
				relIDs[k] = struct{}{}
			}
			relCopied = true
		}
		relIDs[r.ID] = struct{}{}
		relList = append(relList, r)
		res.RelationshipsAdded++
	}

	if !res.Changed() {
		return res
	}
	s.cur.Store(&Snapshot{
		Epoch:    old.Epoch,
		Version:  old.Version + 1,
		entities: entities,
		order:    order,
		rels:     relList,
		relIDs:   relIDs,
	})
	return res
}

// Clear empties both collections and starts a new epoch.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cur.Load()
	s.cur.Store(emptySnapshot(old.Epoch+1, old.Version+1))
}

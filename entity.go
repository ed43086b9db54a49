package cubez

import "sync"

// EntityId is a 64-bit id, monotonically assigned and never reused within a
// run.
type EntityId uint64

// ComponentInstance pairs a component with the initial bytes to copy into it,
// used when building an EntityAttr.
type ComponentInstance struct {
	Component ComponentId
	Data      []byte
}

// EntityAttr describes the components an entity should be created with.
type EntityAttr struct {
	Components []ComponentInstance
}

// Entity is `{ id, component_set }`: the registry's record of one live
// entity and which components it currently carries. component_set is a
// SparseSet standing in for a bitset of ComponentId.
type Entity struct {
	Id            EntityId
	componentSet  *SparseSet
	pendingDelete bool
}

// Has reports whether the entity currently carries component c.
func (e *Entity) Has(c ComponentId) bool {
	return e.componentSet.Has(uint64(c))
}

// createEntityEvent and destroyEntityEvent are the internal lifecycle
// events staged create/destroy publish at the next scheduler boundary.
// message_size matches the id's own size: they carry exactly one EntityId.
type createEntityEvent struct {
	Entity EntityId
}

type destroyEntityEvent struct {
	Entity EntityId
}

// EntityRegistry allocates entity ids and tracks live entities. Creation and
// destruction are staged through the owning Universe's component registry
// and event bus so that entity lifecycle is itself observable.
//
// destroyMu serializes destroy requests.
type EntityRegistry struct {
	mu        sync.RWMutex
	destroyMu sync.Mutex
	nextId    EntityId
	entities  *SparseMap[Entity]
}

// NewEntityRegistry returns an empty registry.
func NewEntityRegistry() *EntityRegistry {
	return &EntityRegistry{entities: NewSparseMap[Entity]()}
}

// allocate reserves a fresh EntityId and inserts its (initially empty)
// component set. It does not stage components or emit events; callers
// (Universe.EntityCreate) do that using the returned id.
func (r *EntityRegistry) allocate() EntityId {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextId
	r.nextId++
	r.entities.Insert(uint64(id), Entity{Id: id, componentSet: NewSparseSet()})
	return id
}

// Find returns a copy of the live entity for id, or (Entity{}, false)
// if it does not exist or has already been fully destroyed. The Entity
// struct is returned by value, not by interior pointer, but its component
// set is shared with the registry: later markComponent calls for the same
// id are visible through the returned Entity's Has.
func (r *EntityRegistry) Find(id EntityId) (Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e := r.entities.Get(uint64(id))
	if e == nil {
		return Entity{}, false
	}
	return *e, true
}

// markComponent records that entity id now carries (or no longer carries)
// component c in its component_set. It is called after the component
// registry's staging has actually applied the add/remove.
func (r *EntityRegistry) markComponent(id EntityId, c ComponentId, present bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entities.Get(uint64(id))
	if e == nil {
		return
	}
	if present {
		e.componentSet.Insert(uint64(c))
	} else {
		e.componentSet.Erase(uint64(c))
	}
}

// free removes the entity row entirely. Called once all of its components
// have been removed during destruction.
func (r *EntityRegistry) free(id EntityId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities.Erase(uint64(id))
}

// Len returns the number of currently live entities.
func (r *EntityRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entities.Len()
}

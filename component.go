package cubez

import (
	"sync"

	"go.uber.org/zap"
)

// ComponentId is a 64-bit id assigned in registration order.
type ComponentId uint64

// ComponentAttr describes a component to be created. Program is
// resolved to a ProgramId by Universe.ComponentCreate, matching the
// original C API's name-based `qb_componentattr_setprogram`.
type ComponentAttr struct {
	Program  string
	DataSize int
}

// MutateKind distinguishes why a staged mutation was requested, reinstating
// the original engine's qbMutateBy (INSERT/UPDATE/REMOVE/INSERT_OR_UPDATE)
// where callers otherwise only think in terms of "add"/"remove". Flush
// applies MutateRemove as a remove and every other kind as an add; whether
// an add is a fresh insert or an overwrite-with-warning is decided by
// ComponentRegistry.Add from the storage's current contents, not by the kind.
type MutateKind int

const (
	MutateInsert MutateKind = iota
	MutateUpdate
	MutateInsertOrUpdate
	MutateRemove
)

// stagedMutation is one add/remove request captured during a system
// invocation, queued for application at the invocation boundary.
type stagedMutation struct {
	entity    EntityId
	component ComponentId
	kind      MutateKind
	data      []byte
}

// componentStorage is `SparseMap<EntityId, byte[data_size]>`: a dense
// buffer of component records addressed by entity id, plus the record size
// every entry must match.
type componentStorage struct {
	dataSize int
	records  *SparseMap[[]byte]
}

func newComponentStorage(dataSize int) *componentStorage {
	return &componentStorage{dataSize: dataSize, records: NewSparseMap[[]byte]()}
}

// insert copies dataSize bytes from src into the slot for entity, allocating
// a fresh record on first insert and reusing (overwriting) it thereafter.
func (s *componentStorage) insert(entity EntityId, src []byte) {
	if existing := s.records.Get(uint64(entity)); existing != nil {
		copy(*existing, src)
		return
	}
	rec := make([]byte, s.dataSize)
	copy(rec, src)
	s.records.Insert(uint64(entity), rec)
}

func (s *componentStorage) erase(entity EntityId) {
	s.records.Erase(uint64(entity))
}

func (s *componentStorage) has(entity EntityId) bool {
	return s.records.Has(uint64(entity))
}

func (s *componentStorage) get(entity EntityId) []byte {
	if rec := s.records.Get(uint64(entity)); rec != nil {
		return *rec
	}
	return nil
}

func (s *componentStorage) len() int {
	return s.records.Len()
}

// ComponentRegistry owns one storage per registered component type and
// assigns ComponentIds in registration order.
type ComponentRegistry struct {
	mu       sync.RWMutex
	nextId   ComponentId
	storages map[ComponentId]*componentStorage
	sizes    map[ComponentId]int
	log      *zap.Logger
}

// NewComponentRegistry returns an empty registry logging to log (never nil;
// pass zap.NewNop() to silence).
func NewComponentRegistry(log *zap.Logger) *ComponentRegistry {
	return &ComponentRegistry{
		storages: make(map[ComponentId]*componentStorage),
		sizes:    make(map[ComponentId]int),
		log:      log,
	}
}

// Create allocates a new ComponentId with the given fixed record size.
func (r *ComponentRegistry) Create(dataSize int) ComponentId {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextId
	r.nextId++
	r.storages[id] = newComponentStorage(dataSize)
	r.sizes[id] = dataSize
	return id
}

// Storage returns the storage for id, or (nil, ErrUnknownComponent).
func (r *ComponentRegistry) Storage(id ComponentId) (*componentStorage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.storages[id]
	if !ok {
		return nil, newStatusError(StatusUnknownComponent, "id %d", id)
	}
	return s, nil
}

// DataSize returns the fixed record size for id.
func (r *ComponentRegistry) DataSize(id ComponentId) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sz, ok := r.sizes[id]
	if !ok {
		return 0, newStatusError(StatusUnknownComponent, "id %d", id)
	}
	return sz, nil
}

// Add copies data_size bytes from data into the storage slot for entity.
// Adding a component the entity already carries logs at Warn and
// overwrites rather than failing.
func (r *ComponentRegistry) Add(entity EntityId, id ComponentId, data []byte) error {
	storage, err := r.Storage(id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if storage.has(entity) {
		r.log.Warn("component overwrite",
			zap.Uint64("entity", uint64(entity)),
			zap.Uint64("component", uint64(id)))
	}
	storage.insert(entity, data)
	return nil
}

// Remove erases entity's record for component id. Idempotent: removing an
// entity's non-existent component is a no-op.
func (r *ComponentRegistry) Remove(entity EntityId, id ComponentId) error {
	storage, err := r.Storage(id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	storage.erase(entity)
	return nil
}

// Find returns entity's bytes for component id, or (nil, false) if the
// entity does not carry it.
func (r *ComponentRegistry) Find(entity EntityId, id ComponentId) ([]byte, bool) {
	storage, err := r.Storage(id)
	if err != nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !storage.has(entity) {
		return nil, false
	}
	return storage.get(entity), true
}

// stagingList accumulates mutations requested during one system invocation
// and applies them at the invocation boundary. Removes always win
// over a same-frame add for the same (entity, component), regardless of the
// order the two were requested in.
type stagingList struct {
	order []struct {
		entity    EntityId
		component ComponentId
	}
	byKey map[[2]uint64]*stagedMutation
}

func newStagingList() *stagingList {
	return &stagingList{byKey: make(map[[2]uint64]*stagedMutation)}
}

func stagingKey(entity EntityId, component ComponentId) [2]uint64 {
	return [2]uint64{uint64(entity), uint64(component)}
}

// Stage records one requested mutation. If a remove is already staged for
// the same key, a subsequent add is dropped (remove wins); if an add is
// already staged and a remove arrives, the entry becomes a remove.
func (s *stagingList) Stage(entity EntityId, component ComponentId, kind MutateKind, data []byte) {
	key := stagingKey(entity, component)
	if existing, ok := s.byKey[key]; ok {
		if existing.kind == MutateRemove {
			return
		}
		if kind == MutateRemove {
			existing.kind = MutateRemove
			existing.data = nil
			return
		}
		existing.kind = kind
		existing.data = data
		return
	}
	s.byKey[key] = &stagedMutation{entity: entity, component: component, kind: kind, data: data}
	s.order = append(s.order, struct {
		entity    EntityId
		component ComponentId
	}{entity, component})
}

// Flush applies every staged mutation, in first-request order, to cr and
// updates er's per-entity component sets to match.
func (s *stagingList) Flush(cr *ComponentRegistry, er *EntityRegistry) {
	for _, k := range s.order {
		m := s.byKey[stagingKey(k.entity, k.component)]
		switch m.kind {
		case MutateRemove:
			_ = cr.Remove(m.entity, m.component)
			er.markComponent(m.entity, m.component, false)
		default:
			if err := cr.Add(m.entity, m.component, m.data); err == nil {
				er.markComponent(m.entity, m.component, true)
			}
		}
	}
	s.order = s.order[:0]
	s.byKey = make(map[[2]uint64]*stagedMutation)
}

// Empty reports whether no mutations are staged.
func (s *stagingList) Empty() bool {
	return len(s.order) == 0
}

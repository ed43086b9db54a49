package cubez

// JoinMode selects how an instance stream is built from multiple component
// sources.
type JoinMode int

const (
	// JoinInner iterates the smallest source storage; emits a tuple only
	// when every source has the entity.
	JoinInner JoinMode = iota
	// JoinLeft iterates sources[0]; subsequent sources are present-or-
	// absent, absent represented as a nil Instance.Data.
	JoinLeft
	// JoinCross is the Cartesian product across sources, outermost =
	// sources[0]. Refused with ErrInvalidJoin above maxCrossProduct.
	JoinCross
)

// maxCrossProduct is the ceiling above which a CROSS join refuses to build
// its product rather than risk unbounded memory.
const maxCrossProduct = 1 << 20

// Instance is a transient view of one component record, valid for the
// duration of one system invocation. Data is a private copy taken when the
// join was built, so writing to it does not change the stored record. Data
// is nil when the instance represents an absent secondary source in a LEFT
// join.
type Instance struct {
	Entity    EntityId
	Component ComponentId
	Data      []byte
}

// JoinTuple is one row of a join's instance stream: the entity that anchors
// the row (for INNER/LEFT, the matched entity; for CROSS, the entity from
// sources[0]) plus one Instance per source, in source order.
type JoinTuple struct {
	Entity    EntityId
	Instances []Instance
}

// joinIterator is the lazy stream produced by newJoin. It reads from a
// storageSnapshot taken once at construction, so it never touches the live
// component registry and needs no locking of its own during iteration.
type joinIterator interface {
	Next() bool
	Tuple() JoinTuple
}

// storageSnapshot is a point-in-time, fully copied view of one component
// storage: the dense key order and a private copy of every record's bytes.
// Building it is the only part of a join that touches the live
// ComponentRegistry, and it happens entirely under the registry's read
// lock, so a join's iteration can never race with a concurrent Add/Remove
// on the same component from another program's tick.
type storageSnapshot struct {
	keys   []uint64
	values map[uint64][]byte
}

func snapshotStorage(s *componentStorage) *storageSnapshot {
	live := s.records.Keys()
	keys := make([]uint64, len(live))
	copy(keys, live)

	values := make(map[uint64][]byte, len(keys))
	for _, k := range keys {
		if rec := s.records.Get(k); rec != nil {
			data := make([]byte, len(*rec))
			copy(data, *rec)
			values[k] = data
		}
	}
	return &storageSnapshot{keys: keys, values: values}
}

func (s *storageSnapshot) len() int { return len(s.keys) }

func (s *storageSnapshot) get(entity EntityId) []byte {
	return s.values[uint64(entity)]
}

// snapshotSources resolves every source under a single hold of cr's read
// lock and copies each one's records, so the returned snapshots reflect one
// consistent instant even though the storages themselves may be mutated by
// other programs the moment the lock is released.
func snapshotSources(cr *ComponentRegistry, sources []ComponentId) ([]*storageSnapshot, error) {
	cr.mu.RLock()
	defer cr.mu.RUnlock()

	snapshots := make([]*storageSnapshot, len(sources))
	for i, id := range sources {
		s, ok := cr.storages[id]
		if !ok {
			return nil, newStatusError(StatusUnknownComponent, "id %d", id)
		}
		snapshots[i] = snapshotStorage(s)
	}
	return snapshots, nil
}

// newJoin builds the lazy instance stream for sources under mode. cr
// resolves each ComponentId to its storage and every source's records are
// snapshotted before the iterator is returned.
func newJoin(cr *ComponentRegistry, sources []ComponentId, mode JoinMode) (joinIterator, error) {
	if len(sources) == 0 {
		return &emptyJoin{}, nil
	}
	snapshots, err := snapshotSources(cr, sources)
	if err != nil {
		return nil, err
	}
	switch mode {
	case JoinInner:
		return newInnerJoin(sources, snapshots), nil
	case JoinLeft:
		return newLeftJoin(sources, snapshots), nil
	case JoinCross:
		return newCrossJoin(sources, snapshots)
	default:
		return newInnerJoin(sources, snapshots), nil
	}
}

type emptyJoin struct{}

func (*emptyJoin) Next() bool       { return false }
func (*emptyJoin) Tuple() JoinTuple { return JoinTuple{} }

// innerJoin iterates the smallest source's dense key order and probes the
// rest, emitting only entities present in all sources.
type innerJoin struct {
	sources   []ComponentId
	snapshots []*storageSnapshot
	driver    []uint64
	idx       int
	current   JoinTuple
}

func newInnerJoin(sources []ComponentId, snapshots []*storageSnapshot) *innerJoin {
	smallest := 0
	for i := 1; i < len(snapshots); i++ {
		if snapshots[i].len() < snapshots[smallest].len() {
			smallest = i
		}
	}
	driver := make([]uint64, len(snapshots[smallest].keys))
	copy(driver, snapshots[smallest].keys)
	return &innerJoin{sources: sources, snapshots: snapshots, driver: driver, idx: -1}
}

func (j *innerJoin) Next() bool {
	for {
		j.idx++
		if j.idx >= len(j.driver) {
			return false
		}
		entity := EntityId(j.driver[j.idx])
		instances := make([]Instance, len(j.sources))
		matched := true
		for i, s := range j.snapshots {
			rec := s.get(entity)
			if rec == nil {
				matched = false
				break
			}
			instances[i] = Instance{Entity: entity, Component: j.sources[i], Data: rec}
		}
		if !matched {
			continue
		}
		j.current = JoinTuple{Entity: entity, Instances: instances}
		return true
	}
}

func (j *innerJoin) Tuple() JoinTuple { return j.current }

// leftJoin iterates sources[0] and probes the rest, emitting a present or
// absent Instance for each.
type leftJoin struct {
	sources   []ComponentId
	snapshots []*storageSnapshot
	driver    []uint64
	idx       int
	current   JoinTuple
}

func newLeftJoin(sources []ComponentId, snapshots []*storageSnapshot) *leftJoin {
	driver := make([]uint64, len(snapshots[0].keys))
	copy(driver, snapshots[0].keys)
	return &leftJoin{sources: sources, snapshots: snapshots, driver: driver, idx: -1}
}

func (j *leftJoin) Next() bool {
	j.idx++
	if j.idx >= len(j.driver) {
		return false
	}
	entity := EntityId(j.driver[j.idx])
	instances := make([]Instance, len(j.sources))
	for i, s := range j.snapshots {
		instances[i] = Instance{Entity: entity, Component: j.sources[i], Data: s.get(entity)}
	}
	j.current = JoinTuple{Entity: entity, Instances: instances}
	return true
}

func (j *leftJoin) Tuple() JoinTuple { return j.current }

// crossJoin is the Cartesian product across sources, outermost = sources[0].
type crossJoin struct {
	sources   []ComponentId
	snapshots []*storageSnapshot
	keys      [][]uint64
	counters  []int
	started   bool
	current   JoinTuple
}

func newCrossJoin(sources []ComponentId, snapshots []*storageSnapshot) (*crossJoin, error) {
	product := 1
	keys := make([][]uint64, len(snapshots))
	for i, s := range snapshots {
		keys[i] = s.keys
		product *= max(1, len(keys[i]))
		if product > maxCrossProduct {
			return nil, newStatusError(StatusInvalidJoin,
				"cross product of %d sources exceeds ceiling %d", len(sources), maxCrossProduct)
		}
	}
	return &crossJoin{
		sources:   sources,
		snapshots: snapshots,
		keys:      keys,
		counters:  make([]int, len(snapshots)),
	}, nil
}

func (j *crossJoin) Next() bool {
	for _, k := range j.keys {
		if len(k) == 0 {
			return false
		}
	}
	if !j.started {
		j.started = true
	} else if !j.advance() {
		return false
	}
	instances := make([]Instance, len(j.sources))
	for i, s := range j.snapshots {
		entity := EntityId(j.keys[i][j.counters[i]])
		instances[i] = Instance{Entity: entity, Component: j.sources[i], Data: s.get(entity)}
	}
	j.current = JoinTuple{Entity: instances[0].Entity, Instances: instances}
	return true
}

// advance increments the odometer of counters, innermost = last source,
// returning false once every combination has been produced.
func (j *crossJoin) advance() bool {
	for i := len(j.counters) - 1; i >= 0; i-- {
		j.counters[i]++
		if j.counters[i] < len(j.keys[i]) {
			return true
		}
		j.counters[i] = 0
	}
	return false
}

func (j *crossJoin) Tuple() JoinTuple { return j.current }

package cubez

import (
	"testing"

	"go.uber.org/zap"
)

// go test -run ^TestComponentRegistryCreateAddFind$ . -count 1
func TestComponentRegistryCreateAddFind(t *testing.T) {
	cr := NewComponentRegistry(zap.NewNop())
	id := cr.Create(4)

	if err := cr.Add(EntityId(1), id, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	data, ok := cr.Find(EntityId(1), id)
	if !ok {
		t.Fatal("expected component to be found")
	}
	if len(data) != 4 || data[0] != 1 || data[3] != 4 {
		t.Errorf("unexpected data: %v", data)
	}
}

// go test -run ^TestComponentRegistryUnknownComponent$ . -count 1
func TestComponentRegistryUnknownComponent(t *testing.T) {
	cr := NewComponentRegistry(zap.NewNop())
	_, err := cr.Storage(ComponentId(99))
	if err == nil {
		t.Fatal("expected error for unknown component")
	}
}

// go test -run ^TestComponentRegistryRemoveIdempotent$ . -count 1
func TestComponentRegistryRemoveIdempotent(t *testing.T) {
	cr := NewComponentRegistry(zap.NewNop())
	id := cr.Create(4)
	if err := cr.Remove(EntityId(1), id); err != nil {
		t.Fatalf("removing a component the entity never had should be a no-op, got %v", err)
	}
	if err := cr.Add(EntityId(1), id, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	if err := cr.Remove(EntityId(1), id); err != nil {
		t.Fatal(err)
	}
	if _, ok := cr.Find(EntityId(1), id); ok {
		t.Error("expected component gone after remove")
	}
	if err := cr.Remove(EntityId(1), id); err != nil {
		t.Fatalf("second remove should still be a no-op, got %v", err)
	}
}

// go test -run ^TestStagingListRemoveWinsOverAdd$ . -count 1
func TestStagingListRemoveWinsOverAdd(t *testing.T) {
	cr := NewComponentRegistry(zap.NewNop())
	er := NewEntityRegistry()
	id := cr.Create(4)
	entity := er.allocate()

	staging := newStagingList()
	staging.Stage(entity, id, MutateInsertOrUpdate, []byte{1, 1, 1, 1})
	staging.Stage(entity, id, MutateRemove, nil)
	staging.Flush(cr, er)

	if _, ok := cr.Find(entity, id); ok {
		t.Error("expected remove to win over a same-frame add")
	}
}

// go test -run ^TestStagingListAddAfterRemoveIsDropped$ . -count 1
func TestStagingListAddAfterRemoveIsDropped(t *testing.T) {
	cr := NewComponentRegistry(zap.NewNop())
	er := NewEntityRegistry()
	id := cr.Create(4)
	entity := er.allocate()

	staging := newStagingList()
	staging.Stage(entity, id, MutateRemove, nil)
	staging.Stage(entity, id, MutateInsertOrUpdate, []byte{9, 9, 9, 9})
	staging.Flush(cr, er)

	if _, ok := cr.Find(entity, id); ok {
		t.Error("expected an add requested after a remove to still be dropped")
	}
}

// go test -run ^TestStagingListFlushUpdatesComponentSet$ . -count 1
func TestStagingListFlushUpdatesComponentSet(t *testing.T) {
	cr := NewComponentRegistry(zap.NewNop())
	er := NewEntityRegistry()
	id := cr.Create(4)
	entity := er.allocate()

	staging := newStagingList()
	staging.Stage(entity, id, MutateInsertOrUpdate, []byte{1, 2, 3, 4})
	staging.Flush(cr, er)

	e, ok := er.Find(entity)
	if !ok {
		t.Fatal("expected entity to exist")
	}
	if !e.Has(id) {
		t.Error("expected entity's component set to reflect the flushed add")
	}
}

package cubez

import "testing"

// go test -run ^TestSparseSetInsertHasErase$ . -count 1
func TestSparseSetInsertHasErase(t *testing.T) {
	s := NewSparseSet()
	s.Insert(3)
	s.Insert(1)
	s.Insert(7)

	if !s.Has(3) || !s.Has(1) || !s.Has(7) {
		t.Fatal("expected inserted keys to be present")
	}
	if s.Has(2) {
		t.Error("expected key 2 to be absent")
	}
	if s.Len() != 3 {
		t.Errorf("expected len 3, got %d", s.Len())
	}

	s.Erase(1)
	if s.Has(1) {
		t.Error("expected key 1 to be gone after erase")
	}
	if s.Len() != 2 {
		t.Errorf("expected len 2 after erase, got %d", s.Len())
	}

	// erasing an absent key is a no-op
	s.Erase(1)
	if s.Len() != 2 {
		t.Errorf("expected len unchanged after erasing absent key, got %d", s.Len())
	}
}

// go test -run ^TestSparseSetInsertIdempotent$ . -count 1
func TestSparseSetInsertIdempotent(t *testing.T) {
	s := NewSparseSet()
	s.Insert(5)
	s.Insert(5)
	if s.Len() != 1 {
		t.Errorf("expected len 1 after duplicate insert, got %d", s.Len())
	}
}

// go test -run ^TestSparseSetEraseSwapsWithLast$ . -count 1
func TestSparseSetEraseSwapsWithLast(t *testing.T) {
	s := NewSparseSet()
	s.Insert(10)
	s.Insert(20)
	s.Insert(30)

	s.Erase(10)

	var seen []uint64
	s.Each(func(key uint64) { seen = append(seen, key) })
	if len(seen) != 2 {
		t.Fatalf("expected 2 keys remaining, got %d", len(seen))
	}
	for _, k := range seen {
		if k == 10 {
			t.Error("erased key 10 should not appear in Each")
		}
	}
	// the last key (30) is swapped into the erased slot 0
	if seen[0] != 30 || seen[1] != 20 {
		t.Errorf("expected dense order [30 20] after swap-with-last, got %v", seen)
	}
}

// go test -run ^TestSparseMapInsertGetOverwrite$ . -count 1
func TestSparseMapInsertGetOverwrite(t *testing.T) {
	m := NewSparseMap[string]()
	m.Insert(1, "a")
	m.Insert(2, "b")

	if v := m.Get(1); v == nil || *v != "a" {
		t.Fatalf("expected value 'a' at key 1, got %v", v)
	}

	m.Insert(1, "z")
	if v := m.Get(1); v == nil || *v != "z" {
		t.Fatalf("expected overwritten value 'z' at key 1, got %v", v)
	}
	if m.Len() != 2 {
		t.Errorf("expected len 2 after overwrite, got %d", m.Len())
	}
}

// go test -run ^TestSparseMapEraseKeepsOtherEntries$ . -count 1
func TestSparseMapEraseKeepsOtherEntries(t *testing.T) {
	m := NewSparseMap[int]()
	m.Insert(1, 100)
	m.Insert(2, 200)
	m.Insert(3, 300)

	m.Erase(2)
	if m.Has(2) {
		t.Error("expected key 2 to be erased")
	}
	if m.Get(1) == nil || *m.Get(1) != 100 {
		t.Error("expected key 1's value to survive an unrelated erase")
	}
	if m.Get(3) == nil || *m.Get(3) != 300 {
		t.Error("expected key 3's value to survive an unrelated erase")
	}
	if m.Len() != 2 {
		t.Errorf("expected len 2, got %d", m.Len())
	}
}

// go test -run ^TestSparseMapGetAbsent$ . -count 1
func TestSparseMapGetAbsent(t *testing.T) {
	m := NewSparseMap[int]()
	if m.Get(42) != nil {
		t.Error("expected nil for an absent key")
	}
}

// go test -run ^TestSparseMapClear$ . -count 1
func TestSparseMapClear(t *testing.T) {
	m := NewSparseMap[int]()
	m.Insert(1, 1)
	m.Insert(2, 2)
	m.Clear()
	if m.Len() != 0 {
		t.Errorf("expected len 0 after clear, got %d", m.Len())
	}
	if m.Has(1) {
		t.Error("expected key 1 gone after clear")
	}
	m.Insert(1, 99)
	if v := m.Get(1); v == nil || *v != 99 {
		t.Error("expected map usable again after clear")
	}
}

package util

import (
	"testing"
)

func TestMapHeapOrdering(t *testing.T) {
	h := NewMapHeap()

	// insert out of order
	priorities := []uint64{5, 1, 9, 3, 7, 2, 8, 4, 6}
	for i, p := range priorities {
		h.AddItem(uint64(i), p)
	}

	if h.Len() != len(priorities) {
		t.Fatalf("Expected %d items, got %d", len(priorities), h.Len())
	}

	// items must pop in ascending priority order
	var last uint64
	for i := 0; i < len(priorities); i++ {
		item, ok := h.PopMin()
		if !ok {
			t.Fatalf("PopMin failed at %d", i)
		}
		if i > 0 && item.Priority < last {
			t.Errorf("Heap order violated: %d after %d", item.Priority, last)
		}
		last = item.Priority
	}

	if _, ok := h.PopMin(); ok {
		t.Error("PopMin on empty heap should return false")
	}
}

func TestMapHeapPeek(t *testing.T) {
	h := NewMapHeap()

	if _, ok := h.Peek(); ok {
		t.Error("Peek on empty heap should return false")
	}

	h.AddItem(100, 42)
	h.AddItem(200, 7)

	item, ok := h.Peek()
	if !ok {
		t.Fatal("Peek failed on non-empty heap")
	}
	if item.Key != 200 || item.Priority != 7 {
		t.Errorf("Peek returned %v, expected key=200 priority=7", item)
	}

	// Peek must not remove
	if h.Len() != 2 {
		t.Errorf("Peek removed an item, len=%d", h.Len())
	}
}

func TestMapHeapKeyAccess(t *testing.T) {
	h := NewMapHeap()

	h.AddItem(1, 10)
	h.AddItem(2, 20)
	h.AddItem(3, 30)

	if !h.Contains(2) {
		t.Error("Contains(2) should be true")
	}

	prio, ok := h.RemoveByKey(2)
	if !ok || prio != 20 {
		t.Errorf("RemoveByKey(2) = (%d, %v), expected (20, true)", prio, ok)
	}

	if h.Contains(2) {
		t.Error("Contains(2) should be false after removal")
	}

	if _, ok := h.RemoveByKey(99); ok {
		t.Error("RemoveByKey on missing key should return false")
	}

	// updating an existing key re-orders the heap
	h.AddItem(3, 1)
	item, _ := h.Peek()
	if item.Key != 3 {
		t.Errorf("Expected key 3 at top after priority update, got %d", item.Key)
	}
}

package txn

import (
	"sync"
	"testing"
)

func TestGoroutineIDStable(t *testing.T) {
	first := goroutineID()
	second := goroutineID()

	if first != second {
		t.Errorf("Expected stable id on the same goroutine, got %d and %d", first, second)
	}
}

func TestGoroutineIDDistinct(t *testing.T) {
	const numGoroutines = 32

	var mu sync.Mutex
	seen := make(map[uint64]int)

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := goroutineID()

			mu.Lock()
			seen[id]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != numGoroutines {
		t.Errorf("Expected %d distinct ids, got %d", numGoroutines, len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("Id %d observed %d times", id, count)
		}
	}
}

func TestRegistryAttachDetach(t *testing.T) {
	r := newRegistry()
	ctx := &Context{id: "test"}

	if _, ok := r.current(1); ok {
		t.Errorf("Expected no binding for unknown goroutine")
	}

	r.attach(1, ctx)
	if got, ok := r.current(1); !ok || got != ctx {
		t.Errorf("Expected attached context to be returned")
	}

	r.detach(1)
	if _, ok := r.current(1); ok {
		t.Errorf("Expected binding to be gone after detach")
	}
}

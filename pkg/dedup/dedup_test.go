package dedup

import (
	"fmt"
	"sync"
	"testing"
)

func TestSeen(t *testing.T) {
	w := New(3)

	if w.Seen("a") {
		t.Error("first sighting of a should be false")
	}
	if !w.Seen("a") {
		t.Error("second sighting of a should be true")
	}

	w.Seen("b")
	w.Seen("c")
	// Window is full; the next new id evicts "a".
	w.Seen("d")

	if w.Seen("a") {
		t.Error("a should have been evicted")
	}
	if !w.Seen("d") {
		t.Error("d should still be tracked")
	}
	if w.Len() != 3 {
		t.Errorf("Len = %d, want 3", w.Len())
	}
}

func TestDefaultCapacity(t *testing.T) {
	w := New(0)
	for i := 0; i < 1000; i++ {
		w.Seen(fmt.Sprintf("id-%d", i))
	}
	if !w.Seen("id-0") {
		t.Error("id-0 should still be within the default 1000-entry window")
	}
	// One more new id pushes the oldest out.
	w.Seen("id-1000")
	if !w.Seen("id-1") {
		t.Error("id-1 should still be tracked")
	}
	if w.Len() != 1000 {
		t.Errorf("Len = %d, want 1000", w.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	w := New(100)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				w.Seen(fmt.Sprintf("g%d-%d", g, i))
			}
		}(g)
	}
	wg.Wait()
	if w.Len() != 100 {
		t.Errorf("Len = %d, want 100", w.Len())
	}
}

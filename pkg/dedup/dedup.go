// Package dedup keeps a bounded set of recently seen message ids for
// best-effort duplicate-delivery suppression at the transport boundary.
// It is not a substitute for idempotent storage operations.
package dedup

import "sync"

// Window remembers the most recent capacity ids. Safe for concurrent use.
type Window struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]struct{}
	order    []string
	next     int
}

// New creates a window holding up to capacity ids (defaults to 1000).
func New(capacity int) *Window {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Window{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
		order:    make([]string, capacity),
	}
}

// Seen records id and reports whether it was already present. The oldest
// id is evicted once the window is full.
func (w *Window) Seen(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.seen[id]; ok {
		return true
	}

	if evicted := w.order[w.next]; evicted != "" {
		delete(w.seen, evicted)
	}
	w.order[w.next] = id
	w.next = (w.next + 1) % w.capacity
	w.seen[id] = struct{}{}
	return false
}

// Len returns the number of ids currently tracked.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}

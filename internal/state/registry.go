package state

import "sync"

// Registry is the append-only set of users that have talked to the bot.
type Registry struct {
	mu    sync.RWMutex
	seen  map[int64]struct{}
	order []int64
}

func NewRegistry() *Registry {
	return &Registry{seen: map[int64]struct{}{}}
}

// Add inserts id and reports whether it was new.
func (r *Registry) Add(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[id]; ok {
		return false
	}
	r.seen[id] = struct{}{}
	r.order = append(r.order, id)
	return true
}

func (r *Registry) Contains(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.seen[id]
	return ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Snapshot returns a copy of all ids in insertion order.
func (r *Registry) Snapshot() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int64, len(r.order))
	copy(out, r.order)
	return out
}

package engine

import "sync"

// lockRegistry serializes all mutations of a single workflow instance within
// one process. Locks are never removed; the per-instance footprint is one
// mutex and instances are bounded by the entity population.
type lockRegistry struct {
	locks sync.Map
}

// acquire locks the instance and returns the unlock function.
func (r *lockRegistry) acquire(instanceID string) func() {
	value, _ := r.locks.LoadOrStore(instanceID, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()

	return mu.Unlock
}

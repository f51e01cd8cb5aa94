// internal/app/system/keylock/keylock.go

// Package keylock provides mutual exclusion scoped to string keys. The
// renewal engine uses it to serialize mutations on the same group or the
// same code while leaving unrelated keys free to proceed in parallel.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Keyed hands out one mutex per key. Entries are created on demand and
// dropped when the last holder unlocks, so the map stays bounded by the
// number of in-flight operations.
type Keyed struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// New creates an empty Keyed lock set.
func New() *Keyed {
	return &Keyed{locks: make(map[string]*entry)}
}

// Lock blocks until the key's mutex is held and returns the unlock func.
// The unlock func must be called exactly once.
func (k *Keyed) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

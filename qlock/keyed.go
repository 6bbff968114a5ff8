// Package qlock provides reader/writer locks keyed by string.
package qlock

import "sync"

// Keyed hands out one RWMutex per key. Entries are reference counted and
// removed when the last holder unlocks, so the map only holds keys in use.
// Operations on distinct keys never contend beyond a short map lookup.
// The zero value is ready to use.
type Keyed struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	rw   sync.RWMutex
	refs int
}

func (k *Keyed) acquire(key string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.locks == nil {
		k.locks = make(map[string]*entry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	return e
}

func (k *Keyed) release(key string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}

// Lock takes the exclusive lock for key and returns its unlock function.
func (k *Keyed) Lock(key string) (unlock func()) {
	e := k.acquire(key)
	e.rw.Lock()
	return func() {
		e.rw.Unlock()
		k.release(key, e)
	}
}

// RLock takes a shared lock for key and returns its unlock function.
func (k *Keyed) RLock(key string) (unlock func()) {
	e := k.acquire(key)
	e.rw.RLock()
	return func() {
		e.rw.RUnlock()
		k.release(key, e)
	}
}

// Len reports how many keys currently have holders or waiters.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return len(k.locks)
}

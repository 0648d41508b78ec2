package runner

import "sync"

// keyLocks provides per-key mutual exclusion: at most one in-flight
// evaluation or blend per key, without a global lock across keys. Entries
// are reference-counted so the map does not grow with the keyspace.
type keyLocks struct {
	mu   sync.Mutex
	held map[string]*lockEntry
}

type lockEntry struct {
	refs int
	sem  chan struct{}
}

func newKeyLocks() *keyLocks {
	return &keyLocks{held: make(map[string]*lockEntry)}
}

func (k *keyLocks) Lock(key string) {
	k.mu.Lock()
	e, ok := k.held[key]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		k.held[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.sem <- struct{}{}
}

func (k *keyLocks) Unlock(key string) {
	k.mu.Lock()
	e := k.held[key]
	e.refs--
	if e.refs == 0 {
		delete(k.held, key)
	}
	k.mu.Unlock()

	<-e.sem
}

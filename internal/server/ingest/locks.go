package ingest

import "sync"

// nameLocks serializes uploads that target the same final path, so two
// requests never interleave writes into one partial file.
type nameLocks struct {
	mu sync.Mutex
	m  map[string]*nameLock
}

type nameLock struct {
	mu   sync.Mutex
	refs int
}

func newNameLocks() *nameLocks {
	return &nameLocks{m: make(map[string]*nameLock)}
}

// Lock blocks until name is free and returns the matching unlock func.
func (l *nameLocks) Lock(name string) func() {
	l.mu.Lock()
	e, ok := l.m[name]
	if !ok {
		e = &nameLock{}
		l.m[name] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.m, name)
		}
		l.mu.Unlock()
	}
}

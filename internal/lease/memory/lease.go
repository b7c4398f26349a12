// Package memory implements an in-process keyed lease.
package memory

import (
	"context"
	"sync"
)

// Lease serializes publish attempts within a single process. It is the
// default backend for development and tests; multi-process deployments use
// the flock or postgres backends instead.
type Lease struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// New returns an empty Lease.
func New() *Lease {
	return &Lease{held: make(map[string]struct{})}
}

// TryAcquire claims the key if free. The returned release function is
// idempotent.
func (l *Lease) TryAcquire(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[key]; taken {
		return nil, false, nil
	}
	l.held[key] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}
	return release, true, nil
}

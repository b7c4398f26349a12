// Package postgres implements a keyed lease on Postgres advisory locks so
// publish attempts serialize across processes sharing the item store.
package postgres

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Lease maps each group key to a session advisory lock. The lock lives on
// a dedicated connection so releasing it cannot race with pool reuse.
type Lease struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) (*Lease, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Lease{pool: pool}, nil
}

// TryAcquire claims pg_try_advisory_lock for the key's 64-bit hash. The
// connection is pinned until release runs.
func (l *Lease) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	lockID := keyHash(key)
	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&locked); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, false, nil
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// Background context: release must work even after the request
			// context is done.
			_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", lockID)
			conn.Release()
		})
	}
	return release, true, nil
}

func keyHash(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

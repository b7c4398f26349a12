// Package flock implements a file-based keyed lease for single-host,
// multi-process deployments.
package flock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/JakeFAU/translation-progress/internal/hash/sha256"
)

// Lease backs each group key with an advisory file lock under BaseDir.
// Keys are hashed into filenames since group key values are untrusted.
type Lease struct {
	baseDir string
	hasher  *sha256.Hasher
}

// New creates the base directory if needed and returns a Lease.
func New(baseDir string) (*Lease, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("lease base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create lease directory: %w", err)
	}
	return &Lease{baseDir: baseDir, hasher: sha256.New()}, nil
}

// TryAcquire takes the file lock for the key without blocking.
func (l *Lease) TryAcquire(_ context.Context, key string) (func(), bool, error) {
	digest, err := l.hasher.HashString(key)
	if err != nil {
		return nil, false, fmt.Errorf("hash lease key: %w", err)
	}
	path := filepath.Join(l.baseDir, digest+".lock")

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("try file lock: %w", err)
	}
	if !locked {
		return nil, false, nil
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// Unlock errors leave a stale lock file; the next TryLock
			// still succeeds once the holding process exits.
			_ = fl.Unlock()
		})
	}
	return release, true, nil
}

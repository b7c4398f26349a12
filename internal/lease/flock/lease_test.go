package flock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresBaseDir(t *testing.T) {
	t.Parallel()

	_, err := New("")
	require.Error(t, err)
}

func TestTryAcquireExcludesSecondHolder(t *testing.T) {
	t.Parallel()

	l, err := New(t.TempDir())
	require.NoError(t, err)

	release, held, err := l.TryAcquire(context.Background(), "publish/7/A\x1fB")
	require.NoError(t, err)
	require.True(t, held)

	_, held2, err := l.TryAcquire(context.Background(), "publish/7/A\x1fB")
	require.NoError(t, err)
	require.False(t, held2)

	release()

	release3, held3, err := l.TryAcquire(context.Background(), "publish/7/A\x1fB")
	require.NoError(t, err)
	require.True(t, held3)
	release3()
}

func TestKeysAreIndependent(t *testing.T) {
	t.Parallel()

	l, err := New(t.TempDir())
	require.NoError(t, err)

	releaseA, heldA, err := l.TryAcquire(context.Background(), "publish/7/A")
	require.NoError(t, err)
	require.True(t, heldA)
	defer releaseA()

	releaseB, heldB, err := l.TryAcquire(context.Background(), "publish/7/B")
	require.NoError(t, err)
	require.True(t, heldB)
	defer releaseB()
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	l, err := New(t.TempDir())
	require.NoError(t, err)

	release, held, err := l.TryAcquire(context.Background(), "publish/7/C")
	require.NoError(t, err)
	require.True(t, held)

	release()
	release()
}

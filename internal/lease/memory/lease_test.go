package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTryAcquireExclusive(t *testing.T) {
	t.Parallel()

	l := New()
	ctx := context.Background()

	release, held, err := l.TryAcquire(ctx, "track-7/A/B")
	require.NoError(t, err)
	require.True(t, held)

	_, held2, err := l.TryAcquire(ctx, "track-7/A/B")
	require.NoError(t, err)
	require.False(t, held2)

	// Different key is independent.
	release3, held3, err := l.TryAcquire(ctx, "track-7/A/C")
	require.NoError(t, err)
	require.True(t, held3)
	release3()

	release()
	release() // idempotent

	release4, held4, err := l.TryAcquire(ctx, "track-7/A/B")
	require.NoError(t, err)
	require.True(t, held4)
	release4()
}

package pool_test

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	pool "github.com/cuttlepool/cuttlepool"
)

// TestTracker_AvailableAfterReturn exercises the tracker lifecycle
// indirectly through the public Pool API: a tracker's availability
// follows its wrapper's lifetime, not the resource's.
func TestTracker_AvailableAfterReturn(t *testing.T) {
	t.Parallel()
	factory, _ := newCounterFactory()
	p, err := pool.New(factory, 1)
	require.NoError(t, err)

	require.True(t, p.Empty())

	r, err := p.Get(context.Background())
	require.NoError(t, err)
	require.True(t, p.Empty())

	require.NoError(t, r.Close())
	require.False(t, p.Empty())
}

func TestTracker_BecomesAvailableWhenWrapperIsCollected(t *testing.T) {
	factory, _ := newCounterFactory()
	p, err := pool.New(factory, 1)
	require.NoError(t, err)

	func() {
		_, err := p.Get(context.Background())
		require.NoError(t, err)
	}()

	require.True(t, p.Empty(), "tracker is still in the unavailable region until harvested")

	runtime.GC()
	runtime.GC()
	p.HarvestLostResources()

	require.False(t, p.Empty())
	require.Equal(t, 1, p.Size())
}

package pool_test

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	pool "github.com/cuttlepool/cuttlepool"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("time.Sleep"),
	)
}

type resource struct {
	id   int64
	x    int
	open bool
}

func newCounterFactory() (pool.Factory[resource], *int64) {
	var ctrCalls int64
	var nextID int64
	factory := func(_ context.Context, _ map[string]any) (resource, error) {
		atomic.AddInt64(&ctrCalls, 1)
		return resource{id: atomic.AddInt64(&nextID, 1), open: true}, nil
	}
	return factory, &ctrCalls
}

func TestGet_BasicCheckout(t *testing.T) {
	t.Parallel()
	factory, ctrCalls := newCounterFactory()
	p, err := pool.New(factory, 1, pool.WithOverflow[resource](1))
	require.NoError(t, err)

	r, err := p.Get(context.Background())
	require.NoError(t, err)
	v, err := r.Get()
	require.NoError(t, err)
	v.x = 1
	require.Equal(t, 1, v.x)

	require.NoError(t, r.Close())
	require.Equal(t, 1, p.Available())
	require.Equal(t, int64(1), atomic.LoadInt64(ctrCalls))
}

func TestGet_ReusesReturnedResource(t *testing.T) {
	t.Parallel()
	factory, ctrCalls := newCounterFactory()
	p, err := pool.New(factory, 1)
	require.NoError(t, err)

	r1, err := p.Get(context.Background())
	require.NoError(t, err)
	v1 := r1.MustGet()
	firstID := v1.id
	require.NoError(t, r1.Close())

	r2, err := p.Get(context.Background())
	require.NoError(t, err)
	v2 := r2.MustGet()

	require.Equal(t, firstID, v2.id)
	require.Equal(t, int64(1), atomic.LoadInt64(ctrCalls))
	require.NoError(t, r2.Close())
}

func TestGet_GrowsUpToMaxSizeThenWaits(t *testing.T) {
	t.Parallel()
	factory, ctrCalls := newCounterFactory()
	timeout := 50 * time.Millisecond
	p, err := pool.New(factory, 1, pool.WithTimeout[resource](timeout))
	require.NoError(t, err)

	r, err := p.Get(context.Background())
	require.NoError(t, err)

	_, err = p.Get(context.Background())
	require.Error(t, err)
	var emptyErr *pool.PoolEmptyError
	require.True(t, errors.As(err, &emptyErr))
	require.True(t, errors.Is(err, pool.ErrPool))

	require.Equal(t, int64(1), atomic.LoadInt64(ctrCalls))
	require.NoError(t, r.Close())
}

func TestOverflow_ContractsOnReturn(t *testing.T) {
	t.Parallel()
	factory, _ := newCounterFactory()
	p, err := pool.New(factory, 1, pool.WithOverflow[resource](1))
	require.NoError(t, err)

	r1, err := p.Get(context.Background())
	require.NoError(t, err)
	r2, err := p.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, p.Size())

	require.NoError(t, r1.Close())
	require.NoError(t, r2.Close())

	require.Equal(t, 1, p.Size())
	require.Equal(t, 1, p.Available())
}

func TestPing_ReplacesDeadResource(t *testing.T) {
	t.Parallel()
	factory, ctrCalls := newCounterFactory()
	ping := func(_ context.Context, r resource) bool { return r.open }
	p, err := pool.New(factory, 1, pool.WithPing(ping))
	require.NoError(t, err)

	r, err := p.Get(context.Background())
	require.NoError(t, err)
	v := r.MustGet()
	firstID := v.id
	v.open = false
	require.NoError(t, r.Close())

	r2, err := p.Get(context.Background())
	require.NoError(t, err)
	v2 := r2.MustGet()

	require.NotEqual(t, firstID, v2.id)
	require.Equal(t, int64(2), atomic.LoadInt64(ctrCalls))
	require.Equal(t, 1, p.Size())
	require.NoError(t, r2.Close())
}

func TestHarvest_ReclaimsDroppedWrapper(t *testing.T) {
	factory, _ := newCounterFactory()
	p, err := pool.New(factory, 1)
	require.NoError(t, err)

	var firstID int64
	func() {
		r, err := p.Get(context.Background())
		require.NoError(t, err)
		firstID = r.MustGet().id
		// r deliberately dropped without Close.
	}()

	runtime.GC()
	runtime.GC()
	p.HarvestLostResources()
	require.Equal(t, 1, p.Available())

	r2, err := p.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, firstID, r2.MustGet().id)
	require.NoError(t, r2.Close())
}

func TestGet_WaitThenSucceed(t *testing.T) {
	t.Parallel()
	factory, _ := newCounterFactory()
	p, err := pool.New(factory, 1, pool.WithTimeout[resource](10*time.Second))
	require.NoError(t, err)

	r1, err := p.Get(context.Background())
	require.NoError(t, err)
	firstID := r1.MustGet().id

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = r1.Close()
	}()

	start := time.Now()
	r2, err := p.Get(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	require.Equal(t, firstID, r2.MustGet().id)
	require.NoError(t, r2.Close())
}

func TestPut_UnknownResource(t *testing.T) {
	t.Parallel()
	factory, _ := newCounterFactory()
	p, err := pool.New(factory, 1)
	require.NoError(t, err)

	err = p.Put(resource{id: 999})
	var unknown *pool.UnknownResourceError
	require.True(t, errors.As(err, &unknown))
}

func TestNew_ValidatesConfiguration(t *testing.T) {
	t.Parallel()
	factory, _ := newCounterFactory()

	_, err := pool.New(factory, 0)
	require.Error(t, err)

	_, err = pool.New(factory, 1, pool.WithOverflow[resource](-1))
	require.Error(t, err)

	_, err = pool.New(factory, 1, pool.WithTimeout[resource](-1*time.Second))
	require.Error(t, err)
}

func TestFactoryArguments_DefensiveCopy(t *testing.T) {
	t.Parallel()
	factory, _ := newCounterFactory()
	args := map[string]any{"dsn": "example"}
	p, err := pool.New(factory, 1, pool.WithFactoryArguments[resource](args))
	require.NoError(t, err)

	got := p.FactoryArguments()
	got["dsn"] = "mutated"

	require.Equal(t, "example", p.FactoryArguments()["dsn"])
}

func TestShutdown_ClosesEverything(t *testing.T) {
	t.Parallel()
	factory, _ := newCounterFactory()
	var closedCount int64
	closer := func(_ resource) { atomic.AddInt64(&closedCount, 1) }
	p, err := pool.New(factory, 2, pool.WithCloser(closer))
	require.NoError(t, err)

	r1, err := p.Get(context.Background())
	require.NoError(t, err)
	r2, err := p.Get(context.Background())
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = r1.Close()
		_ = r2.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
	require.Equal(t, int64(2), atomic.LoadInt64(&closedCount))
	require.Equal(t, 0, p.Size())

	_, err = p.Get(context.Background())
	require.ErrorIs(t, err, pool.ErrPoolClosed)
}

func TestPool_FullCycleContractsOverflow(t *testing.T) {
	t.Parallel()
	factory, _ := newCounterFactory()
	p, err := pool.New(factory, 2, pool.WithOverflow[resource](2))
	require.NoError(t, err)

	var resources []*pool.Resource[resource]
	for i := 0; i < p.MaxSize(); i++ {
		r, err := p.Get(context.Background())
		require.NoError(t, err)
		resources = append(resources, r)
	}
	require.Equal(t, p.MaxSize(), p.Size())

	for _, r := range resources {
		require.NoError(t, r.Close())
	}

	require.Equal(t, p.Capacity(), p.Size())
	require.Equal(t, p.Capacity(), p.Available())
}

package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuttlepool/cuttlepool/internal/poollog"
)

// shutdownPollInterval bounds how often Shutdown rechecks whether
// checked-out resources have been returned or harvested.
const shutdownPollInterval = 20 * time.Millisecond

// Pool is a bounded, concurrency-safe collection of reusable resources of
// type T. Internally it is a fixed-size ring of MaxSize() tracker slots
// split into an available region (a FIFO queue of ready trackers) and an
// unavailable region (trackers currently checked out, in arbitrary
// order). T must be comparable so that Put can identify which tracker a
// returned resource belongs to by value equality, the closest Go analogue
// of cuttlepool.py's identity ("is") comparison.
type Pool[T comparable] struct {
	mu   sync.Mutex
	cond *sync.Cond

	capacity int
	overflow int
	maxsize  int
	timeout  *time.Duration

	factory        Factory[T]
	ping           Ping[T]
	normalize      Normalize[T]
	closer         Closer[T]
	wrapperFactory WrapperFactory[T]

	factoryArguments map[string]any
	logger           *poollog.Logger

	ring      []*tracker[T]
	start     int
	end       int
	size      int
	available int

	closed bool
}

// New constructs a Pool. capacity must be at least 1. See Option for the
// rest of the constructor surface (overflow, timeout, policy hooks,
// factory arguments).
func New[T comparable](factory Factory[T], capacity int, opts ...Option[T]) (*Pool[T], error) {
	if factory == nil {
		return nil, &PoolTypeError{Reason: "factory must not be nil"}
	}
	if capacity <= 0 {
		return nil, &PoolTypeError{Reason: "capacity must be a positive integer"}
	}

	o := &poolOptions[T]{}
	for _, opt := range opts {
		opt(o)
	}
	if o.overflow < 0 {
		return nil, &PoolTypeError{Reason: "overflow must be a non-negative integer"}
	}
	if o.timeout != nil && *o.timeout < 0 {
		return nil, &PoolTypeError{Reason: "timeout must be a non-negative duration"}
	}

	logger := o.logger
	if logger == nil {
		logger = poollog.New("[pool]")
	}

	maxsize := capacity + o.overflow
	p := &Pool[T]{
		capacity:         capacity,
		overflow:         o.overflow,
		maxsize:          maxsize,
		timeout:          o.timeout,
		factory:          factory,
		ping:             o.ping,
		normalize:        o.normalize,
		closer:           o.closer,
		wrapperFactory:   o.wrapperFactory,
		factoryArguments: o.factoryArguments,
		logger:           logger,
		ring:             make([]*tracker[T], maxsize),
	}
	p.cond = sync.NewCond(&p.mu)
	if p.ping == nil {
		p.ping = defaultPing[T](logger)
	}
	if p.normalize == nil {
		p.normalize = defaultNormalize[T](logger)
	}
	return p, nil
}

// Capacity is the steady-state maximum of queued resources.
func (p *Pool[T]) Capacity() int { return p.capacity }

// Overflow is the number of extra slots above capacity the pool may hold
// temporarily.
func (p *Pool[T]) Overflow() int { return p.overflow }

// MaxSize is Capacity()+Overflow(), the hard ceiling on concurrently
// existing resources.
func (p *Pool[T]) MaxSize() int { return p.maxsize }

// Timeout returns the configured checkout timeout and whether one was set
// at all; ok is false when Get waits indefinitely.
func (p *Pool[T]) Timeout() (d time.Duration, ok bool) {
	if p.timeout == nil {
		return 0, false
	}
	return *p.timeout, true
}

// FactoryArguments returns a defensive copy of the keyed arguments passed
// to Factory on every call; mutating the returned map never affects the
// pool.
func (p *Pool[T]) FactoryArguments() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make(map[string]any, len(p.factoryArguments))
	for k, v := range p.factoryArguments {
		cp[k] = v
	}
	return cp
}

// Size is the number of resource instances currently in existence,
// whether idle in the pool or checked out.
func (p *Pool[T]) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// Available is the number of trackers currently queued for checkout.
func (p *Pool[T]) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

// Empty reports whether the available region currently holds no tracker.
func (p *Pool[T]) Empty() bool {
	return p.Available() == 0
}

// Get returns a Resource holding a live, normalised resource. It blocks,
// up to the pool's configured timeout (or indefinitely, or not at all if
// one is available or can be grown immediately), and fails with
// PoolEmptyError if the timeout elapses with no resource to offer.
//
// The checkout phases run in a fixed order, each yielding to the next
// only if it cannot immediately satisfy the request: harvest abandoned
// trackers, dequeue the head of the available region, grow a new tracker
// if under MaxSize, then block on the not-empty condition.
func (p *Pool[T]) Get(ctx context.Context) (*Resource[T], error) {
	if p.Empty() {
		p.mu.Lock()
		if !p.closed {
			p.harvestLocked()
		}
		p.mu.Unlock()
	}

	tr, res := p.tryDequeue()

	if tr == nil {
		var err error
		tr, res, err = p.tryGrow(ctx)
		if err != nil && !errors.Is(err, errPoolFull) {
			return nil, err
		}
	}

	if tr == nil {
		var err error
		tr, res, err = p.waitForResource(ctx)
		if err != nil {
			return nil, err
		}
	}

	if tr == nil {
		return nil, &PoolEmptyError{}
	}

	if !p.ping(ctx, tr.resource) {
		p.mu.Lock()
		if idx := p.indexOfLocked(tr); idx >= 0 {
			p.removeAtLocked(idx)
		}
		newTr, err := p.growLocked(ctx)
		if err != nil {
			p.mu.Unlock()
			return nil, fmt.Errorf("cuttlepool: replace dead resource: %w", err)
		}
		newRes := newTr.wrap(p)
		p.mu.Unlock()
		tr, res = newTr, newRes
	}

	p.normalize(ctx, tr.resource)
	return res, nil
}

// tryDequeue takes the head of the available region without blocking. It
// returns nil, nil if the pool is currently empty.
func (p *Pool[T]) tryDequeue() (*tracker[T], *Resource[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.available == 0 {
		return nil, nil
	}
	tr := p.dequeueLocked()
	return tr, tr.wrap(p)
}

// tryGrow attempts to construct a new tracker if the pool is under
// MaxSize. It returns errPoolFull (not a real error) when there is no
// room, matching the internal-only PoolFullError signal from spec.
func (p *Pool[T]) tryGrow(ctx context.Context) (*tracker[T], *Resource[T], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, nil, ErrPoolClosed
	}
	tr, err := p.growLocked(ctx)
	if err != nil {
		return nil, nil, err
	}
	return tr, tr.wrap(p), nil
}

// waitForResource blocks on the not-empty condition until a resource is
// returned, the configured timeout elapses, or ctx is cancelled.
func (p *Pool[T]) waitForResource(ctx context.Context) (*tracker[T], *Resource[T], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var deadline time.Time
	hasDeadline := p.timeout != nil
	if hasDeadline {
		deadline = time.Now().Add(*p.timeout)
	}

	for p.available == 0 && !p.closed {
		var waitFor time.Duration
		if hasDeadline {
			waitFor = time.Until(deadline)
			if waitFor <= 0 {
				return nil, nil, &PoolEmptyError{Timeout: *p.timeout, Waited: true}
			}
		}

		if err := p.condWait(ctx, hasDeadline, waitFor); err != nil {
			return nil, nil, err
		}
	}

	if p.closed {
		return nil, nil, ErrPoolClosed
	}

	tr := p.dequeueLocked()
	return tr, tr.wrap(p), nil
}

// condWait waits on p.cond, re-arming a timer (when hasDeadline) and a
// context watcher so a spurious wake-up re-checks the loop condition in
// waitForResource. p.mu must be held on entry; it is held again on return.
func (p *Pool[T]) condWait(ctx context.Context, hasDeadline bool, waitFor time.Duration) error {
	if hasDeadline {
		timer := time.AfterFunc(waitFor, func() {
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		})
		defer timer.Stop()
	}
	if ctx != nil && ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() {
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		})
		defer stop()
	}

	p.cond.Wait()

	if ctx != nil {
		select {
		case <-ctx.Done():
			return fmt.Errorf("cuttlepool: %w", ctx.Err())
		default:
		}
	}
	return nil
}

// Put returns resource to the pool. If the available region is under
// capacity the tracker is re-queued and one waiter is signalled;
// otherwise the tracker is overflow and is removed, and its Closer (if
// any) is invoked outside the lock.
func (p *Pool[T]) Put(resource T) error {
	p.mu.Lock()
	idx, tr := p.findTrackerIndexLocked(resource)
	if tr == nil {
		p.mu.Unlock()
		return &UnknownResourceError{}
	}

	if p.available < p.capacity {
		p.enqueueLocked(idx)
		p.cond.Signal()
		p.mu.Unlock()
		return nil
	}

	p.removeAtLocked(idx)
	p.mu.Unlock()

	if p.closer != nil {
		p.closer(resource)
	}
	return nil
}

// HarvestLostResources scans the unavailable region for trackers whose
// wrapper has become unreachable without a Close call, and reclaims them
// to the available region (or removes them, if the available region is
// already at capacity). Get calls this automatically whenever the pool is
// empty; it is exported so callers and tests can force a harvest pass
// after prompting garbage collection.
func (p *Pool[T]) HarvestLostResources() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.harvestLocked()
}

// Shutdown closes every idle resource via Closer (if set), then waits —
// harvesting and closing as resources are returned or reclaimed — until
// every resource the pool ever created has been released or ctx is
// cancelled. After Shutdown, Get returns ErrPoolClosed.
func (p *Pool[T]) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()

	for {
		p.mu.Lock()
		p.harvestLocked()
		drained := make([]T, 0, p.available)
		for p.available > 0 {
			tr := p.dequeueLocked()
			if idx := p.indexOfLocked(tr); idx >= 0 {
				p.removeAtLocked(idx)
			}
			drained = append(drained, tr.resource)
		}
		done := p.size == 0
		p.mu.Unlock()

		if p.closer != nil {
			for _, r := range drained {
				p.closer(r)
			}
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("cuttlepool: shutdown: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// --- internals; every *Locked helper requires p.mu held by the caller. ---

// dequeueLocked takes the head of the available region.
func (p *Pool[T]) dequeueLocked() *tracker[T] {
	tr := p.ring[p.start]
	p.start = (p.start + 1) % p.maxsize
	p.available--
	return tr
}

// enqueueLocked moves the tracker at index i into the available region by
// swapping it with the slot at end, then advancing end.
func (p *Pool[T]) enqueueLocked(i int) {
	j := p.end
	p.ring[i], p.ring[j] = p.ring[j], p.ring[i]
	p.end = (p.end + 1) % p.maxsize
	p.available++
}

// removeAtLocked clears slot i and decrements size. The resource itself
// is not closed here; callers that need to close it do so after
// releasing the lock.
func (p *Pool[T]) removeAtLocked(i int) {
	p.ring[i] = nil
	p.size--
}

// growLocked places a newly constructed tracker into the first empty slot
// of the unavailable region. It returns errPoolFull if the pool is
// already at MaxSize.
func (p *Pool[T]) growLocked(ctx context.Context) (*tracker[T], error) {
	for _, i := range p.unavailableIndicesLocked() {
		if p.ring[i] != nil {
			continue
		}
		resource, err := p.factory(ctx, p.copyFactoryArgumentsLocked())
		if err != nil {
			return nil, err
		}
		tr := newTracker(resource)
		p.ring[i] = tr
		p.size++
		p.logger.Debugf("grow: slot=%d size=%d/%d", i, p.size, p.maxsize)
		return tr, nil
	}
	return nil, errPoolFull
}

// harvestLocked reclaims trackers in the unavailable region whose weak
// back-reference reports unreachability. A harvested tracker is
// re-queued if there is room, or removed as overflow otherwise. Unlike
// Put, harvest does not call Closer on the resource of a removed tracker.
func (p *Pool[T]) harvestLocked() {
	for _, i := range p.unavailableIndicesLocked() {
		tr := p.ring[i]
		if tr == nil || !tr.available() {
			continue
		}
		if p.available < p.capacity {
			p.enqueueLocked(i)
			p.cond.Signal()
		} else {
			p.removeAtLocked(i)
		}
	}
}

// unavailableIndicesLocked returns the ring indices making up the
// unavailable region: everything not in [start, start+available).
func (p *Pool[T]) unavailableIndicesLocked() []int {
	i, j := p.end, p.start
	if j < i || p.available == 0 {
		j += p.maxsize
	}
	indices := make([]int, 0, j-i)
	for k := i; k < j; k++ {
		indices = append(indices, k%p.maxsize)
	}
	return indices
}

// findTrackerIndexLocked scans the whole ring for the tracker wrapping a
// value equal to resource.
func (p *Pool[T]) findTrackerIndexLocked(resource T) (int, *tracker[T]) {
	for i, tr := range p.ring {
		if tr != nil && tr.resource == resource {
			return i, tr
		}
	}
	return -1, nil
}

// indexOfLocked scans the whole ring for tr by identity.
func (p *Pool[T]) indexOfLocked(tr *tracker[T]) int {
	for i, t := range p.ring {
		if t == tr {
			return i
		}
	}
	return -1
}

func (p *Pool[T]) copyFactoryArgumentsLocked() map[string]any {
	cp := make(map[string]any, len(p.factoryArguments))
	for k, v := range p.factoryArguments {
		cp[k] = v
	}
	return cp
}

package pool

import "weak"

// tracker binds a single resource to the pool for the resource's entire
// lifetime. It holds a weak back-reference to whichever Resource wrapper
// currently presents it to a client; that weak reference is the sole
// means by which the pool detects a client dropping a wrapper without
// closing it.
type tracker[T any] struct {
	resource T
	weakRef  weak.Pointer[Resource[T]]
}

func newTracker[T any](resource T) *tracker[T] {
	return &tracker[T]{resource: resource}
}

// available reports whether no wrapper currently keeps this resource
// checked out: either wrap has never been called, or the wrapper it
// produced has since become unreachable. A zero-value weak.Pointer's
// Value always returns nil, so a fresh tracker is available without any
// special-casing.
func (t *tracker[T]) available() bool {
	return t.weakRef.Value() == nil
}

// wrap constructs a fresh Resource over t's resource and records a weak
// reference to it. Callers must hold the owning pool's lock: the weak
// reference assignment must not race with a concurrent harvest reading it.
func (t *tracker[T]) wrap(p *Pool[T]) *Resource[T] {
	r := &Resource[T]{value: &t.resource, pool: p}
	if p.wrapperFactory != nil {
		r.Extra = p.wrapperFactory(&t.resource, p)
	}
	t.weakRef = weak.Make(r)
	return r
}

package pool

import "sync"

// Resource is the client-facing handle over a single checked-out
// resource. It is the statically typed replacement for cuttlepool.py's
// dynamic attribute-forwarding wrapper: Go has no runtime attribute
// access, so callers reach the underlying value through Get/MustGet
// instead of transparent delegation, and the pool's own close path is
// simply not exposed on this type, which is how native close is shadowed.
type Resource[T any] struct {
	mu    sync.Mutex
	value *T
	pool  *Pool[T]

	// Extra holds whatever a WrapperFactory attached at checkout time,
	// the generic stand-in for cuttlepool.py's resource_wrapper subclass.
	Extra any
}

// Get returns the underlying resource, or ErrResourceClosed if Close has
// already been called.
func (r *Resource[T]) Get() (*T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.value == nil {
		return nil, ErrResourceClosed
	}
	return r.value, nil
}

// MustGet returns the underlying resource, panicking if Close has already
// been called. Use this when a closed Resource in scope is a programming
// error rather than a recoverable condition.
func (r *Resource[T]) MustGet() *T {
	v, err := r.Get()
	if err != nil {
		panic(err)
	}
	return v
}

// Close is idempotent. The first call returns the underlying resource to
// the owning pool and clears both the resource and pool references;
// subsequent calls are no-ops.
func (r *Resource[T]) Close() error {
	r.mu.Lock()
	if r.value == nil {
		r.mu.Unlock()
		return nil
	}
	resource := *r.value
	p := r.pool
	r.value = nil
	r.pool = nil
	r.mu.Unlock()

	if p == nil {
		return nil
	}
	return p.Put(resource)
}

// Scope runs fn with the live resource and always closes the Resource on
// return, including when fn panics, mirroring cuttlepool.py's "entering a
// scoped block returns the wrapper; exiting it by any path, including
// exceptional unwinding, calls close()".
func (r *Resource[T]) Scope(fn func(*T) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			_ = r.Close()
			panic(rec)
		}
	}()

	v, getErr := r.Get()
	if getErr != nil {
		return getErr
	}
	err = fn(v)
	if closeErr := r.Close(); err == nil {
		err = closeErr
	}
	return err
}

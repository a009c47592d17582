package pool

import (
	"context"

	"github.com/cuttlepool/cuttlepool/internal/poollog"
)

// Factory builds a new resource instance. It is invoked only while the
// pool holds its internal lock, so a slow factory serialises growth —
// this is a deliberate tradeoff (see the package README/DESIGN.md):
// reserving the slot and calling the factory under the same lock is
// simpler than releasing the lock mid-grow, and factories are typically
// the latency source a pool amortises in the first place, not the lock.
// args is a defensive copy of the factory arguments supplied to New.
type Factory[T any] func(ctx context.Context, args map[string]any) (T, error)

// Ping reports whether resource is still usable. It runs during checkout,
// after a tracker has been obtained and before the resource is handed to
// the caller. A Ping that returns false causes the pool to discard the
// tracker and attempt to build a replacement under the same lock.
type Ping[T any] func(ctx context.Context, resource T) bool

// Normalize resets per-use mutable state on resource (cursor position,
// autocommit, read deadlines, ...) before it is handed to a new caller.
// It runs on every successful checkout, after Ping passes.
type Normalize[T any] func(ctx context.Context, resource T)

// Closer releases a resource's native handle. It is called when a tracked
// resource is permanently removed from the pool: on overflow contraction
// (Put while the available region is already at capacity) and during
// Shutdown. The pool never calls Closer on a normal, steady-state return.
// A resource removed by harvest as overflow, or discarded after a failed
// Ping, is dropped without a Closer call.
type Closer[T any] func(resource T)

// WrapperFactory lets an integrator attach extra, caller-defined state to
// a freshly checked-out Resource, the generic stand-in for cuttlepool.py's
// resource_wrapper subclassing. The returned value is stored in the
// Resource's Extra field and is whatever the integrator wants it to be.
type WrapperFactory[T any] func(value *T, p *Pool[T]) any

func defaultPing[T any](logger *poollog.Logger) Ping[T] {
	return func(_ context.Context, _ T) bool {
		logger.Warnf("ping not implemented; pool cannot detect dead resources, override WithPing")
		return true
	}
}

func defaultNormalize[T any](logger *poollog.Logger) Normalize[T] {
	return func(_ context.Context, _ T) {
		logger.Warnf("normalize not implemented; resource state is not reset between checkouts, override WithNormalize")
	}
}

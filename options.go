package pool

import (
	"time"

	"github.com/cuttlepool/cuttlepool/internal/poollog"
)

// poolOptions accumulates everything New's functional options may set,
// beyond the required factory and capacity.
type poolOptions[T any] struct {
	overflow         int
	timeout          *time.Duration
	ping             Ping[T]
	normalize        Normalize[T]
	closer           Closer[T]
	wrapperFactory   WrapperFactory[T]
	factoryArguments map[string]any
	logger           *poollog.Logger
}

// Option configures a Pool at construction time.
type Option[T any] func(*poolOptions[T])

// WithOverflow sets the number of extra slots above capacity the pool may
// create temporarily. Defaults to 0.
func WithOverflow[T any](overflow int) Option[T] {
	return func(o *poolOptions[T]) { o.overflow = overflow }
}

// WithTimeout bounds how long Get waits for a resource to free up. Without
// this option, Get waits indefinitely.
func WithTimeout[T any](timeout time.Duration) Option[T] {
	return func(o *poolOptions[T]) { o.timeout = &timeout }
}

// WithPing overrides the liveness probe run on every checkout. The default
// always reports a resource alive and logs a warning that this is
// unspecialised.
func WithPing[T any](ping Ping[T]) Option[T] {
	return func(o *poolOptions[T]) { o.ping = ping }
}

// WithNormalize overrides the per-use reset hook run after Ping succeeds.
// The default is a no-op that logs a warning.
func WithNormalize[T any](normalize Normalize[T]) Option[T] {
	return func(o *poolOptions[T]) { o.normalize = normalize }
}

// WithCloser sets the hook invoked when a resource is permanently removed
// from the pool (overflow contraction, Shutdown). Without a Closer,
// removed resources are simply dropped — it is then the caller's own
// responsibility to release their native handles.
func WithCloser[T any](closer Closer[T]) Option[T] {
	return func(o *poolOptions[T]) { o.closer = closer }
}

// WithWrapperFactory attaches integrator-defined state to every freshly
// checked-out Resource, stored in Resource.Extra.
func WithWrapperFactory[T any](factory WrapperFactory[T]) Option[T] {
	return func(o *poolOptions[T]) { o.wrapperFactory = factory }
}

// WithFactoryArguments supplies the opaque, keyed configuration forwarded
// verbatim to Factory on every call. FactoryArguments returns a defensive
// copy of whatever is set here.
func WithFactoryArguments[T any](args map[string]any) Option[T] {
	return func(o *poolOptions[T]) { o.factoryArguments = args }
}

// WithLogger overrides the pool's diagnostic logger. Defaults to a
// "[pool]"-tagged logger writing to stderr.
func WithLogger[T any](logger *poollog.Logger) Option[T] {
	return func(o *poolOptions[T]) { o.logger = logger }
}

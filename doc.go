// Package pool implements a generic, bounded pool of reusable resources.
//
// A pool amortises the cost of constructing expensive resources — database
// sessions, network connections, large buffers — by keeping a bounded
// collection of live instances available for repeated checkout by
// concurrent clients. It enforces a hard upper bound on the number of
// concurrently existing resources, provides bounded waiting when the pool
// is exhausted, and reclaims resources abandoned by misbehaving clients.
//
// The three collaborators a caller supplies are a Factory that builds a
// resource, a Ping that checks whether a checked-out resource is still
// alive, and a Normalize that resets per-use state before handing a
// resource back out. Factory is required; New rejects a nil one. Ping and
// Normalize are optional: Pool falls back to permissive defaults and logs a
// warning, matching the package's spiritual ancestor, Python's cuttlepool,
// which does the same via warnings.warn.
package pool

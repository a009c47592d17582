// Package poollog provides the tagged stdlib logger used by the pool's
// default policy hooks and lifecycle diagnostics.
package poollog

import (
	"log"
	"os"
)

// Logger wraps the standard library logger with a fixed tag prefix, the
// same "[component] message" shape steel-orchestrator uses for its pool.
type Logger struct {
	*log.Logger
}

// New returns a Logger that writes to stderr with the given tag, e.g. "[pool]".
func New(tag string) *Logger {
	return &Logger{Logger: log.New(os.Stderr, tag+" ", log.LstdFlags)}
}

// Warnf logs a warning-level message. Nil-safe so callers never need a guard.
func (l *Logger) Warnf(format string, args ...any) {
	if l == nil {
		return
	}
	l.Printf("WARN "+format, args...)
}

// Debugf logs a lifecycle/diagnostic message.
func (l *Logger) Debugf(format string, args ...any) {
	if l == nil {
		return
	}
	l.Printf("DEBUG "+format, args...)
}

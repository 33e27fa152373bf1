// Package attempt tracks which retry attempt a test is currently on.
//
// Every execution unit (the goroutine or worker slot that drives one test at a
// time) owns exactly one *Context. The retry loop writes the attempt number
// into it, and collaborators that need attempt-scoped naming read it through
// the context.Context the loop threads down to them. Two units never share a
// *Context, so attempt numbers cannot leak between tests running in parallel.
//
// Example:
//
//	unit := attempt.New()
//	ctx = attempt.WithContext(ctx, unit)
//
//	unit.Set(2)
//	defer unit.Clear()
//
//	attempt.Current(ctx) // 2
package attempt

import (
	"context"

	"go.uber.org/atomic"
)

// Default is the attempt number reported when nothing has been set.
const Default = 1

// Context holds the current attempt number for one execution unit.
//
// The value is stored atomically because collaborators owned by the unit
// (for example a console listener running on the browser driver's goroutine)
// may read it while the unit is writing. Writes only ever come from the owning
// unit. A nil *Context behaves like a fresh one that can't be written to.
type Context struct {
	current atomic.Int64 // 0 means "never set" and reads as Default
}

// New returns a Context with no attempt recorded.
func New() *Context {
	return &Context{}
}

// Set records n as the current attempt. Values below 1 are clamped to 1.
func (c *Context) Set(n int) {
	if c == nil {
		return
	}

	c.current.Store(int64(max(Default, n)))
}

// Get returns the current attempt, or Default if none has been set since the
// last Clear.
func (c *Context) Get() int {
	if c == nil {
		return Default
	}

	n := c.current.Load()
	if n < Default {
		return Default
	}

	return int(n)
}

// Clear resets the unit back to Default. It must run after every attempt,
// including failed ones, so a later test reusing the same unit never observes
// a stale number.
func (c *Context) Clear() {
	if c == nil {
		return
	}

	c.current.Store(0)
}

// ctxKey is the type for context keys used internally to avoid collisions.
type ctxKey string

// unitKey is the context key under which the unit's *Context is stored.
const unitKey ctxKey = "attempt-unit"

// WithContext attaches the execution unit's attempt Context to ctx.
func WithContext(ctx context.Context, unit *Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, unitKey, unit)
}

// FromContext returns the attempt Context attached to ctx, if any.
func FromContext(ctx context.Context) (*Context, bool) {
	if ctx == nil {
		return nil, false
	}

	unit, ok := ctx.Value(unitKey).(*Context)
	if !ok || unit == nil {
		return nil, false
	}

	return unit, true
}

// Current returns the attempt number of the unit attached to ctx. It returns
// Default when no unit is attached.
func Current(ctx context.Context) int {
	unit, _ := FromContext(ctx)

	return unit.Get()
}

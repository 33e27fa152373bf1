// Package closer composes the teardown of long-lived harness resources
// (browser driver, browser, telemetry exporters) into a single io.Closer.
//
//	c := closer.New()
//	c.Add("driver", driver)
//	c.Add("browser", browser) // closed before the driver
//	defer c.Close()
package closer

import (
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"

	"github.com/amp-labs/e2e-harness/logger"
)

// ErrPanic wraps a panic recovered while closing.
var ErrPanic = errors.New("panic while closing")

// Func adapts a cleanup function to io.Closer.
type Func func() error

func (f Func) Close() error {
	return f()
}

type step struct {
	name   string
	closer io.Closer
}

// Closer runs named teardown steps, most recently added first, so resources
// are released in the reverse order they were acquired.
type Closer struct {
	mu    sync.Mutex
	steps []step
}

// New returns an empty Closer.
func New() *Closer {
	return &Closer{}
}

// Add registers closer under name. A nil closer is ignored.
func (c *Closer) Add(name string, closer io.Closer) {
	if closer == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.steps = append(c.steps, step{name: name, closer: closer})
}

// AddFunc registers fn under name. A nil fn is ignored.
func (c *Closer) AddFunc(name string, fn func() error) {
	if fn == nil {
		return
	}

	c.Add(name, Func(fn))
}

// Close runs every step in reverse order of registration and forgets them.
// Every step runs even when an earlier one fails or panics; the failures are
// joined, each prefixed with its step name.
func (c *Closer) Close() error {
	c.mu.Lock()
	steps := c.steps
	c.steps = nil
	c.mu.Unlock()

	var errs []error

	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]

		if err := HandlePanic(s.closer).Close(); err != nil {
			logger.Get().Debug("teardown step failed", "step", s.name, "error", err)

			errs = append(errs, fmt.Errorf("closing %s: %w", s.name, err))

			continue
		}

		logger.Get().Debug("teardown step done", "step", s.name)
	}

	return errors.Join(errs...)
}

type closeOnce struct {
	mu     sync.Mutex
	closed bool
	closer io.Closer
}

// CloseOnce wraps closer so that only the first successful Close reaches it.
// A failed Close is not remembered, so it can be retried.
func CloseOnce(closer io.Closer) io.Closer {
	if closer == nil {
		return nil
	}

	if once, ok := closer.(*closeOnce); ok {
		return once
	}

	return &closeOnce{closer: closer}
}

func (c *closeOnce) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	if err := c.closer.Close(); err != nil {
		return err
	}

	c.closed = true

	return nil
}

// HandlePanic wraps closer so that a panic in Close is returned as an error
// wrapping ErrPanic instead of unwinding the caller. Browser drivers talk to
// external processes and have been known to panic on a dead connection.
func HandlePanic(closer io.Closer) io.Closer {
	if closer == nil {
		return nil
	}

	if _, ok := closer.(*panicSafe); ok {
		return closer
	}

	return &panicSafe{closer: closer}
}

type panicSafe struct {
	closer io.Closer
}

func (p *panicSafe) Close() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Join(err, fmt.Errorf("%w: %v\nstack trace:\n%s", ErrPanic, r, debug.Stack()))
		}
	}()

	return p.closer.Close()
}

// Package shutdown runs cleanup hooks when the process receives SIGINT or
// SIGTERM, so an interrupted test run still closes its browsers and flushes
// telemetry instead of leaving orphaned processes behind.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/amp-labs/e2e-harness/logger"
)

// Option configures a Handler.
type Option func(*Handler)

// WithExit makes the handler exit the process with code once the hooks have
// run. Test binaries need this: nothing else would stop them.
func WithExit(code int) Option {
	return func(h *Handler) {
		h.exit = func() { os.Exit(code) }
	}
}

// Handler owns the signal subscription and the registered hooks.
type Handler struct {
	mu      sync.Mutex
	hooks   []func()
	signals chan os.Signal
	stopped bool
	exit    func()
}

// Listen subscribes to SIGINT and SIGTERM. The returned context is canceled
// after the hooks have run for the first signal (or Shutdown call).
func Listen(parent context.Context, opts ...Option) (*Handler, context.Context) {
	h := &Handler{signals: make(chan os.Signal, 1)}

	for _, opt := range opts {
		opt(h)
	}

	signal.Notify(h.signals, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(parent)

	go func() {
		defer cancel()

		sig, ok := <-h.signals
		if !ok {
			return
		}

		logger.Get(ctx).Warn("received " + sig.String() + ", shutting down")

		h.runHooks()

		if h.exit != nil {
			h.exit()
		}
	}()

	return h, ctx
}

// BeforeShutdown registers fn. Hooks run in registration order while the
// context returned by Listen is still alive.
func (h *Handler) BeforeShutdown(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.hooks = append(h.hooks, fn)
}

// Shutdown triggers the shutdown as if a signal had arrived.
func (h *Handler) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return
	}

	select {
	case h.signals <- os.Interrupt:
	default:
	}
}

// Stop unsubscribes from signals without running the hooks; for a normal exit.
func (h *Handler) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return
	}

	h.stopped = true

	signal.Stop(h.signals)
	close(h.signals)
}

func (h *Handler) runHooks() {
	h.mu.Lock()
	hooks := h.hooks
	h.hooks = nil
	h.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

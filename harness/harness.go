// Package harness wires the pieces together for test code: configuration picks
// the browser backend, one browser is launched lazily and shared by every
// test in the process, and each test runs through the retry loop with a fresh
// session per attempt.
//
//	var h *harness.Harness
//
//	func TestMain(m *testing.M) {
//	    h = harness.MustFromEnv(context.Background())
//	    code := m.Run()
//	    _ = h.Close()
//	    os.Exit(code)
//	}
//
//	func TestHome(t *testing.T) {
//	    h.Run(t, func(ctx context.Context, page browser.Page) error {
//	        return page.Navigate(ctx, "https://playwright.dev/")
//	    })
//	}
package harness

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/amp-labs/e2e-harness/artifacts"
	"github.com/amp-labs/e2e-harness/attempt"
	"github.com/amp-labs/e2e-harness/attemptlog"
	"github.com/amp-labs/e2e-harness/browser"
	"github.com/amp-labs/e2e-harness/browser/chromedp"
	"github.com/amp-labs/e2e-harness/browser/playwright"
	"github.com/amp-labs/e2e-harness/closer"
	"github.com/amp-labs/e2e-harness/config"
	"github.com/amp-labs/e2e-harness/lifecycle"
	"github.com/amp-labs/e2e-harness/logger"
	"github.com/amp-labs/e2e-harness/report"
	"github.com/amp-labs/e2e-harness/retry"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a Harness.
type Option func(*options)

type options struct {
	sink           report.Sink
	recorder       attemptlog.Recorder
	backoff        retry.Backoff
	tracerProvider trace.TracerProvider
	now            func() time.Time
}

// WithSink attaches failure screenshots to a test report.
func WithSink(sink report.Sink) Option {
	return func(o *options) {
		o.sink = sink
	}
}

// WithRecorder replaces the attempt log file configured in config.Config.
func WithRecorder(r attemptlog.Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithBackoff waits between attempts. The default is to retry immediately.
func WithBackoff(b retry.Backoff) Option {
	return func(o *options) {
		o.backoff = b
	}
}

// WithTracerProvider overrides the global tracer provider for attempt spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithClock overrides the time source for artifact names.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// Harness runs browser tests with retries and artifact capture.
type Harness struct {
	cfg      config.Config
	driver   browser.Driver
	capturer *artifacts.Capturer
	runner   retry.Runner
	now      func() time.Time

	mu      sync.Mutex
	browser browser.Browser

	closer io.Closer
}

// New returns a Harness that launches browsers with driver. The browser is
// started on the first test; Close releases it and the driver.
func New(cfg config.Config, driver browser.Driver, opts ...Option) *Harness {
	o := &options{}

	for _, opt := range opts {
		opt(o)
	}

	recorder := o.recorder
	if recorder == nil {
		recorder = attemptlog.New(cfg.AttemptLog)
	}

	var capturerOpts []artifacts.CapturerOption
	if o.sink != nil {
		capturerOpts = append(capturerOpts, artifacts.WithSink(o.sink))
	}

	retryOpts := []retry.Option{
		retry.WithMaxRetries(cfg.MaxRetries()),
		retry.WithRecorder(recorder),
		retry.WithBackoff(o.backoff),
	}

	if o.tracerProvider != nil {
		retryOpts = append(retryOpts, retry.WithTracerProvider(o.tracerProvider))
	}

	h := &Harness{
		cfg:      cfg,
		driver:   driver,
		capturer: artifacts.NewCapturer(artifacts.NewLayout(cfg.ArtifactsDir), capturerOpts...),
		runner:   retry.NewRunner(retryOpts...),
		now:      o.now,
	}

	// Steps run last-in first-out: the browser goes before its driver.
	teardown := closer.New()
	teardown.Add("driver", driver)
	teardown.AddFunc("browser", h.closeBrowser)
	h.closer = closer.CloseOnce(teardown)

	return h
}

// NewDriver returns the driver for the configured backend.
func NewDriver(cfg config.Config) browser.Driver {
	switch cfg.Backend {
	case config.BackendChromedp:
		return chromedp.New()
	default:
		return playwright.New()
	}
}

// FromEnv loads the configuration (E2E_CONFIG file, then environment) and
// returns a Harness for its backend.
func FromEnv(ctx context.Context, opts ...Option) (*Harness, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("loading harness config: %w", err)
	}

	logger.Get(ctx).Debug("harness configured",
		"browser", cfg.Kind(), "backend", cfg.Backend, "headed", bool(cfg.Headed),
		"maxRetries", cfg.MaxRetries(), "artifacts", cfg.ArtifactsDir, "attemptLog", cfg.AttemptLog)

	return New(cfg, NewDriver(cfg), opts...), nil
}

// MustFromEnv is FromEnv for TestMain; it panics on a configuration error.
func MustFromEnv(ctx context.Context, opts ...Option) *Harness {
	h, err := FromEnv(ctx, opts...)
	if err != nil {
		panic(err)
	}

	return h
}

// Config returns the configuration the harness was built with.
func (h *Harness) Config() config.Config {
	return h.cfg
}

// Browser returns the shared browser, launching it on first use. A failed
// launch is not cached; the next call tries again.
func (h *Harness) Browser(ctx context.Context) (browser.Browser, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.browser != nil {
		return h.browser, nil
	}

	b, err := h.driver.Launch(ctx, browser.LaunchOptions{
		Kind:   h.cfg.Kind(),
		Headed: bool(h.cfg.Headed),
	})
	if err != nil {
		return nil, fmt.Errorf("launching %s: %w", h.cfg.Kind(), err)
	}

	h.browser = b

	return b, nil
}

// Exec runs body for test with retries. Each attempt gets its own session
// and page; artifacts are captured before the next attempt starts. The last
// attempt's error is returned when every attempt fails.
func (h *Harness) Exec(ctx context.Context, test attempt.Test, body lifecycle.Body) error {
	b, err := h.Browser(ctx)
	if err != nil {
		return err
	}

	var coordOpts []lifecycle.Option
	if h.now != nil {
		coordOpts = append(coordOpts, lifecycle.WithClock(h.now))
	}

	coordinator := lifecycle.NewCoordinator(b, h.capturer, h.cfg.Artifacts(), coordOpts...)

	return h.runner.Do(ctx, test, func(ctx context.Context) error {
		return coordinator.Run(ctx, test, body)
	})
}

// Run executes body as the test t. The test identity comes from t.Name();
// tags such as attempt.TagNoArtifacts adjust what is captured. A final
// failure is reported with t.Errorf.
func (h *Harness) Run(t testing.TB, body lifecycle.Body, tags ...string) {
	t.Helper()

	test := attempt.FromName(t.Name(), tags...)

	if err := h.Exec(t.Context(), test, body); err != nil {
		t.Errorf("%s failed: %v", test, err)
	}
}

func (h *Harness) closeBrowser() error {
	h.mu.Lock()
	b := h.browser
	h.browser = nil
	h.mu.Unlock()

	if b == nil {
		return nil
	}

	return b.Close()
}

// Close closes the browser and the driver. Only the first call has an effect.
func (h *Harness) Close() error {
	return h.closer.Close()
}

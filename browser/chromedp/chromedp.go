// Package chromedp implements browser.Driver over the Chrome DevTools Protocol
// using chromedp. It drives a local Chrome or Chromium only and cannot record
// video; traces are Chrome trace-event JSON zipped into the requested file.
package chromedp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/amp-labs/e2e-harness/browser"
	"github.com/amp-labs/e2e-harness/logger"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// Option configures a Driver.
type Option func(*Driver)

// WithExecPath launches the browser binary at path instead of searching for one.
func WithExecPath(path string) Option {
	return func(d *Driver) {
		d.execPath = path
	}
}

// WithWindowSize sets the browser window size.
func WithWindowSize(width, height int) Option {
	return func(d *Driver) {
		d.width, d.height = width, height
	}
}

// Driver launches local Chrome processes.
type Driver struct {
	execPath      string
	width, height int

	mu       sync.Mutex
	browsers []*Browser
}

var _ browser.Driver = (*Driver)(nil)

// New returns a Driver with a 1920x1080 window.
func New(opts ...Option) *Driver {
	d := &Driver{width: 1920, height: 1080}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *Driver) allocatorOptions(opts browser.LaunchOptions) []chromedp.ExecAllocatorOption {
	out := append(chromedp.DefaultExecAllocatorOptions[:], //nolint:gocritic
		chromedp.Flag("headless", !opts.Headed),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(d.width, d.height),
	)

	if d.execPath != "" {
		out = append(out, chromedp.ExecPath(d.execPath))
	}

	return out
}

// Launch starts a browser. Only Chromium and Chrome are supported.
func (d *Driver) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	switch opts.Kind {
	case browser.Chromium, browser.Chrome, "":
	default:
		return nil, fmt.Errorf("launching %s: %w", opts.Kind, browser.ErrUnsupported)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), d.allocatorOptions(opts)...)

	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Get(ctx).Debug(fmt.Sprintf(format, args...))
		}),
	)

	// The first Run starts the process. It must not use a derived context, or
	// canceling that context would kill the browser.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()

		return nil, fmt.Errorf("launching %s: %w", opts.Kind, err)
	}

	b := &Browser{ctx: browserCtx, cancel: browserCancel, allocCancel: allocCancel}

	d.mu.Lock()
	d.browsers = append(d.browsers, b)
	d.mu.Unlock()

	logger.Get(ctx).Debug("browser launched", "kind", opts.Kind, "headed", opts.Headed)

	return b, nil
}

// Close closes every browser this driver launched.
func (d *Driver) Close() error {
	d.mu.Lock()
	browsers := d.browsers
	d.browsers = nil
	d.mu.Unlock()

	var errs []error

	for _, b := range browsers {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// run executes actions on target while honoring cancellation of ctx.
// Canceling the derived context aborts the call without closing the target.
func run(ctx, target context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(target)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return err
	}

	return nil
}

// Browser is a running Chrome process.
type Browser struct {
	ctx         context.Context //nolint:containedctx
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	once        sync.Once
}

var _ browser.Browser = (*Browser)(nil)

// NewSession opens a fresh browser context with its own first tab. Video
// recording is not available; opts.VideoDir is ignored.
func (b *Browser) NewSession(ctx context.Context, opts browser.SessionOptions) (browser.Session, error) {
	if opts.VideoDir != "" {
		logger.Get(ctx).Debug("video recording is not supported by the chromedp backend")
	}

	sessCtx, cancel := chromedp.NewContext(b.ctx, chromedp.WithNewBrowserContext())

	if err := chromedp.Run(sessCtx); err != nil {
		cancel()

		return nil, fmt.Errorf("creating browser context: %w", err)
	}

	s := &Session{ctx: sessCtx, cancel: cancel}
	s.trace = newTraceRecorder()

	chromedp.ListenTarget(sessCtx, s.trace.listen)

	return s, nil
}

func (b *Browser) Close() error {
	b.once.Do(func() {
		b.cancel()
		b.allocCancel()
	})

	return nil
}

// Session is a browser context. Its first page reuses the context's initial tab.
type Session struct {
	ctx    context.Context //nolint:containedctx
	cancel context.CancelFunc
	trace  *traceRecorder

	mu        sync.Mutex
	firstUsed bool
	closed    bool
}

var _ browser.Session = (*Session)(nil)

func (s *Session) NewPage(_ context.Context) (browser.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, context.Canceled
	}

	if !s.firstUsed {
		s.firstUsed = true

		return newPage(s.ctx, func() {}), nil
	}

	tabCtx, cancel := chromedp.NewContext(s.ctx)

	if err := chromedp.Run(tabCtx); err != nil {
		cancel()

		return nil, fmt.Errorf("creating page: %w", err)
	}

	return newPage(tabCtx, cancel), nil
}

func (s *Session) StartTrace(ctx context.Context, opts browser.TraceOptions) error {
	return s.trace.start(ctx, s.ctx, opts)
}

func (s *Session) StopTrace(ctx context.Context, path string) error {
	return s.trace.stop(ctx, s.ctx, path)
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		s.cancel()
	}

	return nil
}

// Page is one tab.
type Page struct {
	ctx    context.Context //nolint:containedctx
	cancel context.CancelFunc

	mu        sync.Mutex
	listeners []func(browser.ConsoleMessage)
	closed    bool
}

var _ browser.Page = (*Page)(nil)

func newPage(ctx context.Context, cancel context.CancelFunc) *Page {
	p := &Page{ctx: ctx, cancel: cancel}

	chromedp.ListenTarget(ctx, func(ev any) {
		if e, ok := ev.(*runtime.EventConsoleAPICalled); ok {
			p.emit(consoleMessage(e))
		}
	})

	return p
}

func (p *Page) emit(msg browser.ConsoleMessage) {
	p.mu.Lock()
	listeners := append([]func(browser.ConsoleMessage){}, p.listeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(msg)
	}
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := run(ctx, p.ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}

	return nil
}

func (p *Page) Title(ctx context.Context) (string, error) {
	var title string

	if err := run(ctx, p.ctx, chromedp.Title(&title)); err != nil {
		return "", err
	}

	return title, nil
}

func (p *Page) Screenshot(ctx context.Context, opts browser.ScreenshotOptions) ([]byte, error) {
	var buf []byte

	var action chromedp.Action = chromedp.CaptureScreenshot(&buf)
	if opts.FullPage {
		action = chromedp.FullScreenshot(&buf, 100) //nolint:mnd
	}

	if err := run(ctx, p.ctx, action); err != nil {
		return nil, err
	}

	if opts.Path != "" {
		if err := os.WriteFile(opts.Path, buf, 0o600); err != nil {
			return nil, fmt.Errorf("writing screenshot: %w", err)
		}
	}

	return buf, nil
}

func (p *Page) OnConsole(fn func(browser.ConsoleMessage)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.listeners = append(p.listeners, fn)
}

// Video is always nil: the DevTools protocol has no recorder.
func (p *Page) Video() browser.Video {
	return nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		p.closed = true
		p.cancel()
	}

	return nil
}

func consoleMessage(e *runtime.EventConsoleAPICalled) browser.ConsoleMessage {
	parts := make([]string, 0, len(e.Args))

	for _, arg := range e.Args {
		parts = append(parts, remoteObjectText(arg))
	}

	return browser.ConsoleMessage{Type: string(e.Type), Text: strings.Join(parts, " ")}
}

func remoteObjectText(obj *runtime.RemoteObject) string {
	if obj == nil {
		return ""
	}

	if len(obj.Value) > 0 {
		raw := string(obj.Value)

		if s, err := strconv.Unquote(raw); err == nil {
			return s
		}

		return raw
	}

	if obj.Description != "" {
		return obj.Description
	}

	return string(obj.Type)
}

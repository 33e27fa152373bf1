// Package playwright implements browser.Driver on top of playwright-go.
//
// Playwright's Go client is synchronous and takes no contexts; the ctx
// arguments are only checked for cancellation before each call.
package playwright

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/amp-labs/e2e-harness/browser"
	"github.com/amp-labs/e2e-harness/logger"
	"github.com/playwright-community/playwright-go"
)

// ErrNotRunning is returned by Launch after the driver has been closed.
var ErrNotRunning = errors.New("playwright driver is not running")

// Option configures a Driver.
type Option func(*Driver)

// WithInstall downloads the driver and browsers before the first launch.
func WithInstall(install bool) Option {
	return func(d *Driver) {
		d.install = install
	}
}

// WithRunOptions passes options through to playwright.Run and playwright.Install.
func WithRunOptions(opts *playwright.RunOptions) Option {
	return func(d *Driver) {
		d.runOptions = opts
	}
}

// Driver starts the Playwright node driver lazily on the first Launch.
type Driver struct {
	install    bool
	runOptions *playwright.RunOptions

	mu     sync.Mutex
	pw     *playwright.Playwright
	closed bool
}

var _ browser.Driver = (*Driver)(nil)

// New returns a Driver. Nothing is started until Launch.
func New(opts ...Option) *Driver {
	d := &Driver{}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *Driver) start(ctx context.Context) (*playwright.Playwright, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrNotRunning
	}

	if d.pw != nil {
		return d.pw, nil
	}

	var runOpts []*playwright.RunOptions
	if d.runOptions != nil {
		runOpts = append(runOpts, d.runOptions)
	}

	if d.install {
		logger.Get(ctx).Info("installing playwright driver and browsers")

		if err := playwright.Install(runOpts...); err != nil {
			return nil, fmt.Errorf("installing playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts...)
	if err != nil {
		return nil, fmt.Errorf("starting playwright: %w", err)
	}

	d.pw = pw

	return pw, nil
}

// Launch starts a browser of the requested kind.
func (d *Driver) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := d.start(ctx)
	if err != nil {
		return nil, err
	}

	kind, launchOpts := launchOptions(opts)

	var browserType playwright.BrowserType

	switch kind {
	case browser.Firefox:
		browserType = pw.Firefox
	case browser.WebKit:
		browserType = pw.WebKit
	default:
		browserType = pw.Chromium
	}

	b, err := browserType.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("launching %s: %w", opts.Kind, err)
	}

	logger.Get(ctx).Debug("browser launched", "kind", opts.Kind, "headed", opts.Headed, "version", b.Version())

	return &Browser{browser: b}, nil
}

// Close stops the Playwright driver. Browsers should be closed first.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true

	if d.pw == nil {
		return nil
	}

	pw := d.pw
	d.pw = nil

	return pw.Stop()
}

// launchOptions maps a browser.Kind to the engine to launch and its options.
// Chrome is the chromium engine on the "chrome" channel.
func launchOptions(opts browser.LaunchOptions) (browser.Kind, playwright.BrowserTypeLaunchOptions) {
	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(!opts.Headed),
	}

	switch opts.Kind {
	case browser.Firefox, browser.WebKit:
		return opts.Kind, launch
	case browser.Chrome:
		launch.Channel = playwright.String("chrome")

		return browser.Chromium, launch
	default:
		return browser.Chromium, launch
	}
}

// Browser wraps a playwright.Browser.
type Browser struct {
	browser playwright.Browser
}

var _ browser.Browser = (*Browser)(nil)

// NewSession opens a new browser context.
func (b *Browser) NewSession(ctx context.Context, opts browser.SessionOptions) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bc, err := b.browser.NewContext(contextOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("creating browser context: %w", err)
	}

	return &Session{context: bc, recording: opts.VideoDir != ""}, nil
}

func (b *Browser) Close() error {
	return b.browser.Close()
}

func contextOptions(opts browser.SessionOptions) playwright.BrowserNewContextOptions {
	var out playwright.BrowserNewContextOptions

	if opts.VideoDir != "" {
		out.RecordVideo = &playwright.RecordVideo{Dir: opts.VideoDir}
	}

	return out
}

func traceOptions(opts browser.TraceOptions) playwright.TracingStartOptions {
	return playwright.TracingStartOptions{
		Screenshots: playwright.Bool(opts.Screenshots),
		Snapshots:   playwright.Bool(opts.Snapshots),
	}
}

// Session wraps a playwright.BrowserContext.
type Session struct {
	context   playwright.BrowserContext
	recording bool
}

var _ browser.Session = (*Session)(nil)

func (s *Session) NewPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := s.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("creating page: %w", err)
	}

	return &Page{page: p, recording: s.recording}, nil
}

func (s *Session) StartTrace(ctx context.Context, opts browser.TraceOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.context.Tracing().Start(traceOptions(opts))
}

func (s *Session) StopTrace(_ context.Context, path string) error {
	// Not gated on ctx: a trace that was started must be stopped.
	return s.context.Tracing().Stop(path)
}

func (s *Session) Close() error {
	return s.context.Close()
}

// Page wraps a playwright.Page.
type Page struct {
	page      playwright.Page
	recording bool
}

var _ browser.Page = (*Page)(nil)

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := p.page.Goto(url); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}

	return nil
}

func (p *Page) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	return p.page.Title()
}

func (p *Page) Screenshot(_ context.Context, opts browser.ScreenshotOptions) ([]byte, error) {
	shot := playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(opts.FullPage),
	}

	if opts.Path != "" {
		shot.Path = playwright.String(opts.Path)
	}

	return p.page.Screenshot(shot)
}

func (p *Page) OnConsole(fn func(browser.ConsoleMessage)) {
	p.page.OnConsole(func(msg playwright.ConsoleMessage) {
		fn(browser.ConsoleMessage{Type: msg.Type(), Text: msg.Text()})
	})
}

// Video returns nil unless the session was opened with a video directory.
// playwright-go hands out a Video object either way.
func (p *Page) Video() browser.Video {
	if !p.recording {
		return nil
	}

	v := p.page.Video()
	if v == nil {
		return nil
	}

	return &Video{page: p.page, video: v}
}

func (p *Page) Close() error {
	if p.page.IsClosed() {
		return nil
	}

	return p.page.Close()
}

// Video wraps a playwright.Video.
type Video struct {
	page  playwright.Page
	video playwright.Video
}

var _ browser.Video = (*Video)(nil)

// SaveAs closes the page, which finalizes the recording, and copies it to path.
func (v *Video) SaveAs(_ context.Context, path string) error {
	if !v.page.IsClosed() {
		if err := v.page.Close(); err != nil {
			return fmt.Errorf("closing page before saving video: %w", err)
		}
	}

	return v.video.SaveAs(path)
}

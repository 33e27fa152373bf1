// Package browsertest provides an in-memory browser.Driver for tests.
//
// Behavior is scripted through exported fields before use; everything the
// harness does to the fake is recorded and can be inspected afterwards.
// Artifacts (screenshots, traces, videos) are written as small placeholder
// files so callers can assert on what ended up on disk.
package browsertest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/amp-labs/e2e-harness/browser"
)

var (
	// ErrTraceNotStarted is returned by StopTrace without a prior StartTrace.
	ErrTraceNotStarted = errors.New("trace not started")
	// ErrClosed is returned when using a closed page or session.
	ErrClosed = errors.New("target closed")
)

// Placeholder file contents.
const (
	ScreenshotData = "fake-png"
	TraceData      = "fake-trace"
	VideoData      = "fake-webm"
)

// Script controls how sessions and pages created after it is set behave.
type Script struct {
	PageErr       error
	StartTraceErr error
	StopTraceErr  error
	ScreenshotErr error
	VideoErr      error
	CloseErr      error

	// PanicOnScreenshot makes Screenshot panic instead of returning.
	PanicOnScreenshot bool

	// Title is returned by Page.Title.
	Title string
	// Console is emitted to listeners on every Navigate.
	Console []browser.ConsoleMessage
}

// Driver is a fake browser.Driver.
type Driver struct {
	LaunchErr error
	Browser   *Browser

	mu       sync.Mutex
	launches []browser.LaunchOptions
	closed   bool
}

var _ browser.Driver = (*Driver)(nil)

// NewDriver returns a Driver whose Launch always hands out the same Browser.
func NewDriver() *Driver {
	return &Driver{Browser: &Browser{}}
}

// Launch implements browser.Driver.
func (d *Driver) Launch(_ context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.launches = append(d.launches, opts)

	if d.LaunchErr != nil {
		return nil, d.LaunchErr
	}

	return d.Browser, nil
}

// Close implements browser.Driver.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true

	return nil
}

// Launches returns the options of every Launch call.
func (d *Driver) Launches() []browser.LaunchOptions {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]browser.LaunchOptions(nil), d.launches...)
}

// Closed reports whether Close was called.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.closed
}

// Browser is a fake browser.Browser.
type Browser struct {
	SessionErr error

	mu       sync.Mutex
	script   Script
	sessions []*Session
	closed   bool
}

var _ browser.Browser = (*Browser)(nil)

// SetScript replaces the script applied to new sessions.
func (b *Browser) SetScript(s Script) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.script = s
}

// NewSession implements browser.Browser.
func (b *Browser) NewSession(_ context.Context, opts browser.SessionOptions) (browser.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.SessionErr != nil {
		return nil, b.SessionErr
	}

	s := &Session{Options: opts, script: b.script}
	b.sessions = append(b.sessions, s)

	return s, nil
}

// Close implements browser.Browser.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true

	return nil
}

// Sessions returns every session created so far, oldest first.
func (b *Browser) Sessions() []*Session {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]*Session(nil), b.sessions...)
}

// Closed reports whether Close was called.
func (b *Browser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.closed
}

// Session is a fake browser.Session.
type Session struct {
	Options browser.SessionOptions

	mu        sync.Mutex
	script    Script
	pages     []*Page
	tracing   bool
	traceOpts *browser.TraceOptions
	tracePath string
	closed    bool
}

var _ browser.Session = (*Session)(nil)

// NewPage implements browser.Session.
func (s *Session) NewPage(_ context.Context) (browser.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	if s.script.PageErr != nil {
		return nil, s.script.PageErr
	}

	p := &Page{session: s, script: s.script}
	s.pages = append(s.pages, p)

	return p, nil
}

// StartTrace implements browser.Session.
func (s *Session) StartTrace(_ context.Context, opts browser.TraceOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.script.StartTraceErr != nil {
		return s.script.StartTraceErr
	}

	s.tracing = true
	s.traceOpts = &opts

	return nil
}

// StopTrace implements browser.Session.
func (s *Session) StopTrace(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tracing {
		return ErrTraceNotStarted
	}

	s.tracing = false

	if s.script.StopTraceErr != nil {
		return s.script.StopTraceErr
	}

	s.tracePath = path

	return writeFile(path, TraceData)
}

// Close implements browser.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	return s.script.CloseErr
}

// Pages returns the pages opened in this session.
func (s *Session) Pages() []*Page {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*Page(nil), s.pages...)
}

// TraceOptions returns the options tracing was last started with, or nil.
func (s *Session) TraceOptions() *browser.TraceOptions {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.traceOpts
}

// Tracing reports whether a trace is currently running.
func (s *Session) Tracing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tracing
}

// TracePath returns where the last trace was written.
func (s *Session) TracePath() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tracePath
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

// Page is a fake browser.Page.
type Page struct {
	session *Session
	script  Script

	mu        sync.Mutex
	visited   []string
	listeners []func(browser.ConsoleMessage)
	shots     []browser.ScreenshotOptions
	closed    bool
}

var _ browser.Page = (*Page)(nil)

// Navigate implements browser.Page and emits the scripted console messages.
func (p *Page) Navigate(_ context.Context, url string) error {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()

		return ErrClosed
	}

	p.visited = append(p.visited, url)
	p.mu.Unlock()

	for _, msg := range p.script.Console {
		p.Emit(msg)
	}

	return nil
}

// Title implements browser.Page.
func (p *Page) Title(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return "", ErrClosed
	}

	return p.script.Title, nil
}

// Screenshot implements browser.Page.
func (p *Page) Screenshot(_ context.Context, opts browser.ScreenshotOptions) ([]byte, error) {
	if p.script.PanicOnScreenshot {
		panic("screenshot exploded")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}

	if p.script.ScreenshotErr != nil {
		return nil, p.script.ScreenshotErr
	}

	p.shots = append(p.shots, opts)

	if opts.Path != "" {
		if err := writeFile(opts.Path, ScreenshotData); err != nil {
			return nil, err
		}
	}

	return []byte(ScreenshotData), nil
}

// OnConsole implements browser.Page.
func (p *Page) OnConsole(fn func(browser.ConsoleMessage)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.listeners = append(p.listeners, fn)
}

// Emit delivers msg to every console listener, as the engine would.
func (p *Page) Emit(msg browser.ConsoleMessage) {
	p.mu.Lock()
	listeners := slices.Clone(p.listeners)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(msg)
	}
}

// Video implements browser.Page. A video exists only when the session was
// created with a VideoDir.
func (p *Page) Video() browser.Video {
	if p.session.Options.VideoDir == "" {
		return nil
	}

	return &Video{page: p}
}

// Close implements browser.Page.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true

	return nil
}

// Visited returns every URL passed to Navigate.
func (p *Page) Visited() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.visited...)
}

// Screenshots returns the options of every successful Screenshot call.
func (p *Page) Screenshots() []browser.ScreenshotOptions {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]browser.ScreenshotOptions(nil), p.shots...)
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closed
}

// Video is a fake browser.Video.
type Video struct {
	page *Page
}

// SaveAs implements browser.Video. Like real engines it closes the page first.
func (v *Video) SaveAs(_ context.Context, path string) error {
	if err := v.page.Close(); err != nil {
		return err
	}

	if v.page.script.VideoErr != nil {
		return v.page.script.VideoErr
	}

	return writeFile(path, VideoData)
}

func writeFile(path, data string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:mnd
		return err
	}

	return os.WriteFile(path, []byte(data), 0o644) //nolint:gosec,mnd
}

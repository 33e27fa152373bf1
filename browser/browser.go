// Package browser describes the capabilities the harness needs from a browser
// automation engine. It deliberately contains no automation logic: adapters
// in the sub-packages translate these calls to a concrete engine, and
// browsertest provides a scriptable fake.
//
// Ownership flows downward. A Driver launches Browsers, a Browser hands out
// isolated Sessions (one per attempt), a Session owns its Pages.
package browser

import (
	"context"
	"errors"
	"strings"
)

// ErrUnsupported is returned by adapters for capabilities their engine lacks.
var ErrUnsupported = errors.New("not supported by this browser backend")

// Kind selects the browser engine to launch.
type Kind string

const (
	Chromium Kind = "chromium"
	Firefox  Kind = "firefox"
	WebKit   Kind = "webkit"
	// Chrome is branded Chrome, launched as chromium on the "chrome" channel.
	Chrome Kind = "chrome"
)

// ParseKind maps a configured browser name to a Kind. Matching is
// case-insensitive; unknown or empty names fall back to Chromium.
func ParseKind(name string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(name))) {
	case Firefox:
		return Firefox
	case WebKit:
		return WebKit
	case Chrome:
		return Chrome
	default:
		return Chromium
	}
}

// LaunchOptions configures Driver.Launch.
type LaunchOptions struct {
	Kind   Kind
	Headed bool
}

// SessionOptions configures Browser.NewSession.
type SessionOptions struct {
	// VideoDir enables video recording into this directory when non-empty.
	VideoDir string
}

// TraceOptions configures Session.StartTrace.
type TraceOptions struct {
	Screenshots bool
	Snapshots   bool
}

// ScreenshotOptions configures Page.Screenshot.
type ScreenshotOptions struct {
	// Path, when set, is where the image is also written.
	Path     string
	FullPage bool
}

// ConsoleMessage is one message a page wrote to its console.
type ConsoleMessage struct {
	Type string // "log", "error", "warning", ...
	Text string
}

// Driver starts browser processes.
type Driver interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
	Close() error
}

// Browser is a running browser process shared by every test in a run.
type Browser interface {
	NewSession(ctx context.Context, opts SessionOptions) (Session, error)
	Close() error
}

// Session is an isolated browsing context (cookies, storage, recordings)
// scoped to one attempt.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	StartTrace(ctx context.Context, opts TraceOptions) error
	// StopTrace ends tracing and writes the trace archive to path.
	StopTrace(ctx context.Context, path string) error
	Close() error
}

// Page is a single tab.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)
	// OnConsole registers fn for every console message the page emits. fn may
	// be called from a goroutine owned by the adapter.
	OnConsole(fn func(ConsoleMessage))
	// Video returns the page's recording, or nil when none is being made.
	Video() Video
	Close() error
}

// Video is a page recording.
type Video interface {
	// SaveAs writes the recording to path. Recordings are only complete once
	// the page is closed, so implementations close the page first if needed.
	SaveAs(ctx context.Context, path string) error
}

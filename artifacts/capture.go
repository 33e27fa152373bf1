// Package artifacts captures what an attempt leaves behind: a screenshot when
// it failed, its execution trace, its video and its console transcript.
//
// Capture is best-effort. Every kind is attempted independently, and an error
// or panic while capturing one of them is logged and counted but never
// returned, so artifact problems cannot change a test's result.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/amp-labs/e2e-harness/browser"
	"github.com/amp-labs/e2e-harness/logger"
	"github.com/amp-labs/e2e-harness/report"
)

// errSkipped tells step that there was nothing to capture.
var errSkipped = errors.New("skipped")

// Bundle lists the files captured for one attempt. Empty fields were not
// captured.
type Bundle struct {
	Screenshot string
	Trace      string
	Video      string
	Console    string
}

// Request describes the attempt whose artifacts should be captured.
type Request struct {
	// Name is the attempt identity, see Name.
	Name   string
	Failed bool
	Config Config

	Page    browser.Page
	Session browser.Session
	// TraceStarted is set when tracing was started for this attempt.
	TraceStarted bool
	Transcript   *Transcript
}

// CapturerOption configures a Capturer.
type CapturerOption func(*Capturer)

// WithSink offers successful failure screenshots to sink.
func WithSink(sink report.Sink) CapturerOption {
	return func(c *Capturer) {
		c.sink = sink
	}
}

// Capturer writes artifacts below a Layout.
type Capturer struct {
	layout Layout
	sink   report.Sink
}

// NewCapturer returns a Capturer writing into layout.
func NewCapturer(layout Layout, opts ...CapturerOption) *Capturer {
	c := &Capturer{layout: layout}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Layout returns where the capturer writes.
func (c *Capturer) Layout() Layout {
	return c.layout
}

// Capture runs every capture step for req, in order: screenshot, trace,
// video, console transcript. It always returns, with whatever was saved.
func (c *Capturer) Capture(ctx context.Context, req Request) Bundle {
	ctx = logger.With(ctx, "artifact", req.Name)

	return Bundle{
		Screenshot: c.step(ctx, KindScreenshot, func() (string, error) { return c.screenshot(ctx, req) }),
		Trace:      c.step(ctx, KindTrace, func() (string, error) { return c.trace(ctx, req) }),
		Video:      c.step(ctx, KindVideo, func() (string, error) { return c.video(ctx, req) }),
		Console:    c.step(ctx, KindConsole, func() (string, error) { return closeTranscript(req) }),
	}
}

func (c *Capturer) step(ctx context.Context, kind string, fn func() (string, error)) (path string) {
	defer func() {
		if r := recover(); r != nil {
			captures.WithLabelValues(kind, resultFailed).Inc()
			logger.Get(ctx).Warn("artifact capture panicked",
				"kind", kind, "panic", r, "stack", string(debug.Stack()))

			path = ""
		}
	}()

	path, err := fn()

	switch {
	case errors.Is(err, errSkipped):
		captures.WithLabelValues(kind, resultSkipped).Inc()

		return ""
	case err != nil:
		captures.WithLabelValues(kind, resultFailed).Inc()
		logger.Get(ctx).Warn("unable to capture artifact", "kind", kind, "error", err)

		return ""
	default:
		captures.WithLabelValues(kind, resultSaved).Inc()
		logger.Get(ctx).Debug("artifact saved", "kind", kind, "path", path)

		return path
	}
}

func (c *Capturer) screenshot(ctx context.Context, req Request) (string, error) {
	if !req.Failed || !req.Config.Screenshots() || req.Page == nil {
		return "", errSkipped
	}

	path := c.layout.Screenshot(req.Name)

	if err := ensureDir(path); err != nil {
		return "", err
	}

	data, err := req.Page.Screenshot(ctx, browser.ScreenshotOptions{Path: path, FullPage: true})
	if err != nil {
		return "", fmt.Errorf("taking screenshot: %w", err)
	}

	report.Offer(ctx, c.sink, report.Attachment{
		Name:      filepath.Base(path),
		MediaType: "image/png",
		Extension: "png",
		Data:      data,
	})

	return path, nil
}

func (c *Capturer) trace(ctx context.Context, req Request) (string, error) {
	if !req.TraceStarted || req.Session == nil {
		return "", errSkipped
	}

	path := c.layout.Trace(req.Name)

	if err := ensureDir(path); err != nil {
		return "", err
	}

	if err := req.Session.StopTrace(ctx, path); err != nil {
		return "", fmt.Errorf("stopping trace: %w", err)
	}

	return path, nil
}

func (c *Capturer) video(ctx context.Context, req Request) (string, error) {
	if !req.Config.Videos() || req.Page == nil {
		return "", errSkipped
	}

	video := req.Page.Video()
	if video == nil {
		return "", errSkipped
	}

	path := c.layout.Video(req.Name)

	if err := ensureDir(path); err != nil {
		return "", err
	}

	if err := video.SaveAs(ctx, path); err != nil {
		return "", fmt.Errorf("saving video: %w", err)
	}

	return path, nil
}

func closeTranscript(req Request) (string, error) {
	if req.Transcript == nil {
		return "", errSkipped
	}

	if err := req.Transcript.Close(); err != nil {
		return "", err
	}

	return req.Transcript.Path(), nil
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:mnd
		return fmt.Errorf("creating artifact dir: %w", err)
	}

	return nil
}

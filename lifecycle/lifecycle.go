// Package lifecycle sets up and tears down the browser session around a
// single test attempt.
//
// Begin gives every attempt a fresh, isolated session and page, starts the
// console transcript and (when enabled) the execution trace. End captures the
// attempt's artifacts and releases everything Begin acquired, even when parts
// of the teardown fail. Run ties the two together around a test body and is
// what the retry loop invokes once per attempt.
package lifecycle

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/amp-labs/e2e-harness/artifacts"
	"github.com/amp-labs/e2e-harness/attempt"
	"github.com/amp-labs/e2e-harness/browser"
	"github.com/amp-labs/e2e-harness/logger"
	"github.com/amp-labs/e2e-harness/should"
)

// Body is a test body. It receives the attempt's page.
type Body func(ctx context.Context, page browser.Page) error

// SessionFactory creates isolated sessions. browser.Browser implements it.
type SessionFactory interface {
	NewSession(ctx context.Context, opts browser.SessionOptions) (browser.Session, error)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the time source used for artifact names.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// Coordinator runs attempts against one browser.
type Coordinator struct {
	sessions SessionFactory
	capturer *artifacts.Capturer
	config   artifacts.Config
	now      func() time.Time
}

// NewCoordinator returns a Coordinator creating sessions from sessions and
// capturing artifacts with capturer according to cfg.
func NewCoordinator(
	sessions SessionFactory,
	capturer *artifacts.Capturer,
	cfg artifacts.Config,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		sessions: sessions,
		capturer: capturer,
		config:   cfg,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Attempt is one attempt's live browser state.
type Attempt struct {
	Test attempt.Test
	// Number is the attempt number read from the execution unit at Begin.
	Number int
	// Name identifies this attempt's artifacts.
	Name string
	Page browser.Page

	coordinator  *Coordinator
	config       artifacts.Config
	session      browser.Session
	rawVideoDir  string
	transcript   *artifacts.Transcript
	traceStarted bool
	ended        bool
}

// Begin prepares an attempt of test. An error means the attempt could not be
// set up and must count as a failed attempt; anything acquired so far has
// already been released.
func (c *Coordinator) Begin(ctx context.Context, test attempt.Test) (*Attempt, error) {
	cfg := c.config
	cfg.Suppressed = cfg.Suppressed || test.HasTag(attempt.TagNoArtifacts)

	n := attempt.Current(ctx)
	layout := c.capturer.Layout()

	name, transcript, err := layout.Reserve(artifacts.Name(test, n, c.now()))
	if err != nil {
		logger.Get(ctx).Debug("console transcript unavailable", "error", err)
	}

	att := &Attempt{
		Test:        test,
		Number:      n,
		Name:        name,
		coordinator: c,
		config:      cfg,
		transcript:  transcript,
	}

	var opts browser.SessionOptions

	if cfg.Videos() {
		// Raw recordings get random names; they are saved under the attempt's
		// name at End and the per-attempt directory is removed.
		att.rawVideoDir = filepath.Join(layout.Dir(artifacts.KindVideo), ".raw-"+name)
		opts.VideoDir = att.rawVideoDir
	}

	session, err := c.sessions.NewSession(ctx, opts)
	if err != nil {
		should.Close(ctx, transcript, "unable to close console transcript")

		return nil, fmt.Errorf("creating browser session: %w", err)
	}

	att.session = session

	page, err := session.NewPage(ctx)
	if err != nil {
		should.Close(ctx, transcript, "unable to close console transcript")
		should.Close(ctx, session, "unable to close browser session")
		should.RemoveAll(ctx, att.rawVideoDir, "unable to remove raw recordings")

		return nil, fmt.Errorf("opening page: %w", err)
	}

	att.Page = page

	page.OnConsole(transcript.Append)

	if cfg.Traces() {
		if err := session.StartTrace(ctx, browser.TraceOptions{Screenshots: true, Snapshots: true}); err != nil {
			logger.Get(ctx).Warn("unable to start trace", "error", err)
		} else {
			att.traceStarted = true
		}
	}

	return att, nil
}

// End captures the attempt's artifacts and releases its page and session.
// testErr is the body's result; it only decides whether a failure screenshot
// is taken. Calling End more than once returns an empty bundle.
func (a *Attempt) End(ctx context.Context, testErr error) artifacts.Bundle {
	if a == nil || a.ended {
		return artifacts.Bundle{}
	}

	a.ended = true

	bundle := a.coordinator.capturer.Capture(ctx, artifacts.Request{
		Name:         a.Name,
		Failed:       testErr != nil,
		Config:       a.config,
		Page:         a.Page,
		Session:      a.session,
		TraceStarted: a.traceStarted,
		Transcript:   a.transcript,
	})

	should.Close(ctx, a.Page, "unable to close page")
	should.Close(ctx, a.session, "unable to close browser session")
	should.RemoveAll(ctx, a.rawVideoDir, "unable to remove raw recordings")

	return bundle
}

// Run executes body as one attempt of test: Begin, body, End. It returns the
// body's error untouched. A panicking body is torn down like a failed one
// before the panic continues.
func (c *Coordinator) Run(ctx context.Context, test attempt.Test, body Body) (err error) {
	att, err := c.Begin(ctx, test)
	if err != nil {
		return err
	}

	ctx = logger.With(ctx, "artifact", att.Name)

	defer func() {
		if r := recover(); r != nil {
			att.End(ctx, fmt.Errorf("test panicked: %v", r)) //nolint:err113

			panic(r)
		}
	}()

	err = body(ctx, att.Page)

	bundle := att.End(ctx, err)

	if err != nil {
		logger.Get(ctx).Info("attempt artifacts",
			"screenshot", bundle.Screenshot, "trace", bundle.Trace,
			"video", bundle.Video, "console", bundle.Console)
	}

	return err
}

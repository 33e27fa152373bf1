package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/amp-labs/e2e-harness/browser"
	"github.com/amp-labs/e2e-harness/browser/browsertest"
	"github.com/amp-labs/e2e-harness/report"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTestFailed = errors.New("title mismatch")
	errDiskFull   = errors.New("no space left on device")
)

var everything = Config{ScreenshotOnFail: true, TraceEnabled: true, RecordVideo: true} //nolint:gochecknoglobals

type memSink struct {
	mu  sync.Mutex
	got []report.Attachment
}

func (m *memSink) Attach(_ context.Context, a report.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.got = append(m.got, a)

	return nil
}

type fixture struct {
	layout     Layout
	session    *browsertest.Session
	page       *browsertest.Page
	transcript *Transcript
}

// newFixture opens a fake session and page the way the lifecycle would for
// cfg, with the given script.
func newFixture(t *testing.T, cfg Config, script browsertest.Script) *fixture {
	t.Helper()

	ctx := t.Context()
	layout := NewLayout(filepath.Join(t.TempDir(), "playwright-report"))

	b := &browsertest.Browser{}
	b.SetScript(script)

	var opts browser.SessionOptions
	if cfg.Videos() {
		opts.VideoDir = layout.Dir(KindVideo)
	}

	sess, err := b.NewSession(ctx, opts)
	require.NoError(t, err)

	page, err := sess.NewPage(ctx)
	require.NoError(t, err)

	if cfg.Traces() {
		require.NoError(t, sess.StartTrace(ctx, browser.TraceOptions{Screenshots: true, Snapshots: true}))
	}

	tr, err := OpenTranscript(layout.Console("attempt"))
	require.NoError(t, err)

	page.OnConsole(tr.Append)

	return &fixture{
		layout:     layout,
		session:    b.Sessions()[0],
		page:       b.Sessions()[0].Pages()[0],
		transcript: tr,
	}
}

func (f *fixture) request(cfg Config, failed bool) Request {
	return Request{
		Name:         "attempt",
		Failed:       failed,
		Config:       cfg,
		Page:         f.page,
		Session:      f.session,
		TraceStarted: cfg.Traces(),
		Transcript:   f.transcript,
	}
}

func TestCapture_FailedAttempt(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, everything, browsertest.Script{})
	fx.page.Emit(browser.ConsoleMessage{Type: "error", Text: "Uncaught TypeError"})

	sink := &memSink{}
	bundle := NewCapturer(fx.layout, WithSink(sink)).Capture(t.Context(), fx.request(everything, true))

	assert.Equal(t, fx.layout.Screenshot("attempt"), bundle.Screenshot)
	assert.Equal(t, fx.layout.Trace("attempt"), bundle.Trace)
	assert.Equal(t, fx.layout.Video("attempt"), bundle.Video)
	assert.Equal(t, fx.layout.Console("attempt"), bundle.Console)

	for _, path := range []string{bundle.Screenshot, bundle.Trace, bundle.Video, bundle.Console} {
		assert.FileExists(t, path)
	}

	shots := fx.page.Screenshots()
	require.Len(t, shots, 1)
	assert.True(t, shots[0].FullPage)

	require.Len(t, sink.got, 1)
	assert.Equal(t, "attempt.png", sink.got[0].Name)
	assert.Equal(t, "image/png", sink.got[0].MediaType)
	assert.Equal(t, browsertest.ScreenshotData, string(sink.got[0].Data))

	assert.False(t, fx.session.Tracing())
	assert.True(t, fx.page.Closed(), "saving the video closes the page")

	console, err := os.ReadFile(bundle.Console)
	require.NoError(t, err)
	assert.Equal(t, "[error] Uncaught TypeError\n", string(console))
}

func TestCapture_PassedAttemptHasNoScreenshot(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, everything, browsertest.Script{})
	sink := &memSink{}

	bundle := NewCapturer(fx.layout, WithSink(sink)).Capture(t.Context(), fx.request(everything, false))

	assert.Empty(t, bundle.Screenshot)
	assert.NoFileExists(t, fx.layout.Screenshot("attempt"))
	assert.NotEmpty(t, bundle.Trace, "traces are kept for passing attempts")
	assert.NotEmpty(t, bundle.Video)
	assert.NotEmpty(t, bundle.Console)
	assert.Empty(t, sink.got)
}

func TestCapture_ScreenshotDisabled(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	fx := newFixture(t, cfg, browsertest.Script{})

	bundle := NewCapturer(fx.layout).Capture(t.Context(), fx.request(cfg, true))

	assert.Empty(t, bundle.Screenshot)
	assert.Empty(t, bundle.Trace)
	assert.Empty(t, bundle.Video)
	assert.NotEmpty(t, bundle.Console)
	assert.Empty(t, fx.page.Screenshots())
}

func TestCapture_Suppressed(t *testing.T) {
	t.Parallel()

	cfg := everything
	cfg.Suppressed = true

	fx := newFixture(t, cfg, browsertest.Script{})

	bundle := NewCapturer(fx.layout).Capture(t.Context(), fx.request(cfg, true))

	assert.Equal(t, Bundle{Console: fx.layout.Console("attempt")}, bundle)
	assert.NoDirExists(t, fx.layout.Dir(KindScreenshot))
	assert.NoDirExists(t, fx.layout.Dir(KindTrace))
}

func TestCapture_FailuresAreIsolated(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		script browsertest.Script
		check  func(t *testing.T, b Bundle)
	}{
		{
			name:   "screenshot error",
			script: browsertest.Script{ScreenshotErr: errDiskFull},
			check: func(t *testing.T, b Bundle) {
				t.Helper()
				assert.Empty(t, b.Screenshot)
				assert.NotEmpty(t, b.Trace)
				assert.NotEmpty(t, b.Video)
				assert.NotEmpty(t, b.Console)
			},
		},
		{
			name:   "screenshot panic",
			script: browsertest.Script{PanicOnScreenshot: true},
			check: func(t *testing.T, b Bundle) {
				t.Helper()
				assert.Empty(t, b.Screenshot)
				assert.NotEmpty(t, b.Trace)
				assert.NotEmpty(t, b.Video)
				assert.NotEmpty(t, b.Console)
			},
		},
		{
			name:   "trace error",
			script: browsertest.Script{StopTraceErr: errDiskFull},
			check: func(t *testing.T, b Bundle) {
				t.Helper()
				assert.NotEmpty(t, b.Screenshot)
				assert.Empty(t, b.Trace)
				assert.NotEmpty(t, b.Video)
				assert.NotEmpty(t, b.Console)
			},
		},
		{
			name:   "video error",
			script: browsertest.Script{VideoErr: errDiskFull},
			check: func(t *testing.T, b Bundle) {
				t.Helper()
				assert.NotEmpty(t, b.Screenshot)
				assert.NotEmpty(t, b.Trace)
				assert.Empty(t, b.Video)
				assert.NotEmpty(t, b.Console)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fx := newFixture(t, everything, tt.script)

			var bundle Bundle

			assert.NotPanics(t, func() {
				bundle = NewCapturer(fx.layout).Capture(t.Context(), fx.request(everything, true))
			})

			tt.check(t, bundle)
		})
	}
}

func TestCapture_NoVideoIsSkipped(t *testing.T) {
	t.Parallel()

	// Videos are configured but the session was created without a video dir.
	fx := newFixture(t, Config{ScreenshotOnFail: true}, browsertest.Script{})

	req := fx.request(everything, true)
	req.TraceStarted = false

	bundle := NewCapturer(fx.layout).Capture(t.Context(), req)

	assert.Empty(t, bundle.Video)
	assert.Empty(t, bundle.Trace)
	assert.NotEmpty(t, bundle.Screenshot)
}

func TestCapture_NilCollaborators(t *testing.T) {
	t.Parallel()

	capturer := NewCapturer(NewLayout(t.TempDir()))

	assert.NotPanics(t, func() {
		bundle := capturer.Capture(t.Context(), Request{Name: "x", Failed: true, Config: everything, TraceStarted: true})
		assert.Equal(t, Bundle{}, bundle)
	})
}

func TestCapture_Metrics(t *testing.T) { //nolint:paralleltest
	fx := newFixture(t, everything, browsertest.Script{ScreenshotErr: errTestFailed})

	failedBefore := testutil.ToFloat64(captures.WithLabelValues(KindScreenshot, resultFailed))
	savedBefore := testutil.ToFloat64(captures.WithLabelValues(KindTrace, resultSaved))

	NewCapturer(fx.layout).Capture(t.Context(), fx.request(everything, true))

	assert.InDelta(t, failedBefore+1, testutil.ToFloat64(captures.WithLabelValues(KindScreenshot, resultFailed)), 0)
	assert.InDelta(t, savedBefore+1, testutil.ToFloat64(captures.WithLabelValues(KindTrace, resultSaved)), 0)
}

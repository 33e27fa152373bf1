package browsertest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/amp-labs/e2e-harness/browser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	dir := t.TempDir()

	drv := NewDriver()
	drv.Browser.SetScript(Script{
		Title:   "Fast and reliable end-to-end testing | Playwright",
		Console: []browser.ConsoleMessage{{Type: "log", Text: "hello"}},
	})

	b, err := drv.Launch(ctx, browser.LaunchOptions{Kind: browser.Firefox})
	require.NoError(t, err)

	sess, err := b.NewSession(ctx, browser.SessionOptions{VideoDir: dir})
	require.NoError(t, err)

	page, err := sess.NewPage(ctx)
	require.NoError(t, err)

	var got []browser.ConsoleMessage

	page.OnConsole(func(m browser.ConsoleMessage) { got = append(got, m) })

	require.NoError(t, sess.StartTrace(ctx, browser.TraceOptions{Screenshots: true}))
	require.NoError(t, page.Navigate(ctx, "https://playwright.dev/"))

	title, err := page.Title(ctx)
	require.NoError(t, err)
	assert.Contains(t, title, "Playwright")
	assert.Len(t, got, 1)

	shot := filepath.Join(dir, "s.png")
	_, err = page.Screenshot(ctx, browser.ScreenshotOptions{Path: shot, FullPage: true})
	require.NoError(t, err)
	assert.FileExists(t, shot)

	trace := filepath.Join(dir, "t.zip")
	require.NoError(t, sess.StopTrace(ctx, trace))
	require.ErrorIs(t, sess.StopTrace(ctx, trace), ErrTraceNotStarted)

	video := page.Video()
	require.NotNil(t, video)

	videoPath := filepath.Join(dir, "v.webm")
	require.NoError(t, video.SaveAs(ctx, videoPath))

	data, err := os.ReadFile(videoPath)
	require.NoError(t, err)
	assert.Equal(t, VideoData, string(data))

	fake := drv.Browser.Sessions()[0].Pages()[0]
	assert.True(t, fake.Closed(), "saving a video closes the page")
	assert.Equal(t, []string{"https://playwright.dev/"}, fake.Visited())
	assert.Equal(t, browser.Firefox, drv.Launches()[0].Kind)
}

func TestFake_NoVideoWithoutDir(t *testing.T) {
	t.Parallel()

	sess, err := (&Browser{}).NewSession(t.Context(), browser.SessionOptions{})
	require.NoError(t, err)

	page, err := sess.NewPage(t.Context())
	require.NoError(t, err)

	assert.Nil(t, page.Video())
}

func TestPage_EmitUsesListenerSnapshot(t *testing.T) {
	t.Parallel()

	ctx := t.Context()

	b, err := NewDriver().Launch(ctx, browser.LaunchOptions{})
	require.NoError(t, err)

	sess, err := b.NewSession(ctx, browser.SessionOptions{})
	require.NoError(t, err)

	page, err := sess.NewPage(ctx)
	require.NoError(t, err)

	fake, ok := page.(*Page)
	require.True(t, ok)

	var first, late []string

	fake.OnConsole(func(m browser.ConsoleMessage) {
		first = append(first, m.Text)

		// Subscribing from inside a listener must not deadlock.
		fake.OnConsole(func(m browser.ConsoleMessage) { late = append(late, m.Text) })
	})

	fake.Emit(browser.ConsoleMessage{Type: "log", Text: "one"})
	assert.Equal(t, []string{"one"}, first)
	assert.Empty(t, late, "a listener added during Emit waits for the next message")

	fake.Emit(browser.ConsoleMessage{Type: "warning", Text: "two"})
	assert.Equal(t, []string{"one", "two"}, first)
	assert.Equal(t, []string{"two"}, late)
}

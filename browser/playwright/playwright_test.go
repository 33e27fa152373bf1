package playwright

import (
	"testing"

	"github.com/amp-labs/e2e-harness/browser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLaunchOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		opts     browser.LaunchOptions
		engine   browser.Kind
		channel  string
		headless bool
	}{
		{
			name:     "chromium headless",
			opts:     browser.LaunchOptions{Kind: browser.Chromium},
			engine:   browser.Chromium,
			headless: true,
		},
		{
			name:   "firefox headed",
			opts:   browser.LaunchOptions{Kind: browser.Firefox, Headed: true},
			engine: browser.Firefox,
		},
		{
			name:     "webkit",
			opts:     browser.LaunchOptions{Kind: browser.WebKit},
			engine:   browser.WebKit,
			headless: true,
		},
		{
			name:     "chrome uses the chromium engine on the chrome channel",
			opts:     browser.LaunchOptions{Kind: browser.Chrome},
			engine:   browser.Chromium,
			channel:  "chrome",
			headless: true,
		},
		{
			name:     "unset kind is chromium",
			opts:     browser.LaunchOptions{},
			engine:   browser.Chromium,
			headless: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			engine, launch := launchOptions(tt.opts)

			assert.Equal(t, tt.engine, engine)
			require.NotNil(t, launch.Headless)
			assert.Equal(t, tt.headless, *launch.Headless)

			if tt.channel == "" {
				assert.Nil(t, launch.Channel)
			} else {
				require.NotNil(t, launch.Channel)
				assert.Equal(t, tt.channel, *launch.Channel)
			}
		})
	}
}

func TestContextOptions(t *testing.T) {
	t.Parallel()

	assert.Nil(t, contextOptions(browser.SessionOptions{}).RecordVideo)

	withVideo := contextOptions(browser.SessionOptions{VideoDir: "playwright-report/videos/.raw-x"})
	require.NotNil(t, withVideo.RecordVideo)
	assert.Equal(t, "playwright-report/videos/.raw-x", withVideo.RecordVideo.Dir)
}

func TestTraceOptions(t *testing.T) {
	t.Parallel()

	opts := traceOptions(browser.TraceOptions{Screenshots: true, Snapshots: false})

	require.NotNil(t, opts.Screenshots)
	require.NotNil(t, opts.Snapshots)
	assert.True(t, *opts.Screenshots)
	assert.False(t, *opts.Snapshots)
}

func TestDriver_LaunchAfterClose(t *testing.T) {
	t.Parallel()

	d := New(WithInstall(false))
	require.NoError(t, d.Close())

	_, err := d.Launch(t.Context(), browser.LaunchOptions{})
	require.ErrorIs(t, err, ErrNotRunning)
}

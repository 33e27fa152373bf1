package artifacts

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/amp-labs/e2e-harness/browser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscript(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "x.log")

	tr, err := OpenTranscript(path)
	require.NoError(t, err)

	tr.Append(browser.ConsoleMessage{Type: "log", Text: "hello"})
	tr.Append(browser.ConsoleMessage{Type: "error", Text: "line one\nline two\r\nline three"})

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	tr.Append(browser.ConsoleMessage{Type: "log", Text: "after close"})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[log] hello\n[error] line one line two line three\n", string(data))
	assert.Equal(t, path, tr.Path())
}

func TestTranscript_Nil(t *testing.T) {
	t.Parallel()

	var tr *Transcript

	assert.NotPanics(t, func() {
		tr.Append(browser.ConsoleMessage{Type: "log", Text: "dropped"})
		assert.NoError(t, tr.Close())
		assert.Empty(t, tr.Path())
	})
}

func TestTranscript_ConcurrentAppend(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "x.log")

	tr, err := OpenTranscript(path)
	require.NoError(t, err)

	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 100 {
				tr.Append(browser.ConsoleMessage{Type: "log", Text: "tick"})
			}
		}()
	}

	wg.Wait()
	require.NoError(t, tr.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1000*len("[log] tick\n"), len(data))
}

func TestOpenTranscript_Error(t *testing.T) {
	t.Parallel()

	blocker := filepath.Join(t.TempDir(), "logs")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	_, err := OpenTranscript(filepath.Join(blocker, "x.log"))
	require.Error(t, err)
}

func TestLayout_Reserve(t *testing.T) {
	t.Parallel()

	layout := NewLayout(t.TempDir())

	first, tr1, err := layout.Reserve("TestHome_title-attempt1-20250607080910")
	require.NoError(t, err)
	assert.Equal(t, "TestHome_title-attempt1-20250607080910", first)

	tr1.Append(browser.ConsoleMessage{Type: "log", Text: "first run"})
	require.NoError(t, tr1.Close())

	second, tr2, err := layout.Reserve("TestHome_title-attempt1-20250607080910")
	require.NoError(t, err)
	assert.Equal(t, "TestHome_title-attempt1-20250607080910-2", second)
	assert.Equal(t, layout.Console(second), tr2.Path())
	require.NoError(t, tr2.Close())

	data, err := os.ReadFile(layout.Console(first))
	require.NoError(t, err)
	assert.Equal(t, "[log] first run\n", string(data), "an earlier transcript is never truncated")
}

func TestLayout_ReserveConcurrent(t *testing.T) {
	t.Parallel()

	layout := NewLayout(t.TempDir())

	var (
		mu    sync.Mutex
		names = make(map[string]bool)
		wg    sync.WaitGroup
	)

	for range 8 {
		wg.Go(func() {
			name, tr, err := layout.Reserve("same")
			assert.NoError(t, err)
			assert.NoError(t, tr.Close())

			mu.Lock()
			names[name] = true
			mu.Unlock()
		})
	}

	wg.Wait()
	assert.Len(t, names, 8)
}

func TestLayout_ReserveError(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, KindConsole), nil, 0o600))

	name, tr, err := NewLayout(root).Reserve("x")
	require.Error(t, err)
	assert.Equal(t, "x", name)
	assert.Nil(t, tr)
}

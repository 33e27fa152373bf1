package attemptlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))
}

func TestLogger_Record(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "target", "retry-attempts.jsonl")
	log := New(path, WithClock(fixedClock))

	log.Record(t.Context(), Outcome{
		Class: "TestHome", Method: "loads_title", Attempt: 1, MaxRetries: 2, ErrorKind: "TimeoutError",
	})
	log.Record(t.Context(), Outcome{
		Class: "TestHome", Method: "loads_title", Attempt: 2, MaxRetries: 2, Success: true, ErrorKind: "ignored",
	})

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 2)

	assert.Equal(t,
		`{"timestamp":"2025-01-02T02:04:05Z","class":"TestHome","method":"loads_title",`+
			`"attempt":1,"maxRetries":2,"success":false,"errorType":"TimeoutError"}`,
		lines[0])
	assert.Equal(t,
		`{"timestamp":"2025-01-02T02:04:05Z","class":"TestHome","method":"loads_title",`+
			`"attempt":2,"maxRetries":2,"success":true,"errorType":null}`,
		lines[1])
	assert.Zero(t, log.Dropped())
}

func TestLogger_MissingKindDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "log.jsonl")
	New(path).Record(t.Context(), Outcome{Class: "C", Method: "m", Attempt: 1})

	entries, err := Read(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].ErrorType)
	assert.Equal(t, "error", *entries[0].ErrorType)
}

func TestLogger_ConcurrentWritesDoNotInterleave(t *testing.T) {
	t.Parallel()

	const (
		units    = 8
		attempts = 50
	)

	path := filepath.Join(t.TempDir(), "log.jsonl")
	log := New(path)

	var wg sync.WaitGroup

	for u := range units {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for a := 1; a <= attempts; a++ {
				log.Record(t.Context(), Outcome{
					Class:   fmt.Sprintf("Suite%d", u),
					Method:  strings.Repeat("m", 200),
					Attempt: a,
					Success: a%2 == 0,
				})
			}
		}()
	}

	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, units*attempts)

	entries, err := Read(path)
	require.NoError(t, err)
	assert.Len(t, entries, units*attempts, "every line must be a complete entry")
}

func TestLogger_WriteFailureIsSwallowed(t *testing.T) { //nolint:paralleltest
	dir := t.TempDir()
	blocker := filepath.Join(dir, "target")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0o600))

	log := New(filepath.Join(blocker, "retry-attempts.jsonl"))

	before := testutil.ToFloat64(writeErrors)

	assert.NotPanics(t, func() {
		log.Record(t.Context(), Outcome{Class: "C", Method: "m", Attempt: 1})
	})

	assert.Equal(t, int64(1), log.Dropped())
	assert.InDelta(t, before+1, testutil.ToFloat64(writeErrors), 0)
}

func TestLogger_NilIsNoop(t *testing.T) {
	t.Parallel()

	var log *Logger

	assert.NotPanics(t, func() {
		log.Record(t.Context(), Outcome{Attempt: 1})
	})
}

func TestNew_DefaultPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultPath, New("").Path())
}

func TestDecode_SkipsMalformedLines(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		`{"timestamp":"2025-01-02T03:04:05Z","class":"A","method":"a","attempt":1,"maxRetries":0,"success":true,"errorType":null}`,
		`not json`,
		``,
		`{"class":"B","method":"b"}`,
		`{"timestamp":"2025-01-02T03:04:06Z","class":"A","method":"b","attempt":1,"maxRetries":0,"success":false,"errorType":"Panic"}`,
	}, "\n")

	entries, err := Decode(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Method)
	assert.Nil(t, entries[0].ErrorType)
	assert.Equal(t, "Panic", *entries[1].ErrorType)
}

func TestRead_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Read(filepath.Join(t.TempDir(), "nope.jsonl"))
	require.Error(t, err)
}

// Package attemptlog keeps an append-only, line-delimited JSON record of every
// test attempt and its outcome.
//
// One line is written per attempt:
//
//	{"timestamp":"2025-01-02T03:04:05.123Z","class":"TestHome","method":"loads_title",
//	 "attempt":1,"maxRetries":2,"success":false,"errorType":"TimeoutError"}
//
// Writing never fails the caller. A test run must not break because the log
// directory is read-only or the disk is full; such errors are counted and
// logged at debug level instead.
package attemptlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/amp-labs/e2e-harness/logger"
	"github.com/goccy/go-json"
	"go.uber.org/atomic"
)

// DefaultPath is where the attempt log is written unless configured otherwise.
const DefaultPath = "target/retry-attempts.jsonl"

// Outcome is what the retry loop knows about one finished attempt.
type Outcome struct {
	Class      string
	Method     string
	Attempt    int
	MaxRetries int
	Success    bool
	// ErrorKind names the kind of failure. It is ignored when Success is set.
	ErrorKind string
}

// Entry is one line of the attempt log. Field order is the on-disk order.
type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	Class      string    `json:"class"`
	Method     string    `json:"method"`
	Attempt    int       `json:"attempt"`
	MaxRetries int       `json:"maxRetries"`
	Success    bool      `json:"success"`
	ErrorType  *string   `json:"errorType"`
}

// Recorder is anything that can take attempt outcomes. *Logger implements it.
type Recorder interface {
	Record(ctx context.Context, o Outcome)
}

// Option configures a Logger.
type Option func(*Logger)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		if now != nil {
			l.now = now
		}
	}
}

// Logger appends entries to a file. It is safe for concurrent use; every
// entry is encoded in memory and written with a single write on an O_APPEND
// descriptor, so lines from concurrent units (or processes) never interleave.
type Logger struct {
	path    string
	now     func() time.Time
	mu      sync.Mutex
	dropped atomic.Int64
}

var _ Recorder = (*Logger)(nil)

// New returns a Logger writing to path, or DefaultPath when path is empty.
// The file and its directory are created lazily on first write.
func New(path string, opts ...Option) *Logger {
	if path == "" {
		path = DefaultPath
	}

	l := &Logger{
		path: path,
		now:  time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Path returns the file the logger appends to.
func (l *Logger) Path() string {
	return l.path
}

// Dropped returns how many records could not be written.
func (l *Logger) Dropped() int64 {
	return l.dropped.Load()
}

// Record appends one entry for o, timestamped now. It never returns an error.
func (l *Logger) Record(ctx context.Context, o Outcome) {
	if l == nil {
		return
	}

	entry := Entry{
		Timestamp:  l.now().UTC(),
		Class:      o.Class,
		Method:     o.Method,
		Attempt:    o.Attempt,
		MaxRetries: o.MaxRetries,
		Success:    o.Success,
	}

	if !o.Success {
		kind := o.ErrorKind
		if kind == "" {
			kind = "error"
		}

		entry.ErrorType = &kind
	}

	if err := l.append(entry); err != nil {
		l.dropped.Inc()
		writeErrors.Inc()

		logger.Get(ctx).Debug("unable to write attempt log",
			"path", l.path, "class", o.Class, "method", o.Method, "attempt", o.Attempt, "error", err)

		return
	}

	entriesWritten.Inc()
}

func (l *Logger) append(entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}

	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:mnd
			return fmt.Errorf("creating log dir: %w", err)
		}
	}

	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:mnd
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}

	_, writeErr := file.Write(line)
	closeErr := file.Close()

	if writeErr != nil {
		return fmt.Errorf("writing log: %w", writeErr)
	}

	if closeErr != nil {
		return fmt.Errorf("closing log: %w", closeErr)
	}

	return nil
}

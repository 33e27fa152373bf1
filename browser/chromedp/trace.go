package chromedp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/amp-labs/e2e-harness/browser"
	"github.com/chromedp/cdproto/tracing"
	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zip"
)

var (
	// ErrTraceNotStarted is returned by StopTrace without a running trace.
	ErrTraceNotStarted = errors.New("trace not started")
	// ErrTraceRunning is returned by StartTrace when a trace is already running.
	ErrTraceRunning = errors.New("trace already running")
)

// TraceEntry is the name of the trace-event file inside the archive.
const TraceEntry = "trace.json"

const screenshotCategory = "disabled-by-default-devtools.screenshot"

// Categories recorded by every trace. Screenshots add the filmstrip category.
var traceCategories = []string{ //nolint:gochecknoglobals
	"devtools.timeline",
	"v8.execute",
	"blink.console",
	"blink.user_timing",
	"loading",
	"latencyInfo",
}

// traceRecorder buffers trace events delivered by the DevTools protocol.
// Events arrive on chromedp's listener goroutine; listen never blocks.
type traceRecorder struct {
	mu       sync.Mutex
	running  bool
	events   []json.RawMessage
	complete chan struct{}
}

func newTraceRecorder() *traceRecorder {
	return &traceRecorder{}
}

func (t *traceRecorder) listen(ev any) {
	switch e := ev.(type) {
	case *tracing.EventDataCollected:
		t.collect(e)
	case *tracing.EventTracingComplete:
		t.mu.Lock()
		if t.complete != nil {
			close(t.complete)
			t.complete = nil
		}
		t.mu.Unlock()
	}
}

func (t *traceRecorder) collect(e *tracing.EventDataCollected) {
	batch := make([]json.RawMessage, 0, len(e.Value))

	for _, v := range e.Value {
		raw, err := json.Marshal(v)
		if err != nil || len(raw) == 0 {
			continue
		}

		batch = append(batch, raw)
	}

	t.mu.Lock()
	t.events = append(t.events, batch...)
	t.mu.Unlock()
}

func startParams(opts browser.TraceOptions) *tracing.StartParams {
	categories := append([]string{}, traceCategories...)
	if opts.Screenshots {
		categories = append(categories, screenshotCategory)
	}

	return tracing.Start().
		WithTransferMode(tracing.TransferModeReportEvents).
		WithTraceConfig(&tracing.TraceConfig{IncludedCategories: categories})
}

func (t *traceRecorder) start(ctx, target context.Context, opts browser.TraceOptions) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()

		return ErrTraceRunning
	}

	t.running = true
	t.events = nil
	t.complete = make(chan struct{})
	t.mu.Unlock()

	if err := run(ctx, target, startParams(opts)); err != nil {
		t.mu.Lock()
		t.running = false
		t.complete = nil
		t.mu.Unlock()

		return fmt.Errorf("starting trace: %w", err)
	}

	return nil
}

func (t *traceRecorder) stop(ctx, target context.Context, path string) error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()

		return ErrTraceNotStarted
	}

	t.running = false
	complete := t.complete
	t.mu.Unlock()

	if err := run(ctx, target, tracing.End()); err != nil {
		return fmt.Errorf("stopping trace: %w", err)
	}

	if complete != nil {
		select {
		case <-complete:
		case <-ctx.Done():
			return ctx.Err()
		case <-target.Done():
			return fmt.Errorf("stopping trace: %w", target.Err())
		}
	}

	t.mu.Lock()
	events := t.events
	t.events = nil
	t.mu.Unlock()

	return writeTraceArchive(path, events)
}

// writeTraceArchive writes events as {"traceEvents": [...]} into a zip at path.
func writeTraceArchive(path string, events []json.RawMessage) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec
		return fmt.Errorf("creating trace directory: %w", err)
	}

	f, err := os.Create(path) //nolint:gosec
	if err != nil {
		return fmt.Errorf("creating trace archive: %w", err)
	}

	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	zw := zip.NewWriter(f)

	entry, err := zw.Create(TraceEntry)
	if err != nil {
		return fmt.Errorf("creating trace entry: %w", err)
	}

	w := bufio.NewWriter(entry)

	if err := json.NewEncoder(w).Encode(struct {
		TraceEvents []json.RawMessage `json:"traceEvents"`
	}{TraceEvents: nonNil(events)}); err != nil {
		return fmt.Errorf("encoding trace events: %w", err)
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing trace events: %w", err)
	}

	return zw.Close()
}

func nonNil(events []json.RawMessage) []json.RawMessage {
	if events == nil {
		return []json.RawMessage{}
	}

	return events
}

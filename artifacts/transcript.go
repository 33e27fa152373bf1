package artifacts

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/amp-labs/e2e-harness/browser"
)

// maxReservations bounds how many suffixes Reserve tries for one name.
const maxReservations = 1000

// ErrNameTaken is returned by Reserve when every candidate name is in use.
var ErrNameTaken = errors.New("artifact name already in use")

var flatten = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ") //nolint:gochecknoglobals

// Transcript is an attempt's console log. Messages are appended as they
// arrive, one "[type] text" line each. A nil *Transcript discards everything,
// so callers don't need to special-case a transcript that failed to open.
type Transcript struct {
	path string

	mu     sync.Mutex
	file   *os.File
	w      *bufio.Writer
	closed bool
}

// OpenTranscript creates (or truncates) the transcript file at path.
func OpenTranscript(path string) (*Transcript, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:mnd
		return nil, fmt.Errorf("creating transcript dir: %w", err)
	}

	file, err := os.Create(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("creating transcript: %w", err)
	}

	return &Transcript{
		path: path,
		file: file,
		w:    bufio.NewWriter(file),
	}, nil
}

// Reserve claims an artifact name for one attempt by exclusively creating its
// console transcript. Names carry one-second timestamps, so repeated runs of
// the same test can collide; the first free one of name, name-2, name-3, ...
// is returned together with the open transcript. Every artifact of the
// attempt uses the returned name, so nothing from an earlier attempt is
// overwritten.
func (l Layout) Reserve(name string) (string, *Transcript, error) {
	if err := os.MkdirAll(l.Dir(KindConsole), 0o755); err != nil { //nolint:mnd
		return name, nil, fmt.Errorf("creating transcript dir: %w", err)
	}

	for i := 1; i <= maxReservations; i++ {
		candidate := name
		if i > 1 {
			candidate = fmt.Sprintf("%s-%d", name, i)
		}

		path := l.Console(candidate)

		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644) //nolint:gosec,mnd
		if errors.Is(err, os.ErrExist) {
			continue
		}

		if err != nil {
			return name, nil, fmt.Errorf("creating transcript: %w", err)
		}

		return candidate, &Transcript{path: path, file: file, w: bufio.NewWriter(file)}, nil
	}

	return name, nil, fmt.Errorf("%w: %s", ErrNameTaken, name)
}

// Path returns the transcript's file path, or "" for a nil transcript.
func (t *Transcript) Path() string {
	if t == nil {
		return ""
	}

	return t.path
}

// Append writes msg. Write errors are dropped; after Close it does nothing.
func (t *Transcript) Append(msg browser.ConsoleMessage) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	_, _ = fmt.Fprintf(t.w, "[%s] %s\n", msg.Type, flatten.Replace(msg.Text))
}

// Close flushes and closes the file. Only the first call does anything.
func (t *Transcript) Close() error {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}

	t.closed = true

	flushErr := t.w.Flush()
	closeErr := t.file.Close()

	if flushErr != nil {
		return fmt.Errorf("flushing transcript: %w", flushErr)
	}

	if closeErr != nil {
		return fmt.Errorf("closing transcript: %w", closeErr)
	}

	return nil
}

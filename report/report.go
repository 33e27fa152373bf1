// Package report delivers artifacts to whatever test report the run feeds.
//
// The harness only knows about the Sink interface. Runs without a report use
// Nop; runs that want attachments on disk next to the rest of the artifacts
// use Dir.
package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/amp-labs/e2e-harness/logger"
	"github.com/google/uuid"
)

// ErrEmptyAttachment is returned when an attachment carries no data.
var ErrEmptyAttachment = errors.New("attachment has no data")

// Attachment is one file offered to the report.
type Attachment struct {
	Name      string // human readable, e.g. "Screenshot on failure"
	MediaType string // e.g. "image/png"
	Extension string // without the dot, e.g. "png"
	Data      []byte
}

// Sink receives attachments. Implementations must be safe for concurrent use.
type Sink interface {
	Attach(ctx context.Context, a Attachment) error
}

// Nop discards every attachment.
type Nop struct{}

// Attach implements Sink.
func (Nop) Attach(context.Context, Attachment) error { return nil }

// Dir writes attachments into a directory as "<uuid>-attachment.<ext>", the
// naming report generators pick up from a results directory.
type Dir struct {
	Path string
}

// Attach implements Sink.
func (d Dir) Attach(_ context.Context, a Attachment) error {
	if len(a.Data) == 0 {
		return ErrEmptyAttachment
	}

	if err := os.MkdirAll(d.Path, 0o755); err != nil { //nolint:mnd
		return fmt.Errorf("creating report dir: %w", err)
	}

	name := uuid.NewString() + "-attachment"
	if a.Extension != "" {
		name += "." + a.Extension
	}

	if err := os.WriteFile(filepath.Join(d.Path, name), a.Data, 0o644); err != nil { //nolint:gosec,mnd
		return fmt.Errorf("writing attachment %q: %w", a.Name, err)
	}

	return nil
}

// Offer attaches a to sink without ever failing the caller. A nil sink is a
// no-op; errors and panics from the sink are logged and dropped.
func Offer(ctx context.Context, sink Sink, a Attachment) (ok bool) {
	if sink == nil {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Get(ctx).Debug("report sink panicked",
				"attachment", a.Name, "panic", r, "stack", string(debug.Stack()))

			ok = false
		}
	}()

	if err := sink.Attach(ctx, a); err != nil {
		logger.Get(ctx).Debug("unable to attach to report", "attachment", a.Name, "error", err)

		return false
	}

	return true
}

// Package should provides cleanup helpers for operations that should succeed
// but may fail in practice. Instead of returning errors they log them, which
// makes them suitable for defer statements and teardown code that must keep
// going.
package should

import (
	"context"
	"io"
	"os"
	"reflect"

	"github.com/amp-labs/e2e-harness/logger"
)

// Close closes closer and logs msg with the error if that fails. A nil closer
// (including a typed nil pointer) is ignored.
//
// Example:
//
//	defer should.Close(ctx, session, "unable to close browser session")
func Close(ctx context.Context, closer io.Closer, msg string) {
	if isNil(closer) {
		return
	}

	if err := closer.Close(); err != nil {
		logger.Get(ctx).Warn(msg, "error", err)
	}
}

// RemoveAll removes path and anything below it, logging msg with the error if
// that fails. A missing path is not an error.
//
// Example:
//
//	defer should.RemoveAll(ctx, rawVideoDir, "unable to remove raw recordings")
func RemoveAll(ctx context.Context, path string, msg string) {
	if path == "" {
		return
	}

	if err := os.RemoveAll(path); err != nil {
		logger.Get(ctx).Warn(msg, "path", path, "error", err)
	}
}

func isNil(closer io.Closer) bool {
	if closer == nil {
		return true
	}

	v := reflect.ValueOf(closer)

	return v.Kind() == reflect.Pointer && v.IsNil()
}

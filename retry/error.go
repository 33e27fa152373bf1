package retry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

// Error is an error that knows whether another attempt could help. When
// Temporary returns false the retry loop stops after recording the attempt.
type Error interface {
	Temporary() bool
	error
}

// permanentError wraps an error to mark it as permanent (non-retryable).
type permanentError struct {
	error
}

// Temporary returns false to indicate this error should not be retried.
func (e *permanentError) Temporary() bool { return false }

// Unwrap returns the underlying error for error chain unwrapping.
func (e *permanentError) Unwrap() error {
	return e.error
}

// Abort marks err as permanent. The attempt is still recorded, but no further
// attempts are made and err itself is returned to the caller. Use it for
// failures a retry cannot fix, such as a missing browser binary.
//
// Example:
//
//	if err := page.Navigate(ctx, baseURL); errors.Is(err, browser.ErrUnsupported) {
//	    return retry.Abort(err)
//	}
func Abort(err error) Error {
	return &permanentError{err}
}

// permanent returns the error to surface for a non-retryable failure, or nil
// when err may be retried.
func permanent(err error) error {
	var retryErr Error
	if !errors.As(err, &retryErr) || retryErr.Temporary() {
		return nil
	}

	var p *permanentError
	if errors.As(err, &p) {
		return p.error
	}

	return err
}

// PanicError is returned for an attempt whose body panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("test panicked: %v", p.Value)
}

// Unwrap exposes the panic value when it was an error.
func (p *PanicError) Unwrap() error {
	err, _ := p.Value.(error)

	return err
}

// Kind implements the kind reported by ErrorKind.
func (p *PanicError) Kind() string { return "Panic" }

// Names of error types that only wrap or carry a message and say nothing
// about what went wrong.
var genericErrorTypes = map[string]bool{ //nolint:gochecknoglobals
	"":               true,
	"errorString":    true,
	"wrapError":      true,
	"wrapErrors":     true,
	"joinError":      true,
	"permanentError": true,
}

// ErrorKind returns a short, stable name for the kind of err, suitable for the
// attempt log:
//
//   - the result of a Kind() string method anywhere in the chain,
//   - "DeadlineExceeded" or "Canceled" for context errors,
//   - otherwise the type name of the first error in the chain that isn't a
//     plain wrapper (errors.New, fmt.Errorf, errors.Join),
//   - "error" when nothing more specific is known.
//
// It returns "" for a nil error.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	var kinded interface{ Kind() string }
	if errors.As(err, &kinded) {
		if kind := kinded.Kind(); kind != "" {
			return kind
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "DeadlineExceeded"
	case errors.Is(err, context.Canceled):
		return "Canceled"
	}

	if name := firstSpecificType(err); name != "" {
		return name
	}

	return "error"
}

func firstSpecificType(err error) string {
	if err == nil {
		return ""
	}

	if name := typeName(err); !genericErrorTypes[name] {
		return name
	}

	switch x := err.(type) { //nolint:errorlint
	case interface{ Unwrap() error }:
		return firstSpecificType(x.Unwrap())
	case interface{ Unwrap() []error }:
		for _, inner := range x.Unwrap() {
			if name := firstSpecificType(inner); name != "" {
				return name
			}
		}
	}

	return ""
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	return t.Name()
}

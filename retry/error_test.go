package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TimeoutError struct {
	Selector string
}

func (e *TimeoutError) Error() string { return "timed out waiting for " + e.Selector }

type kindedError struct{}

func (kindedError) Error() string { return "assertion failed" }
func (kindedError) Kind() string  { return "AssertionFailed" }

func TestErrorKind(t *testing.T) {
	t.Parallel()

	timeout := &TimeoutError{Selector: "#login"}

	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil", err: nil, expected: ""},
		{name: "plain", err: errors.New("nope"), expected: "error"}, //nolint:err113
		{name: "typed", err: timeout, expected: "TimeoutError"},
		{name: "wrapped typed", err: fmt.Errorf("navigating: %w", timeout), expected: "TimeoutError"},
		{name: "joined", err: errors.Join(errFlaky, timeout), expected: "TimeoutError"},
		{name: "kind method", err: fmt.Errorf("check: %w", kindedError{}), expected: "AssertionFailed"},
		{name: "deadline", err: fmt.Errorf("goto: %w", context.DeadlineExceeded), expected: "DeadlineExceeded"},
		{name: "canceled", err: context.Canceled, expected: "Canceled"},
		{name: "panic", err: &PanicError{Value: "boom"}, expected: "Panic"},
		{name: "aborted", err: Abort(timeout), expected: "TimeoutError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, ErrorKind(tt.err))
		})
	}
}

func TestAbort_Unwrap(t *testing.T) {
	t.Parallel()

	abortErr := Abort(errBroken)

	require.ErrorIs(t, abortErr, errBroken)
	assert.False(t, abortErr.Temporary())
	assert.Equal(t, errBroken, errors.Unwrap(abortErr))
}

func TestPermanent(t *testing.T) {
	t.Parallel()

	assert.NoError(t, permanent(errFlaky))
	assert.Equal(t, errBroken, permanent(Abort(errBroken)))
	assert.Equal(t, errBroken, permanent(fmt.Errorf("step: %w", Abort(errBroken))))
}

func TestPanicError(t *testing.T) {
	t.Parallel()

	err := &PanicError{Value: 42}

	assert.Equal(t, "test panicked: 42", err.Error())
	assert.NoError(t, err.Unwrap())
}

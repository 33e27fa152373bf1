// Package retry re-runs failed test invocations.
//
// Each invocation of a test gets up to maxRetries+1 attempts, run strictly one
// after the other. Before an attempt starts its number is written into the
// execution unit's attempt.Context, so everything downstream (artifact names,
// log lines, spans) can tell attempts apart; it is cleared again when the
// attempt ends, whatever the outcome. Every attempt's outcome is handed to the
// configured recorder before the next one begins. When all attempts fail, the
// last attempt's error is returned unchanged.
//
// Basic usage:
//
//	err := retry.Do(ctx, attempt.Test{Class: "Home", Method: "title"}, func(ctx context.Context) error {
//	    return checkTitle(ctx)
//	}, retry.WithMaxRetries(2), retry.WithRecorder(attemptlog.New("")))
package retry

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/amp-labs/e2e-harness/attempt"
	"github.com/amp-labs/e2e-harness/attemptlog"
	"github.com/amp-labs/e2e-harness/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/amp-labs/e2e-harness/retry"

// Invocation runs a test body once.
type Invocation func(ctx context.Context) error

// Runner executes test invocations with retries.
type Runner interface {
	Do(ctx context.Context, test attempt.Test, f Invocation) error
}

// NewRunner creates a Runner. Without options a failed test is not retried,
// and outcomes are not recorded anywhere but the log.
//
// Example:
//
//	runner := retry.NewRunner(
//	    retry.WithMaxRetries(cfg.MaxRetries()),
//	    retry.WithRecorder(attempts),
//	)
//	err := runner.Do(ctx, test, body)
func NewRunner(opts ...Option) Runner {
	intOpts := &options{
		backoff: NoBackoff{},
	}

	for _, option := range opts {
		option(intOpts)
	}

	if intOpts.tracerProvider == nil {
		intOpts.tracerProvider = otel.GetTracerProvider()
	}

	return &runnerImpl{opts: intOpts}
}

type runnerImpl struct {
	opts *options
}

func (r *runnerImpl) Do(ctx context.Context, test attempt.Test, f Invocation) error {
	return do(ctx, r.opts, test, f)
}

// Do is a convenience function that creates a Runner and runs f with it.
func Do(ctx context.Context, test attempt.Test, f Invocation, opts ...Option) error {
	return NewRunner(opts...).Do(ctx, test, f)
}

// do is the attempt loop. It returns:
//   - nil as soon as an attempt succeeds
//   - the unwrapped error of an attempt that returned Abort(err)
//   - the last attempt's error once all attempts failed, or when ctx is done
//     while waiting between attempts
func do(ctx context.Context, opts *options, test attempt.Test, f Invocation) error {
	unit, ok := attempt.FromContext(ctx)
	if !ok {
		unit = attempt.New()
		ctx = attempt.WithContext(ctx, unit)
	}

	tracer := opts.tracerProvider.Tracer(instrumentationName)
	total := opts.maxRetries + 1

	var lastErr error

	for n := 1; n <= total; n++ {
		lastErr = runAttempt(ctx, opts, tracer, unit, test, n, f)
		if lastErr == nil {
			if n > 1 {
				recoveredTotal.Inc()
			}

			return nil
		}

		if err := permanent(lastErr); err != nil {
			return err
		}

		if n == total {
			break
		}

		delay := opts.backoff.Delay(uint(n - 1)) //nolint:gosec
		if delay <= 0 {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()

			return lastErr
		case <-timer.C:
		}
	}

	exhaustedTotal.Inc()

	return lastErr
}

func runAttempt(
	ctx context.Context,
	opts *options,
	tracer trace.Tracer,
	unit *attempt.Context,
	test attempt.Test,
	n int,
	f Invocation,
) error {
	unit.Set(n)
	defer unit.Clear()

	ctx = logger.With(ctx, "class", test.Class, "method", test.Method, "attempt", n)

	ctx, span := tracer.Start(ctx, "test.attempt", trace.WithAttributes(
		attribute.String("test.class", test.Class),
		attribute.String("test.method", test.Method),
		attribute.Int("test.attempt", n),
		attribute.Int("test.max_retries", opts.maxRetries),
	))
	defer span.End()

	err := invoke(ctx, f)

	outcome := attemptlog.Outcome{
		Class:      test.Class,
		Method:     test.Method,
		Attempt:    n,
		MaxRetries: opts.maxRetries,
		Success:    err == nil,
	}

	if err != nil {
		outcome.ErrorKind = ErrorKind(err)

		span.RecordError(err)
		span.SetStatus(codes.Error, outcome.ErrorKind)
		span.SetAttributes(attribute.String("test.error_type", outcome.ErrorKind))

		attemptsTotal.WithLabelValues(outcomeFailed).Inc()

		logger.Get(ctx).Info("test attempt failed",
			"maxRetries", opts.maxRetries, "errorType", outcome.ErrorKind, "error", err)
	} else {
		attemptsTotal.WithLabelValues(outcomePassed).Inc()

		logger.Get(ctx).Debug("test attempt passed")
	}

	if opts.recorder != nil {
		opts.recorder.Record(ctx, outcome)
	}

	return err
}

// invoke runs f, turning a panic into a *PanicError so a crashing test body
// is treated like any other failed attempt.
func invoke(ctx context.Context, f Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	return f(ctx)
}

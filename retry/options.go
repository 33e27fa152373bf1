package retry

import (
	"github.com/amp-labs/e2e-harness/attemptlog"
	"go.opentelemetry.io/otel/trace"
)

// Option is a function that configures a Runner.
type Option func(*options)

type options struct {
	maxRetries     int
	backoff        Backoff
	recorder       attemptlog.Recorder
	tracerProvider trace.TracerProvider
}

// WithMaxRetries sets how many times a failed test is re-run. The test gets
// n+1 attempts in total. Negative values mean no retries.
//
// Example:
//
//	runner := retry.NewRunner(retry.WithMaxRetries(2)) // up to 3 attempts
func WithMaxRetries(n int) Option {
	return func(o *options) {
		o.maxRetries = max(0, n)
	}
}

// WithBackoff configures the delay between attempts. The default is NoBackoff.
func WithBackoff(b Backoff) Option {
	return func(o *options) {
		if b != nil {
			o.backoff = b
		}
	}
}

// WithRecorder sets where attempt outcomes are recorded, typically an
// *attemptlog.Logger. Without one, outcomes are only logged and counted.
func WithRecorder(r attemptlog.Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider used
// for attempt spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// Package suite runs many test cases outside of `go test` on a fixed number of
// execution units. Each unit owns one attempt.Context for its whole life and
// runs cases one after another; units run in parallel on a pond pool.
package suite

import (
	"context"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/amp-labs/e2e-harness/attempt"
	"github.com/amp-labs/e2e-harness/lifecycle"
	"github.com/amp-labs/e2e-harness/logger"
)

const defaultUnits = 4

// Executor runs one test with retries. *harness.Harness implements it.
type Executor interface {
	Exec(ctx context.Context, test attempt.Test, body lifecycle.Body) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, test attempt.Test, body lifecycle.Body) error

func (f ExecutorFunc) Exec(ctx context.Context, test attempt.Test, body lifecycle.Body) error {
	return f(ctx, test, body)
}

// Case is one test to run.
type Case struct {
	Test attempt.Test
	Body lifecycle.Body
}

// Result is the outcome of one Case.
type Result struct {
	Test     attempt.Test
	Err      error
	Duration time.Duration
	// Unit is the index of the execution unit that ran the case.
	Unit int
}

// Passed reports whether the case succeeded.
func (r Result) Passed() bool {
	return r.Err == nil
}

// Option configures Run.
type Option func(*options)

type options struct {
	units int
}

// WithUnits sets the number of execution units. Values below 1 are ignored.
func WithUnits(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.units = n
		}
	}
}

type unit struct {
	index int
	state *attempt.Context
}

// Run executes every case and returns their results in the order of cases.
// Cases not started before ctx is done get ctx.Err() as their result.
func Run(ctx context.Context, exec Executor, cases []Case, opts ...Option) []Result {
	o := &options{units: defaultUnits}

	for _, opt := range opts {
		opt(o)
	}

	n := min(o.units, max(1, len(cases)))

	units := make(chan *unit, n)
	for i := range n {
		units <- &unit{index: i, state: attempt.New()}
	}

	pool := pond.NewPool(n, pond.WithContext(ctx))

	results := make([]Result, len(cases))
	started := make([]bool, len(cases))
	group := pool.NewGroup()

	for i, c := range cases {
		group.Submit(func() {
			u := <-units
			defer func() { units <- u }()

			started[i] = true
			results[i] = runCase(ctx, exec, u, c)
		})
	}

	if err := group.Wait(); err != nil {
		logger.Get(ctx).Warn("suite stopped early", "error", err)
	}

	// Wait returns as soon as ctx is done; running cases still finish.
	pool.StopAndWait()

	for i, c := range cases {
		if !started[i] {
			results[i] = Result{Test: c.Test, Err: context.Cause(ctx), Unit: -1}
		}
	}

	return results
}

func runCase(ctx context.Context, exec Executor, u *unit, c Case) Result {
	if err := ctx.Err(); err != nil {
		return Result{Test: c.Test, Err: err, Unit: u.index}
	}

	ctx = attempt.WithContext(ctx, u.state)
	ctx = logger.With(ctx, "unit", u.index)

	start := time.Now()
	err := exec.Exec(ctx, c.Test, c.Body)
	elapsed := time.Since(start)

	logger.Get(ctx).Debug("case finished",
		"test", c.Test.String(), "passed", err == nil, "duration", elapsed)

	return Result{Test: c.Test, Err: err, Duration: elapsed, Unit: u.index}
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result

	for _, r := range results {
		if !r.Passed() {
			out = append(out, r)
		}
	}

	return out
}

package suite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/amp-labs/e2e-harness/attempt"
	"github.com/amp-labs/e2e-harness/browser"
	"github.com/amp-labs/e2e-harness/lifecycle"
	"github.com/amp-labs/e2e-harness/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBroken = errors.New("broken")

func makeCases(n int, body lifecycle.Body) []Case {
	cases := make([]Case, n)
	for i := range cases {
		cases[i] = Case{
			Test: attempt.Test{Class: "TestSuite", Method: fmt.Sprintf("case_%02d", i)},
			Body: body,
		}
	}

	return cases
}

// direct runs the body once without a browser.
var direct = ExecutorFunc(func(ctx context.Context, _ attempt.Test, body lifecycle.Body) error { //nolint:gochecknoglobals
	return body(ctx, nil)
})

func TestRun_ResultsInOrder(t *testing.T) {
	t.Parallel()

	cases := makeCases(10, nil)
	for i := range cases {
		fail := i%3 == 0
		cases[i].Body = func(context.Context, browser.Page) error {
			if fail {
				return errBroken
			}

			return nil
		}
	}

	results := Run(t.Context(), direct, cases, WithUnits(3))
	require.Len(t, results, len(cases))

	for i, r := range results {
		assert.Equal(t, cases[i].Test, r.Test)
		assert.Equal(t, i%3 != 0, r.Passed(), "case %d", i)
		assert.GreaterOrEqual(t, r.Unit, 0)
		assert.Less(t, r.Unit, 3)
	}

	assert.Len(t, Failed(results), 4)
}

func TestRun_BoundedConcurrency(t *testing.T) {
	t.Parallel()

	var (
		running atomic.Int32
		peak    atomic.Int32
	)

	body := func(context.Context, browser.Page) error {
		now := running.Add(1)
		defer running.Add(-1)

		for {
			p := peak.Load()
			if now <= p || peak.CompareAndSwap(p, now) {
				break
			}
		}

		return nil
	}

	results := Run(t.Context(), direct, makeCases(50, body), WithUnits(2))

	assert.Empty(t, Failed(results))
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRun_UnitsAreReusedAndCleared(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		units = map[*attempt.Context]int{}
	)

	// Every case fails its first attempt, so each unit goes through attempt 2
	// before being handed the next case.
	exec := ExecutorFunc(func(ctx context.Context, test attempt.Test, body lifecycle.Body) error {
		return retry.Do(ctx, test, func(ctx context.Context) error {
			return body(ctx, nil)
		}, retry.WithMaxRetries(1))
	})

	body := func(ctx context.Context, _ browser.Page) error {
		unit, ok := attempt.FromContext(ctx)
		require.True(t, ok)

		n := attempt.Current(ctx)

		mu.Lock()
		defer mu.Unlock()

		units[unit]++

		if n == 1 {
			return errBroken
		}

		return nil
	}

	results := Run(t.Context(), exec, makeCases(8, body), WithUnits(2))

	assert.Empty(t, Failed(results))
	assert.LessOrEqual(t, len(units), 2)

	total := 0

	for unit, calls := range units {
		total += calls

		assert.Zero(t, calls%2, "every case on a unit takes exactly two attempts")
		assert.Equal(t, attempt.Default, unit.Get())
	}

	assert.Equal(t, 16, total)
}

func TestRun_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	var calls atomic.Int32

	results := Run(ctx, direct, makeCases(5, func(context.Context, browser.Page) error {
		calls.Add(1)

		return nil
	}))

	require.Len(t, results, 5)
	assert.Zero(t, calls.Load())

	for _, r := range results {
		require.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestRun_NoCases(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Run(t.Context(), direct, nil))
}

func TestWithUnits_IgnoresNonPositive(t *testing.T) {
	t.Parallel()

	o := &options{units: defaultUnits}
	WithUnits(0)(o)
	WithUnits(-3)(o)

	assert.Equal(t, defaultUnits, o.units)
}

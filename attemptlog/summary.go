package attemptlog

import "math"

// TestRef names one test invocation in a Summary.
type TestRef struct {
	Class    string `json:"class"`
	Method   string `json:"method"`
	Attempts int    `json:"attempts"`
}

// Summary aggregates an attempt log into retry statistics.
type Summary struct {
	// Tests is the number of test invocations. Repeated runs of the same test
	// in one log count separately.
	Tests    int `json:"tests"`
	Attempts int `json:"attempts"`
	Failures int `json:"failedAttempts"`
	// Retried counts invocations that needed more than one attempt because an
	// earlier one failed.
	Retried int `json:"retriedTests"`
	// Recovered counts retried invocations whose final attempt passed.
	Recovered int `json:"recoveredTests"`
	// RecoveryRate is Recovered/Retried as a percentage with two decimals.
	RecoveryRate  float64   `json:"recoveryRate"`
	FlakyPasses   []TestRef `json:"flakyPasses"`
	FinalFailures []TestRef `json:"finalFailures"`
}

type testKey struct {
	class, method string
}

type invocation struct {
	key         testKey
	attempts    int
	lastAttempt int
	earlyFail   bool
	lastResult  bool
}

// accepts reports whether attempt can follow inv: the run is still failing
// and attempt comes after the last one seen.
func (inv *invocation) accepts(attempt int) bool {
	return inv.attempts > 0 && !inv.lastResult && attempt > inv.lastAttempt
}

// Summarize groups entries by (class, method) and computes retry statistics.
//
// Several runs of one test may share a log, sequentially or interleaved when
// concurrent writers append to the same file. An entry joins the oldest
// unfinished run of its test that expects exactly its attempt number, else
// the oldest unfinished run it can still follow. Only an attempt-1 entry (or
// one no run can take) starts a new run. Output lists keep the order in which
// runs start.
func Summarize(entries []Entry) Summary {
	var (
		summary Summary
		order   []*invocation
		runs    = make(map[testKey][]*invocation)
	)

	for _, e := range entries {
		key := testKey{class: e.Class, method: e.Method}
		n := max(e.Attempt, 1)

		inv := pickRun(runs[key], n)
		if inv == nil {
			inv = &invocation{key: key}
			runs[key] = append(runs[key], inv)
			order = append(order, inv)
		}

		if inv.attempts > 0 && !inv.lastResult {
			inv.earlyFail = true
		}

		inv.attempts++
		inv.lastAttempt = n
		inv.lastResult = e.Success

		summary.Attempts++

		if !e.Success {
			summary.Failures++
		}
	}

	summary.FlakyPasses = []TestRef{}
	summary.FinalFailures = []TestRef{}

	for _, inv := range order {
		summary.Tests++

		ref := TestRef{Class: inv.key.class, Method: inv.key.method, Attempts: inv.attempts}

		if inv.attempts > 1 && inv.earlyFail {
			summary.Retried++

			if inv.lastResult {
				summary.Recovered++
				summary.FlakyPasses = append(summary.FlakyPasses, ref)
			}
		}

		if !inv.lastResult {
			summary.FinalFailures = append(summary.FinalFailures, ref)
		}
	}

	if summary.Retried > 0 {
		rate := float64(summary.Recovered) / float64(summary.Retried) * 100 //nolint:mnd
		summary.RecoveryRate = math.Round(rate*100) / 100                   //nolint:mnd
	}

	return summary
}

// pickRun returns the run that attempt n continues, or nil when n starts a
// new one.
func pickRun(runs []*invocation, n int) *invocation {
	if n <= 1 {
		return nil
	}

	for _, inv := range runs {
		if inv.accepts(n) && inv.lastAttempt == n-1 {
			return inv
		}
	}

	for _, inv := range runs {
		if inv.accepts(n) {
			return inv
		}
	}

	return nil
}

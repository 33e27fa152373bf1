package retry

import (
	"math"
	"time"
)

// Backoff decides how long to wait before the next attempt. Flaky browser
// tests usually benefit from retrying straight away, which is the default.
type Backoff interface {
	// Delay returns the wait before retry number retry (0 for the first retry).
	Delay(retry uint) time.Duration
}

// NoBackoff retries immediately.
type NoBackoff struct{}

// Delay implements Backoff.
func (NoBackoff) Delay(uint) time.Duration { return 0 }

// ConstantBackoff waits the same duration before every retry.
type ConstantBackoff time.Duration

// Delay implements Backoff.
func (c ConstantBackoff) Delay(uint) time.Duration { return time.Duration(c) }

// ExpBackoff grows the delay exponentially: Base * Factor^retry, clamped to
// [Base, Max].
//
// Example:
//
//	backoff := retry.ExpBackoff{
//	    Base:   500 * time.Millisecond,
//	    Max:    5 * time.Second,
//	    Factor: 2.0,
//	}
//	// Delays: 500ms, 1s, 2s, 4s, 5s, 5s, ...
type ExpBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
}

// Delay implements Backoff.
func (b ExpBackoff) Delay(retry uint) time.Duration {
	f := float64(b.Base) * math.Pow(b.Factor, float64(retry))

	d := time.Duration(f)
	if d < b.Base {
		return b.Base
	} else if d > b.Max {
		return b.Max
	}

	return d
}

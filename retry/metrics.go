package retry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomePassed = "passed"
	outcomeFailed = "failed"
)

var (
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "e2e_test_attempts_total",
		Help: "The total number of test attempts, by outcome",
	}, []string{"outcome"})

	recoveredTotal = promauto.NewCounter(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "e2e_test_recovered_total",
		Help: "The total number of tests that passed after at least one failed attempt",
	})

	exhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "e2e_test_exhausted_total",
		Help: "The total number of tests that failed every attempt they were allowed",
	})
)

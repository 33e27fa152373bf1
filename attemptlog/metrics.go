package attemptlog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	entriesWritten = promauto.NewCounter(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "e2e_attempt_log_entries_total",
		Help: "The total number of attempt records appended to the attempt log",
	})

	writeErrors = promauto.NewCounter(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "e2e_attempt_log_write_errors_total",
		Help: "The total number of attempt records that could not be written",
	})
)

package artifacts

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultSaved   = "saved"
	resultSkipped = "skipped"
	resultFailed  = "failed"
)

var captures = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
	Name: "e2e_artifact_captures_total",
	Help: "The total number of artifact capture steps, by artifact kind and result",
}, []string{"kind", "result"})

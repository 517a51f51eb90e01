package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sagaSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paysync_saga_steps_total",
		Help: "Payment saga step outcomes, labeled by step and outcome",
	}, []string{"step", "outcome"})

	sagaDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paysync_saga_duration_seconds",
		Help:    "End-to-end payment saga latency",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method"})
)

func stepDone(step, outcome string) {
	sagaSteps.WithLabelValues(step, outcome).Inc()
}

package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	validationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "passval_validations_total",
		Help: "Completed password validations by verdict.",
	}, []string{"result"})

	validationErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "passval_validation_errors_total",
		Help: "Validation calls aborted by an engine error.",
	})

	validationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "passval_validation_duration_seconds",
		Help:    "End-to-end duration of password validation calls.",
		Buckets: prometheus.DefBuckets,
	})
)

package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "execution",
		Name:      "requests_total",
		Help:      "Executions grouped by language and outcome",
	}, []string{"language", "outcome"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "execution",
		Name:      "stage_duration_seconds",
		Help:      "Wall-clock duration of compile and run stages",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"language", "stage"})

	poolActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gema",
		Subsystem: "execution",
		Name:      "pool_active",
		Help:      "Compile or run steps currently holding a pool slot",
	})

	poolRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "execution",
		Name:      "pool_rejections_total",
		Help:      "Requests refused because the execution queue was full",
	})
)

package personnel

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	mutationsTotal  *prometheus.CounterVec
	conflictsTotal  *prometheus.CounterVec
	sweepRunsTotal  *prometheus.CounterVec
	sweepExpired    prometheus.Counter
	sweepFailed     prometheus.Counter
	sweepDuration   prometheus.Histogram
	warningsPending prometheus.Gauge
	idGeneration    prometheus.Histogram
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		mutationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "personnel",
			Name:      "mutations_total",
			Help:      "Total number of committed mutations by audit action.",
		}, []string{"action"}),
		conflictsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "personnel",
			Name:      "version_conflicts_total",
			Help:      "Total number of mutations rejected by optimistic locking.",
		}, []string{"entity"}),
		sweepRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "personnel",
			Name:      "sweep_runs_total",
			Help:      "Total number of expiry sweep runs.",
		}, []string{"result"}),
		sweepExpired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "personnel",
			Name:      "sweep_expired_total",
			Help:      "Total number of internships expired by the sweep.",
		}),
		sweepFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "personnel",
			Name:      "sweep_failed_total",
			Help:      "Total number of records the sweep failed to expire.",
		}),
		sweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "personnel",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of expiry sweep runs.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
		warningsPending: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "personnel",
			Name:      "expiry_warnings",
			Help:      "Number of interns in the last published expiry warning window.",
		}),
		idGeneration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "personnel",
			Name:      "identifier_generation_seconds",
			Help:      "Latency of identifier generation including collision checks.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}

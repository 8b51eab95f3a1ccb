package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Scheduler manager cycle metrics (§4.D)
	SchedCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rtrm_sched_cycles_total",
			Help: "Total number of scheduling cycles run",
		},
	)

	SchedOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtrm_sched_outcomes_total",
			Help: "Total scheduling cycles by outcome (done, no_working_mode, delayed, error)",
		},
		[]string{"outcome"},
	)

	SchedCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rtrm_sched_cycle_duration_seconds",
			Help:    "Time taken to run one scheduling cycle, policy included",
			Buckets: prometheus.DefBuckets,
		},
	)

	SchedInterCyclePeriod = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rtrm_sched_inter_cycle_period_seconds",
			Help:    "Elapsed time between the start of consecutive scheduling cycles",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Synchronization manager metrics (§4.E)
	SyncSessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtrm_sync_sessions_total",
			Help: "Total synchronization sessions by final status (committed, partial, empty, aborted)",
		},
		[]string{"status"},
	)

	SyncPhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rtrm_sync_phase_duration_seconds",
			Help:    "Time spent in each synchronization phase",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)

	SyncEXCTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rtrm_sync_exc_timeouts_total",
			Help: "Total number of EXCs disabled because they missed a synchronization deadline",
		},
	)
)

func init() {
	// Register scheduler/synchronization manager metrics
	prometheus.MustRegister(SchedCyclesTotal)
	prometheus.MustRegister(SchedOutcomesTotal)
	prometheus.MustRegister(SchedCycleDuration)
	prometheus.MustRegister(SchedInterCyclePeriod)
	prometheus.MustRegister(SyncSessionsTotal)
	prometheus.MustRegister(SyncPhaseDuration)
	prometheus.MustRegister(SyncEXCTimeoutsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

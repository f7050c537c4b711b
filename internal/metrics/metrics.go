// Package metrics holds the Prometheus collectors of the pinger process.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Probe metrics
	ProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pinger_probes_total",
			Help: "Total number of probes by protocol and outcome",
		},
		[]string{"protocol", "outcome"},
	)

	ProbeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pinger_probe_duration_seconds",
			Help:    "Wall time of one probe",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"protocol"},
	)

	StateChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pinger_state_changes_total",
			Help: "Total number of persisted target state transitions by new state",
		},
		[]string{"state"},
	)

	StoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pinger_store_errors_total",
			Help: "Total number of failed store operations",
		},
		[]string{"op"},
	)

	WorkerExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pinger_worker_exits_total",
			Help: "Total number of workers that ended by reason",
		},
		[]string{"reason"},
	)

	// Reconciler metrics
	WorkersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pinger_workers_active",
			Help: "Number of registry entries after the last reconcile cycle",
		},
	)

	ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pinger_reconcile_duration_seconds",
			Help:    "Duration of one reconcile cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconcileCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pinger_reconcile_cycles_total",
			Help: "Total number of reconcile cycles by result",
		},
		[]string{"result"},
	)

	WorkersSpawnedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pinger_workers_spawned_total",
			Help: "Total number of workers started",
		},
	)

	WorkersCancelledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pinger_workers_cancelled_total",
			Help: "Total number of workers cancelled by the sweep",
		},
	)

	WorkerUpdatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pinger_worker_updates_total",
			Help: "Total number of configuration updates handed to running workers",
		},
	)

	// Notifier metrics
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pinger_notifications_total",
			Help: "Total number of transition notifications by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(ProbesTotal)
	prometheus.MustRegister(ProbeDuration)
	prometheus.MustRegister(StateChangesTotal)
	prometheus.MustRegister(StoreErrorsTotal)
	prometheus.MustRegister(WorkerExitsTotal)
	prometheus.MustRegister(WorkersActive)
	prometheus.MustRegister(ReconcileDuration)
	prometheus.MustRegister(ReconcileCyclesTotal)
	prometheus.MustRegister(WorkersSpawnedTotal)
	prometheus.MustRegister(WorkersCancelledTotal)
	prometheus.MustRegister(WorkerUpdatesTotal)
	prometheus.MustRegister(NotificationsTotal)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures one operation for a histogram.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

func (t *Timer) ObserveDuration(h prometheus.Observer) {
	h.Observe(t.Duration().Seconds())
}

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the server Prometheus collectors.
// All methods are safe to call on a nil receiver.
type Metrics struct {
	// Counters
	mutationsProcessed *prometheus.CounterVec
	mutationsDuplicate prometheus.Counter
	followUpFailures   *prometheus.CounterVec
	claims             *prometheus.CounterVec
	poolRejected       prometheus.Counter

	// Gauges
	poolQueued prometheus.Gauge
	poolBusy   prometheus.Gauge

	// Histograms
	batchDuration prometheus.Histogram
	batchSize     prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		mutationsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldsync_mutations_processed_total",
				Help: "Mutations resolved by the dispatcher",
			},
			[]string{"resource", "operation", "status", "kind"},
		),
		mutationsDuplicate: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fieldsync_mutations_duplicate_total",
				Help: "Mutations short-circuited by the idempotency ledger",
			},
		),
		followUpFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldsync_followup_failures_total",
				Help: "Failed post-commit side effects",
			},
			[]string{"resource"},
		),
		claims: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldsync_claims_total",
				Help: "Task claim attempts by result",
			},
			[]string{"result"},
		),
		poolRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fieldsync_dispatch_rejected_total",
				Help: "Batches rejected because the dispatch queue was full",
			},
		),
		poolQueued: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fieldsync_dispatch_queued",
				Help: "Batches waiting for a dispatch worker",
			},
		),
		poolBusy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fieldsync_dispatch_workers_busy",
				Help: "Dispatch workers currently processing a batch",
			},
		),
		batchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fieldsync_batch_duration_seconds",
				Help:    "Time to process one sync batch",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		batchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fieldsync_batch_size",
				Help:    "Mutations per sync batch",
				Buckets: prometheus.ExponentialBuckets(1, 2, 9),
			},
		),
	}

	reg.MustRegister(
		m.mutationsProcessed,
		m.mutationsDuplicate,
		m.followUpFailures,
		m.claims,
		m.poolRejected,
		m.poolQueued,
		m.poolBusy,
		m.batchDuration,
		m.batchSize,
	)

	return m
}

func (m *Metrics) MutationProcessed(resource, operation, status, kind string) {
	if m == nil {
		return
	}
	m.mutationsProcessed.WithLabelValues(resource, operation, status, kind).Inc()
}

func (m *Metrics) MutationDuplicate() {
	if m == nil {
		return
	}
	m.mutationsDuplicate.Inc()
}

func (m *Metrics) FollowUpFailed(resource string) {
	if m == nil {
		return
	}
	m.followUpFailures.WithLabelValues(resource).Inc()
}

func (m *Metrics) ClaimResult(result string) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(result).Inc()
}

func (m *Metrics) BatchRejected() {
	if m == nil {
		return
	}
	m.poolRejected.Inc()
}

func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.poolQueued.Set(float64(n))
}

func (m *Metrics) WorkerBusy(delta float64) {
	if m == nil {
		return
	}
	m.poolBusy.Add(delta)
}

func (m *Metrics) BatchProcessed(size int, took time.Duration) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(size))
	m.batchDuration.Observe(took.Seconds())
}

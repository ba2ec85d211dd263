// Package metrics exports allocation counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jakechorley/spin-wheel/pkg/core/model"
)

const namespace = "spin_wheel"

// AllocationLatencyBuckets cover an in-process store (sub-millisecond) up to a congested database
var AllocationLatencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// Recorder holds the Prometheus collectors for the allocation engine
type Recorder struct {
	issuances        *prometheus.CounterVec
	rejections       *prometheus.CounterVec
	retries          *prometheus.CounterVec
	rollovers        prometheus.Counter
	latency          prometheus.Histogram
	totalIssuances   prometheus.Gauge
	currentRound     prometheus.Gauge
	issuancesInRound prometheus.Gauge
}

// NewRecorder creates the collectors and registers them with reg
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		issuances: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "issuances_total",
				Help:      "Counter of committed issuances broken out by category.",
			},
			[]string{"category"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "allocation_rejections_total",
				Help:      "Counter of allocations that did not produce an issuance, by reason.",
			},
			[]string{"reason"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transaction_retries_total",
				Help:      "Counter of store transactions retried after contention, by operation.",
			},
			[]string{"operation"},
		),
		rollovers: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "round_rollovers_total",
				Help:      "Counter of rounds closed by reaching the issuance threshold.",
			},
		),
		latency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "allocation_duration_seconds",
				Help:      "Allocation latency distribution in seconds, including retries.",
				Buckets:   AllocationLatencyBuckets,
			},
		),
		totalIssuances: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_issuances",
			Help:      "Total issuances since the last reset, as last committed by this process.",
		}),
		currentRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_round",
			Help:      "Round currently accepting allocations.",
		}),
		issuancesInRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "issuances_in_round",
			Help:      "Issuances recorded in the current round.",
		}),
	}

	reg.MustRegister(
		r.issuances,
		r.rejections,
		r.retries,
		r.rollovers,
		r.latency,
		r.totalIssuances,
		r.currentRound,
		r.issuancesInRound,
	)
	return r
}

// ObserveIssuance records a committed issuance
func (r *Recorder) ObserveIssuance(label string, rolled bool, duration time.Duration) {
	r.issuances.WithLabelValues(label).Inc()
	if rolled {
		r.rollovers.Inc()
	}
	r.latency.Observe(duration.Seconds())
}

// ObserveRejection records an allocation that ended without an issuance
func (r *Recorder) ObserveRejection(reason string) {
	r.rejections.WithLabelValues(reason).Inc()
}

// ObserveRetry records one retried transaction
func (r *Recorder) ObserveRetry(operation string) {
	r.retries.WithLabelValues(operation).Inc()
}

// SetState publishes the latest committed counters
func (r *Recorder) SetState(state model.SystemState) {
	r.totalIssuances.Set(float64(state.TotalIssuances))
	r.currentRound.Set(float64(state.CurrentRound))
	r.issuancesInRound.Set(float64(state.IssuancesInRound))
}

// Handler serves the metrics gathered by g in the Prometheus exposition format
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

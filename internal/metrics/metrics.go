// Package metrics records per-operation outcomes and latency of the ledger.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes reported by the facade.
const (
	OutcomeOK       = "ok"
	OutcomeDeclined = "declined"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

// Recorder receives one observation per facade operation.
type Recorder interface {
	Observe(op, outcome string, d time.Duration)
}

// Nop discards observations.
type Nop struct{}

func (Nop) Observe(string, string, time.Duration) {}

// Prometheus exports observations as a counter and a latency histogram.
type Prometheus struct {
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheus registers the ledger collectors on reg under namespace.
func NewPrometheus(reg prometheus.Registerer, namespace string) (*Prometheus, error) {
	p := &Prometheus{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Ledger operations by outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Ledger operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{p.ops, p.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) Observe(op, outcome string, d time.Duration) {
	p.ops.WithLabelValues(op, outcome).Inc()
	p.duration.WithLabelValues(op).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

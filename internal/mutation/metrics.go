package mutation

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"caseboard/pkg/domain"
)

// Metrics aggregates mutation counters and history depths for Prometheus.
type Metrics struct {
	mutations *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	undoDepth prometheus.Gauge
	redoDepth prometheus.Gauge
}

// NewMetrics registers the mutation metrics with the given registerer (nil
// uses the default registerer).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caseboard",
			Name:      "mutations_total",
			Help:      "Mutation attempts by operation and result.",
		}, []string{"op", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "caseboard",
			Name:      "mutation_duration_seconds",
			Help:      "Mutation latency by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		undoDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "caseboard",
			Name:      "undo_depth",
			Help:      "Current number of undo entries.",
		}),
		redoDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "caseboard",
			Name:      "redo_depth",
			Help:      "Current number of redo entries.",
		}),
	}
}

func (m *Metrics) observe(op string, d time.Duration, err error) {
	m.mutations.WithLabelValues(op, resultLabel(err)).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) depths(undo, redo int) {
	m.undoDepth.Set(float64(undo))
	m.redoDepth.Set(float64(redo))
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case domain.IsNotFound(err):
		return "not_found"
	case errors.Is(err, domain.ErrStackEmpty):
		return "stack_empty"
	default:
		return "conflict"
	}
}

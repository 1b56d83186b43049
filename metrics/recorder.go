package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mifi-dashboard/monitor/gateway"
)

// Recorder counts poll cycles by source and outcome.
type Recorder struct {
	cycles   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRecorder creates a Recorder and registers it with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Completed poll cycles by source and result",
		}, []string{"source", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of a poll cycle",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
	}
	if reg != nil {
		reg.MustRegister(r.cycles, r.duration)
	}
	return r
}

// ObserveCycle records one completed cycle.
func (r *Recorder) ObserveCycle(source string, m gateway.Metrics, elapsed time.Duration) {
	result := "ok"
	if !m.IsConnected {
		result = string(m.ErrorKind)
		if result == "" {
			result = "offline"
		}
	}
	r.cycles.WithLabelValues(source, result).Inc()
	r.duration.WithLabelValues(source).Observe(elapsed.Seconds())
}

package retention

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus collectors for pruning runs.
type Metrics struct {
	runs            *prometheus.CounterVec
	versionsDeleted *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	sweepNodes      prometheus.Counter
}

// NewMetrics registers the retention collectors with reg. A nil reg creates
// unregistered collectors, which keeps tests independent of each other.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verkeep_retention_runs_total",
				Help: "Total number of retention runs by mode and result",
			},
			[]string{"mode", "result"},
		),
		versionsDeleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verkeep_retention_versions_deleted_total",
				Help: "Total number of versions deleted by retention",
			},
			[]string{"mode", "kind"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "verkeep_retention_run_duration_seconds",
				Help:    "Duration of retention runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		sweepNodes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "verkeep_retention_sweep_nodes_total",
				Help: "Total number of nodes visited by scheduled sweeps",
			},
		),
	}
}

func (m *Metrics) recordRun(mode Mode, deleted []Version, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.runs.WithLabelValues(mode.String(), result).Inc()
	m.runDuration.WithLabelValues(mode.String()).Observe(elapsed.Seconds())
	for _, v := range deleted {
		m.versionsDeleted.WithLabelValues(mode.String(), string(v.Kind)).Inc()
	}
}

func (m *Metrics) recordSweepNode() {
	if m == nil {
		return
	}
	m.sweepNodes.Inc()
}

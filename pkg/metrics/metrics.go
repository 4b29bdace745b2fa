package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Run loop metrics
	AttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrun_attempts_total",
			Help: "Total number of application launches by exit class",
		},
		[]string{"exit"},
	)

	AttemptDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scrun_attempt_duration_seconds",
			Help:    "Wall time of each application launch in seconds",
			Buckets: prometheus.ExponentialBuckets(60, 2, 12),
		},
	)

	NodesAllocated = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scrun_nodes_allocated",
			Help: "Number of nodes in the job allocation",
		},
	)

	NodesRemaining = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scrun_nodes_remaining",
			Help: "Number of allocation nodes not yet excluded",
		},
	)

	// Diagnostics metrics
	NodeFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrun_node_failures_total",
			Help: "Total number of nodes marked bad by diagnostic test",
		},
		[]string{"test"},
	)

	DiagnosticsDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scrun_diagnostics_duration_seconds",
			Help:    "Time taken to run the node diagnostic sequence in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Watchdog metrics
	WatchdogKillsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scrun_watchdog_kills_total",
			Help: "Total number of launches killed as hung",
		},
	)

	// Scavenge metrics
	ScavengeDatasetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrun_scavenge_datasets_total",
			Help: "Total number of datasets scavenged by kind and result",
		},
		[]string{"kind", "result"},
	)

	ScavengeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scrun_scavenge_duration_seconds",
			Help:    "Time taken to copy and rebuild one dataset in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
	)
)

func init() {
	prometheus.MustRegister(AttemptsTotal)
	prometheus.MustRegister(AttemptDuration)
	prometheus.MustRegister(NodesAllocated)
	prometheus.MustRegister(NodesRemaining)
	prometheus.MustRegister(NodeFailuresTotal)
	prometheus.MustRegister(DiagnosticsDuration)
	prometheus.MustRegister(WatchdogKillsTotal)
	prometheus.MustRegister(ScavengeDatasetsTotal)
	prometheus.MustRegister(ScavengeDuration)
}

// WriteTextfile writes every registered metric to path in the Prometheus
// text format, for collection by a node exporter textfile collector. An
// empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

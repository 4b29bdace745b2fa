/*
Package metrics defines the Prometheus metrics scrun records while it drives a
job.

All metrics are registered with the default registry at package init. A batch
job has no long-lived endpoint to scrape, so the run loop calls WriteTextfile
between attempts and on exit when a textfile path is configured; a node
exporter textfile collector picks the file up from there.

# Metrics Catalog

scrun_attempts_total{exit}:
  - Type: Counter
  - Launches by exit class (normal, halted, watchdog-killed, launch-failed)

scrun_attempt_duration_seconds:
  - Type: Histogram
  - Wall time of each launch

scrun_nodes_allocated, scrun_nodes_remaining:
  - Type: Gauge
  - Allocation size and nodes not yet excluded

scrun_node_failures_total{test}:
  - Type: Counter
  - Nodes marked bad, by the diagnostic test that caught them

scrun_diagnostics_duration_seconds:
  - Type: Histogram
  - Time of one full diagnostic sequence

scrun_watchdog_kills_total:
  - Type: Counter
  - Launches killed because checkpoint progress stalled

scrun_scavenge_datasets_total{kind, result}:
  - Type: Counter
  - Datasets copied from cache, by kind (checkpoint, output) and result

scrun_scavenge_duration_seconds:
  - Type: Histogram
  - Copy plus rebuild time per dataset

# Timer Helper

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDuration(metrics.DiagnosticsDuration)
*/
package metrics

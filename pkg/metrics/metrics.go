// Package metrics provides the Prometheus registry of mjp-export and its
// textfile export. All metrics are defined in their respective packages
// and registered via promauto to avoid circular dependencies.
//
// This package also documents every metric the exporter emits.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by mjp-export.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects everything registered in Registry.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// WriteTextfile writes all metrics in the text exposition format to path,
// for the node_exporter textfile collector. The file is replaced atomically.
func WriteTextfile(path string) error {
	if path == "" {
		return fmt.Errorf("metrics textfile path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, Gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Listing Metrics (pkg/pagination, pkg/client, pkg/ratelimit):
//   - mjp_listed_records{feed} (Gauge): Records returned by the last listing of a feed
//   - mjp_listing_failures_total{feed, phase} (Counter): Listing failures by phase (probe, full)
//   - mjp_requests_total{endpoint, status} (Counter): Listing API requests by status
//   - mjp_request_duration_seconds{endpoint} (Histogram): Listing API request duration
//   - mjp_errors_total{class} (Counter): Request errors by class (client, server, network, decode)
//   - mjp_rate_limit_wait_seconds{endpoint} (Histogram): Time spent waiting for the request pacer
//   - mjp_rate_limit_throttles_total{endpoint} (Counter): Requests delayed by the pacer
//
// Engine Metrics (pkg/wait, pkg/processor, pkg/capture, pkg/batch):
//   - mjp_wait_duration_seconds{condition, result} (Histogram): Condition waits by result
//     (immediate, matched, timeout, cancelled)
//   - mjp_items_total{direction, outcome} (Counter): Processed items
//   - mjp_captures_total{outcome} (Counter): Proof capture attempts
//   - mjp_run_items (Gauge): Items in the current run queue
//   - mjp_run_progress (Gauge): Items attempted in the current run
//   - mjp_run_duration_seconds (Gauge): Duration of the last run
//
// Output Metrics (pkg/download, pkg/sink):
//   - mjp_downloads_total{state} (Counter): Browser downloads by final state
//   - mjp_downloads_renamed_total (Counter): Downloads tagged with a correlation token
//   - mjp_artifacts_saved_total{kind} (Counter): Files written to the output directory
//   - mjp_artifact_bytes_total{kind} (Counter): Bytes written to the output directory
//
// Journal Metrics (pkg/journal):
//   - mjp_journal_writes_total{operation} (Counter): Journal writes
//   - mjp_journal_errors_total{operation} (Counter): Journal operation errors
//
// Example Prometheus Queries:
//
//   # Share of items exported with a proof in the last run
//   sum(mjp_items_total{outcome="exported"}) / sum(mjp_items_total)
//
//   # Proof windows that never produced a document
//   mjp_captures_total{outcome=~"no_window|not_ready|window_closed"}
//
//   # P95 page load wait
//   histogram_quantile(0.95, rate(mjp_wait_duration_seconds_bucket{condition="action_ready"}[1h]))
//
//   # Listing failures
//   increase(mjp_listing_failures_total[1d]) > 0

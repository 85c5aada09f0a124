// Package telemetry provides Prometheus metrics and OpenTelemetry tracing
// for the lattice host: package-level promauto vectors grouped by domain,
// with small Record* wrapper functions called from the hot paths.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// DISPATCH METRICS
// =============================================================================

var (
	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "latticehost_dispatch_total",
			Help: "Total number of control-interface dispatches",
		},
		[]string{"verb", "status"}, // status: success, error, no_reply
	)

	dispatchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "latticehost_dispatch_duration_seconds",
			Help:    "Control-interface dispatch handler duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"verb"},
	)
)

// =============================================================================
// WATCHER METRICS
// =============================================================================

var (
	watcherEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "latticehost_watcher_entries_total",
			Help: "Total number of lattice bucket entries processed by the data watcher",
		},
		[]string{"prefix", "op", "status"}, // status: applied, ignored, discarded
	)
)

// =============================================================================
// CONFIG BUNDLE METRICS
// =============================================================================

var (
	configBundleChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "latticehost_config_bundle_changes_total",
			Help: "Total number of emitted ConfigBundle merged-map changes",
		},
		[]string{"bundle"},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordDispatch records one control-interface dispatch.
func RecordDispatch(verb, status string, durationSeconds float64) {
	dispatchTotal.WithLabelValues(verb, status).Inc()
	dispatchDurationSeconds.WithLabelValues(verb).Observe(durationSeconds)
}

// RecordWatcherEntry records one lattice bucket entry processed by the
// data watcher.
func RecordWatcherEntry(prefix, op, status string) {
	watcherEntriesTotal.WithLabelValues(prefix, op, status).Inc()
}

// RecordConfigBundleChange records one emitted ConfigBundle change.
func RecordConfigBundleChange(bundle string) {
	configBundleChangesTotal.WithLabelValues(bundle).Inc()
}

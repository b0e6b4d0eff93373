// Package metrics exposes Prometheus instrumentation for the build
// pipeline and the dev server. Metrics are registered lazily on first
// Init; all record helpers are safe to call before initialization and
// become no-ops, so library code never has to care whether a collector
// exists.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "mirage"

type metrics struct {
	buildsTotal          *prometheus.CounterVec
	buildDuration        prometheus.Histogram
	artifactsWritten     prometheus.Counter
	artifactsSkipped     prometheus.Counter
	fieldsDegraded       prometheus.Counter
	confirmationsApplied prometheus.Counter
	confirmationsDropped prometheus.Counter
	activeSessions       prometheus.Gauge
}

var (
	global   *metrics
	globalMu sync.Mutex
)

// Init registers the collectors with reg (prometheus.DefaultRegisterer
// when nil). Safe to call more than once; only the first call registers.
func Init(reg prometheus.Registerer) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global != nil {
		return
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	global = &metrics{
		buildsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "builds_total",
			Help:      "Unit builds by outcome",
		}, []string{"status"}),

		buildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "build_duration_seconds",
			Help:      "Full build pipeline duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		artifactsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "artifacts_written_total",
			Help:      "Client modules written to disk",
		}),

		artifactsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "artifacts_skipped_total",
			Help:      "Client module writes skipped on content-hash match",
		}),

		fieldsDegraded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "fields_degraded_total",
			Help:      "Fields or actions excluded from optimistic generation",
		}),

		confirmationsApplied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "confirmations_applied_total",
			Help:      "Server confirmations applied to field values",
		}),

		confirmationsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "confirmations_dropped_total",
			Help:      "Server confirmations dropped as stale",
		}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_sessions",
			Help:      "Live sync websocket sessions",
		}),
	}
}

// RecordBuild records one unit build outcome and its duration.
func RecordBuild(status string, d time.Duration) {
	if global != nil {
		global.buildsTotal.WithLabelValues(status).Inc()
		global.buildDuration.Observe(d.Seconds())
	}
}

// RecordArtifactWritten records a module written to disk.
func RecordArtifactWritten() {
	if global != nil {
		global.artifactsWritten.Inc()
	}
}

// RecordArtifactSkipped records a write skipped on hash match.
func RecordArtifactSkipped() {
	if global != nil {
		global.artifactsSkipped.Inc()
	}
}

// RecordFieldDegraded records a field or action that fell back to
// server-only evaluation.
func RecordFieldDegraded() {
	if global != nil {
		global.fieldsDegraded.Inc()
	}
}

// RecordConfirmation records the outcome of one confirmedSet.
func RecordConfirmation(applied bool) {
	if global == nil {
		return
	}
	if applied {
		global.confirmationsApplied.Inc()
	} else {
		global.confirmationsDropped.Inc()
	}
}

// RecordSessionOpen increments the live session gauge.
func RecordSessionOpen() {
	if global != nil {
		global.activeSessions.Inc()
	}
}

// RecordSessionClose decrements the live session gauge.
func RecordSessionClose() {
	if global != nil {
		global.activeSessions.Dec()
	}
}

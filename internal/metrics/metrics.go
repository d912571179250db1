// Package metrics exports catalog and import counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JonMunkholm/localfinder/internal/core"
)

const namespace = "localfinder"

// Prom implements core.Metrics.
type Prom struct {
	recordsWritten     *prometheus.CounterVec
	snapshots          *prometheus.CounterVec
	catalogSize        *prometheus.GaugeVec
	importRows         *prometheus.CounterVec
	importsFinished    *prometheus.CounterVec
	importDuration     *prometheus.HistogramVec
	activeImportCommit prometheus.GaugeFunc
}

// New creates the collectors and registers them on reg. activeCommits, if
// non-nil, reports the number of running import commits.
func New(reg prometheus.Registerer, activeCommits func() int) *Prom {
	p := &Prom{
		recordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Records created or deleted through the catalog.",
		}, []string{"category", "action"}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_delivered_total",
			Help:      "Record snapshots received from the store subscription.",
		}, []string{"category"}),
		catalogSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_records",
			Help:      "Records in the latest snapshot of each category.",
		}, []string{"category"}),
		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_total",
			Help:      "Spreadsheet rows processed by import commits.",
		}, []string{"category", "result"}),
		importsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_finished_total",
			Help:      "Import commits by final state.",
		}, []string{"category", "state"}),
		importDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_duration_seconds",
			Help:      "Wall time of import commits.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"category"}),
	}

	collectors := []prometheus.Collector{
		p.recordsWritten, p.snapshots, p.catalogSize,
		p.importRows, p.importsFinished, p.importDuration,
	}
	if activeCommits != nil {
		p.activeImportCommit = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "import_commits_active",
			Help:      "Import commits holding a slot in the commit gate.",
		}, func() float64 { return float64(activeCommits()) })
		collectors = append(collectors, p.activeImportCommit)
	}
	reg.MustRegister(collectors...)
	return p
}

// RecordWritten implements core.Metrics.
func (p *Prom) RecordWritten(categoryID string, action core.AuditAction) {
	p.recordsWritten.WithLabelValues(categoryID, string(action)).Inc()
}

// SnapshotDelivered implements core.Metrics.
func (p *Prom) SnapshotDelivered(categoryID string, size int) {
	p.snapshots.WithLabelValues(categoryID).Inc()
	p.catalogSize.WithLabelValues(categoryID).Set(float64(size))
}

// ImportRowProcessed implements core.Metrics.
func (p *Prom) ImportRowProcessed(categoryID string, failed bool) {
	result := "inserted"
	if failed {
		result = "failed"
	}
	p.importRows.WithLabelValues(categoryID, result).Inc()
}

// ImportFinished implements core.Metrics.
func (p *Prom) ImportFinished(categoryID string, state core.ImportState, elapsed time.Duration) {
	p.importsFinished.WithLabelValues(categoryID, string(state)).Inc()
	p.importDuration.WithLabelValues(categoryID).Observe(elapsed.Seconds())
}

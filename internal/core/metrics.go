package core

import "time"

// Metrics receives counters from catalogs and import sessions. The
// Prometheus implementation lives in internal/metrics.
type Metrics interface {
	RecordWritten(categoryID string, action AuditAction)
	SnapshotDelivered(categoryID string, size int)
	ImportRowProcessed(categoryID string, failed bool)
	ImportFinished(categoryID string, state ImportState, elapsed time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordWritten(string, AuditAction) {}
func (noopMetrics) SnapshotDelivered(string, int) {}
func (noopMetrics) ImportRowProcessed(string, bool) {}
func (noopMetrics) ImportFinished(string, ImportState, time.Duration) {}

func metricsOrNoop(m Metrics) Metrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}

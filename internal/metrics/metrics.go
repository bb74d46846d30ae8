// Package metrics provides Prometheus metrics for the Aster service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DetectionScansTotal tracks detection scans by outcome
	DetectionScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "detection",
			Name:      "scans_total",
			Help:      "Total number of detection scans by status",
		},
		[]string{"workspace_id", "entity_type", "status"},
	)

	// DetectionScanDuration tracks full scan duration in seconds
	DetectionScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aster",
			Subsystem: "detection",
			Name:      "scan_duration_seconds",
			Help:      "Duration of detection scans in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"workspace_id", "entity_type"},
	)

	// PairsCompared tracks the number of entity pairs scored during scans
	PairsCompared = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "detection",
			Name:      "pairs_compared_total",
			Help:      "Total number of entity pairs scored during scans",
		},
		[]string{"workspace_id", "entity_type"},
	)

	// CandidatesUpserted tracks candidates written above threshold
	CandidatesUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "detection",
			Name:      "candidates_upserted_total",
			Help:      "Total number of duplicate candidates written",
		},
		[]string{"workspace_id", "entity_type"},
	)

	// MergesTotal tracks merge executions by outcome
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "merge",
			Name:      "merges_total",
			Help:      "Total number of merge executions by status",
		},
		[]string{"workspace_id", "entity_type", "status"},
	)

	// MergeDuration tracks merge transaction duration in seconds
	MergeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aster",
			Subsystem: "merge",
			Name:      "duration_seconds",
			Help:      "Duration of merge transactions in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"workspace_id", "entity_type"},
	)

	// EventsPublished tracks duplicate lifecycle events published to Kafka
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of duplicate lifecycle events published",
		},
		[]string{"event_type", "status"},
	)
)

// RecordScan records a completed detection scan
func RecordScan(workspaceID, entityType, status string, durationSeconds float64) {
	DetectionScansTotal.WithLabelValues(workspaceID, entityType, status).Inc()
	DetectionScanDuration.WithLabelValues(workspaceID, entityType).Observe(durationSeconds)
}

// RecordMerge records a merge execution
func RecordMerge(workspaceID, entityType, status string, durationSeconds float64) {
	MergesTotal.WithLabelValues(workspaceID, entityType, status).Inc()
	MergeDuration.WithLabelValues(workspaceID, entityType).Observe(durationSeconds)
}

// RecordEvent records an event publish attempt
func RecordEvent(eventType, status string) {
	EventsPublished.WithLabelValues(eventType, status).Inc()
}

// Package metrics holds the Prometheus collectors for whisperlog.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "whisperlog",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "whisperlog",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"method", "endpoint"},
	)

	// GenerationsTotal counts completion attempts by result:
	// success, error, timeout, empty or disabled.
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "whisperlog",
			Subsystem: "completion",
			Name:      "generations_total",
			Help:      "Total journal generation attempts",
		},
		[]string{"result"},
	)

	GenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "whisperlog",
			Subsystem: "completion",
			Name:      "generation_duration_seconds",
			Help:      "Completion provider latency in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	// JournalWritesTotal counts conditional journal inserts by outcome.
	JournalWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "whisperlog",
			Subsystem: "journal",
			Name:      "writes_total",
			Help:      "Conditional journal inserts by outcome",
		},
		[]string{"outcome"},
	)

	ConversationUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "whisperlog",
			Subsystem: "journal",
			Name:      "conversation_updates_total",
			Help:      "Conversation transcript updates by result",
		},
		[]string{"result"},
	)

	BackfillJournalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "whisperlog",
			Subsystem: "backfill",
			Name:      "journals_total",
			Help:      "Journals considered by the backfill sweeper by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordRequest records one completed HTTP request.
func RecordRequest(method, endpoint, status string, seconds float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(seconds)
}

// RecordGeneration records one completion attempt.
func RecordGeneration(result string, seconds float64) {
	GenerationsTotal.WithLabelValues(result).Inc()
	if seconds > 0 {
		GenerationDuration.Observe(seconds)
	}
}

// RecordJournalWrite records the outcome of a conditional journal insert.
func RecordJournalWrite(outcome string) {
	JournalWritesTotal.WithLabelValues(outcome).Inc()
}

// RecordConversationUpdate records the result of a transcript update.
func RecordConversationUpdate(result string) {
	ConversationUpdatesTotal.WithLabelValues(result).Inc()
}

// RecordBackfill records one backfill decision.
func RecordBackfill(outcome string) {
	BackfillJournalsTotal.WithLabelValues(outcome).Inc()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RowsMutated tracks rows actually changed per job
	RowsMutated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweeper_rows_mutated_total",
			Help: "Total number of rows mutated",
		},
		[]string{"job"},
	)

	// StatementsTotal tracks executed statements by outcome
	StatementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweeper_db_statements_total",
			Help: "Total number of database statements executed",
		},
		[]string{"op", "outcome"},
	)

	// RetriesTotal tracks retried statements by SQLSTATE
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweeper_db_retries_total",
			Help: "Total number of statement retries after transient errors",
		},
		[]string{"op", "code"},
	)

	// StatementLatency tracks statement latency including retries
	StatementLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sweeper_db_statement_latency_seconds",
			Help:    "Statement latency in seconds, retries included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// DBBatchSize tracks the number of keys per mutation
	DBBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sweeper_db_batch_size",
			Help:    "Number of rows per batch mutation",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 5000, 10000},
		},
		[]string{"op"},
	)

	// DBConnectionPoolUsage tracks open connections as a percentage of the pool max
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sweeper_db_connection_pool_usage_percent",
			Help: "Open connections as a percentage of max open connections",
		},
	)

	// ActiveSlots tracks running worker slots per job
	ActiveSlots = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sweeper_active_slots",
			Help: "Number of worker slots currently running",
		},
		[]string{"job"},
	)
)

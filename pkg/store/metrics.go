package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchesTotal counts committed and failed batches by backend
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bangumi_store_batches_total",
			Help: "Total number of upsert batches by backend and result",
		},
		[]string{"backend", "result"}, // result: "committed", "failed"
	)

	// RecordsTotal counts records written in committed batches
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bangumi_store_records_total",
			Help: "Total number of records upserted in committed batches",
		},
		[]string{"backend"},
	)

	// BatchDuration tracks how long one batch commit holds the write lock
	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bangumi_store_batch_duration_seconds",
			Help:    "Duration of upsert batch commits in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"backend"},
	)
)

func observeBatch(backend string, records int, seconds float64, err error) {
	BatchDuration.WithLabelValues(backend).Observe(seconds)
	if err != nil {
		BatchesTotal.WithLabelValues(backend, "failed").Inc()
		return
	}
	BatchesTotal.WithLabelValues(backend, "committed").Inc()
	RecordsTotal.WithLabelValues(backend).Add(float64(records))
}

// Package metrics exposes the Prometheus registry and scrape handler for the
// catalog poller. All metrics are defined in their owning packages (client,
// store, poller) and registered via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package registers its metrics with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - bangumi_requests_total{status} (Counter): Catalog requests by HTTP status
//   - bangumi_request_duration_seconds (Histogram): Catalog request duration
//   - bangumi_fetch_errors_total{class} (Counter): Failed fetches by class (client, server, status, network, timeout)
//
// Store Metrics (pkg/store):
//   - bangumi_store_batches_total{backend, result} (Counter): Batches by backend and result (ok, error)
//   - bangumi_store_records_total{backend} (Counter): Records upserted
//   - bangumi_store_batch_duration_seconds{backend} (Histogram): Batch commit duration
//
// Poller Metrics (pkg/poller):
//   - bangumi_poller_offset (Gauge): Offset of the next page
//   - bangumi_poller_cycle (Gauge): Current sweep number
//   - bangumi_catalog_total (Gauge): Last observed catalog total
//   - bangumi_poller_iterations_total{outcome} (Counter): Iterations by outcome (page, miss, fatal)
//
// Example Prometheus Queries:
//
//   # Miss Rate
//   rate(bangumi_poller_iterations_total{outcome="miss"}[5m]) /
//   rate(bangumi_poller_iterations_total[5m])
//
//   # Sweep Progress
//   bangumi_poller_offset / bangumi_catalog_total
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(bangumi_request_duration_seconds_bucket[5m]))

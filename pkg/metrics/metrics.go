// Package metrics provides the Prometheus registry shared by the loader and
// pushes it to a Pushgateway at the end of a run.
// All metrics are defined in their respective packages (client, cache,
// pipeline, store) to maintain modularity and avoid circular dependencies.
//
// The loader is a one-shot batch job, so there is no scrape endpoint; the
// final values are pushed once when the run finishes.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Registry is the default Prometheus registry used by the loader.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads back everything registered on Registry.
var Gatherer = prometheus.DefaultGatherer

// DefaultJob is the Pushgateway job label for loader runs.
const DefaultJob = "swapi_loader"

// Push sends the current value of every registered metric to the Pushgateway
// at gatewayURL, replacing the previous push for job.
func Push(ctx context.Context, gatewayURL, job string) error {
	if gatewayURL == "" {
		return fmt.Errorf("pushgateway url is required")
	}
	if job == "" {
		job = DefaultJob
	}

	if err := push.New(gatewayURL, job).Gatherer(Gatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - swapi_requests_total{resource, status} (Counter): Upstream requests by resource kind and HTTP status
//   - swapi_request_duration_seconds{resource} (Histogram): Upstream request duration
//   - swapi_fetch_failures_total{class} (Counter): Fetches resolved to absent, by class (client, server, network, decode)
//
// Cache Metrics (pkg/cache):
//   - swapi_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - swapi_cache_misses_total (Counter): Cache misses
//   - swapi_cache_size_bytes{layer="redis"} (Gauge): Bytes written to cache
//   - swapi_cache_errors_total{operation} (Counter): Cache operation errors
//
// Pipeline Metrics (pkg/pipeline):
//   - swapi_pipeline_chunks_total (Counter): Chunks processed and persisted
//   - swapi_pipeline_records_dropped_total{reason} (Counter): Records with no row (incomplete, unfetchable, no_url, bad_id)
//   - swapi_pipeline_rows_persisted_total (Counter): Rows handed to the store
//   - swapi_pipeline_chunk_duration_seconds (Histogram): Chunk wall-clock time
//
// Store Metrics (pkg/store):
//   - swapi_store_rows_written_total{driver} (Counter): Rows durably appended
//   - swapi_store_append_duration_seconds{driver} (Histogram): Batch append duration
//   - swapi_store_errors_total{driver, operation} (Counter): Store errors
//
// Example Prometheus Queries:
//
//   # Share of people dropped for incomplete references
//   swapi_pipeline_records_dropped_total{reason="incomplete"} /
//   (swapi_pipeline_rows_persisted_total + sum(swapi_pipeline_records_dropped_total))
//
//   # Upstream failures by class
//   sum by (class) (swapi_fetch_failures_total)
//
//   # P95 Request Latency
//   histogram_quantile(0.95, sum by (le) (swapi_request_duration_seconds_bucket))

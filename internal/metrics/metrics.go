// Package metrics exposes the Prometheus collectors the rest of the module
// records against, and the http.Handler that serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ItemsParsed counts items decoded off the catalog stream, whether or
	// not they were ultimately deduplicated away by a partial update.
	ItemsParsed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "filmindex",
		Name:      "items_parsed_total",
		Help:      "Show records decoded from the catalog stream.",
	})

	// BlobsCompressed counts blob rotations, by blob kind (text or url).
	BlobsCompressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "filmindex",
		Name:      "blobs_compressed_total",
		Help:      "Staging buffers rotated out for background compression.",
	}, []string{"kind"})

	// ShowsDeleted counts shows removed by a partial update's dedup scan.
	ShowsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "filmindex",
		Name:      "shows_deleted_total",
		Help:      "Shows removed and replaced during partial updates.",
	})

	// UpdateDuration observes wall-clock time per update, by kind (full or
	// partial), including the network fetch and the final commit.
	UpdateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "filmindex",
		Name:      "update_duration_seconds",
		Help:      "Time spent running a catalog update end to end.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"kind"})

	// UpdateFailures counts updates that returned an error, by kind.
	UpdateFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "filmindex",
		Name:      "update_failures_total",
		Help:      "Updates that aborted with an error.",
	}, []string{"kind"})

	// QueryLatency observes read-path latency, by operation
	// (channels/topics/query/fetch).
	QueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "filmindex",
		Name:      "query_latency_seconds",
		Help:      "Latency of a read-path call.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

// Handler returns the http.Handler that serves the registered collectors in
// the Prometheus text exposition format, typically mounted at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

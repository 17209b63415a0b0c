// Package metrics defines the Prometheus metrics of the service. Metrics are
// registered with the default registry through promauto.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/OFFIS-RIT/graphvec/pkg/graph"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HttpRequestsTotal counts requests by method, route and status code.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphvec_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphvec_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	// GraphBuildsTotal counts graph builds by origin, "snapshot" or "fresh".
	GraphBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphvec_graph_builds_total",
			Help: "Total number of knowledge graph builds by origin",
		},
		[]string{"origin"},
	)

	ExtractionFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "graphvec_extraction_failures_total",
			Help: "Total number of chunks whose entity extraction failed",
		},
	)

	// SnapshotFailuresTotal counts snapshot problems by operation, "load" or
	// "save". A missing snapshot is not counted.
	SnapshotFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphvec_snapshot_failures_total",
			Help: "Total number of failed snapshot operations",
		},
		[]string{"operation"},
	)

	GraphNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "graphvec_graph_nodes",
			Help: "Number of nodes in the served knowledge graph",
		},
	)

	GraphEdges = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "graphvec_graph_edges",
			Help: "Number of edges in the served knowledge graph",
		},
	)

	IndexedChunks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "graphvec_indexed_chunks",
			Help: "Number of chunks in the vector index",
		},
	)

	// RetrievalDuration measures hybrid retrieval by whether the vector
	// block succeeded.
	RetrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphvec_retrieval_duration_seconds",
			Help:    "Duration of hybrid retrievals in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"vector_ok"},
	)
)

// RecordBuild updates the build metrics from a finished build.
func RecordBuild(g *graph.KnowledgeGraph, report *graph.BuildReport) {
	if report != nil {
		origin := "fresh"
		if report.Loaded {
			origin = "snapshot"
		} else if report.LoadErr != nil && !isNotFound(report.LoadErr) {
			SnapshotFailuresTotal.WithLabelValues("load").Inc()
		}
		GraphBuildsTotal.WithLabelValues(origin).Inc()
		ExtractionFailuresTotal.Add(float64(len(report.ExtractionFailures)))
		if report.SaveErr != nil {
			SnapshotFailuresTotal.WithLabelValues("save").Inc()
		}
	}
	if g != nil {
		GraphNodes.Set(float64(g.NodeCount()))
		GraphEdges.Set(float64(g.EdgeCount()))
	}
}

// ObserveRetrieval records the duration of one hybrid retrieval.
func ObserveRetrieval(d time.Duration, vectorOK bool) {
	RetrievalDuration.WithLabelValues(strconv.FormatBool(vectorOK)).Observe(d.Seconds())
}

// ObserveRequest records one handled HTTP request.
func ObserveRequest(method, path string, status int, d time.Duration) {
	HttpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
	HttpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

func isNotFound(err error) bool {
	return errors.Is(err, graph.ErrSnapshotNotFound)
}

// Package metrics provides Prometheus instrumentation for the scoring service.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trustra"

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// TrustScoresTotal counts computed trust scores by risk level.
	TrustScoresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trust_scores_total",
			Help:      "Trust scores computed, by risk level.",
		},
		[]string{"risk_level"},
	)

	// TrustScoreDuration observes per-seller scoring latency including fetches.
	TrustScoreDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "trust_score_duration_seconds",
		Help:      "Time to score one seller, data fetch included.",
		Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
	})

	// BurstsDetectedTotal counts sellers flagged for review bursts.
	BurstsDetectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "review_bursts_detected_total",
		Help:      "Scoring runs that flagged a review burst.",
	})

	// RecordsRejectedTotal counts ingested records dropped during parsing.
	RecordsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Records dropped at ingestion, by kind and offending field.",
		},
		[]string{"kind", "field"},
	)

	// SourceFailuresTotal counts data source operations that failed after retries.
	SourceFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Data source operations that failed after retries, by operation.",
		},
		[]string{"operation"},
	)

	// GraphBuildDuration observes interaction graph rebuild latency.
	GraphBuildDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "graph_build_duration_seconds",
		Help:      "Time to load interactions and build the graph.",
		Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
	})

	// GraphNodes tracks node count of the active graph.
	GraphNodes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "graph_nodes",
		Help: "Nodes in the active interaction graph.",
	})

	// GraphEdges tracks edge count of the active graph.
	GraphEdges = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "graph_edges",
		Help: "Edges in the active interaction graph.",
	})

	// GraphGeneration tracks the active graph generation.
	GraphGeneration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "graph_generation",
		Help: "Generation number of the active interaction graph.",
	})

	// RingDetectionDuration observes community detection latency.
	RingDetectionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ring_detection_duration_seconds",
		Help:      "Time to partition the graph and filter rings.",
		Buckets:   []float64{.001, .01, .05, .1, .5, 1, 5, 10, 30},
	})

	// RingsDetected tracks rings found in the active generation.
	RingsDetected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "rings_detected",
		Help: "Suspicious communities found in the active graph.",
	})

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "active_websocket_clients",
		Help: "Number of currently connected WebSocket clients.",
	})

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// BreakerTransitionsTotal counts circuit breaker state changes per
	// guarded source operation.
	BreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "circuitbreaker",
			Name:      "state_transitions_total",
			Help:      "Circuit breaker state transitions by key, from-state, and to-state.",
		},
		[]string{"key", "from_state", "to_state"},
	)

	// RateLimitedTotal counts requests rejected by the rate limiter.
	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter, by route.",
		},
		[]string{"route"},
	)

	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TrustScoresTotal,
		TrustScoreDuration,
		BurstsDetectedTotal,
		RecordsRejectedTotal,
		SourceFailuresTotal,
		GraphBuildDuration,
		GraphNodes,
		GraphEdges,
		GraphGeneration,
		RingDetectionDuration,
		RingsDetected,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBInUseConnections,
		BreakerTransitionsTotal,
		RateLimitedTotal,
		GoroutineCount,
	)
}

// StartDBStatsCollector samples sql.DBStats and the goroutine count into
// gauges until ctx is done. Run it in a goroutine.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // route pattern keeps cardinality bounded
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus handler for /metrics.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into 1xx..5xx.
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

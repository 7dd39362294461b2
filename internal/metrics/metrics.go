// Package metrics provides Prometheus metrics for the FileHub server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filehub_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filehub_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filehub_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	dbConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filehub_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	// Permission metrics
	permissionChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filehub_permission_checks_total",
			Help: "Total permission checks",
		},
		[]string{"result"},
	)

	// Filesystem metrics
	fsOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filehub_fs_operations_total",
			Help: "Total filesystem operations",
		},
		[]string{"operation", "status"},
	)

	fsOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filehub_fs_operation_duration_seconds",
			Help:    "Filesystem operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	uploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filehub_upload_bytes_total",
			Help: "Total bytes written by uploads",
		},
	)

	metadataPartialFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filehub_metadata_partial_failures_total",
			Help: "Metadata updates that failed after a successful filesystem mutation",
		},
		[]string{"operation"},
	)

	// Search metrics
	searchCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filehub_search_cache_total",
			Help: "Search cache lookups",
		},
		[]string{"result"},
	)

	// Reconcile metrics
	reconcileChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filehub_reconcile_changes_total",
			Help: "Metadata rows touched by reconcile",
		},
		[]string{"change"},
	)

	// Quota metrics
	rateLimitHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filehub_rate_limit_hits_total",
			Help: "Total rate limit rejections (429s)",
		},
	)

	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filehub_auth_attempts_total",
			Help: "Total token validations",
		},
		[]string{"result"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordDBQuery records a database query duration.
func RecordDBQuery(query string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(query).Observe(duration.Seconds())
}

// SetDBConnectionsOpen sets the number of open database connections.
func SetDBConnectionsOpen(count int) {
	dbConnectionsOpen.Set(float64(count))
}

// RecordPermissionCheck records a permission check result.
func RecordPermissionCheck(allowed bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	permissionChecksTotal.WithLabelValues(result).Inc()
}

// RecordFSOperation records a filesystem operation and its outcome.
func RecordFSOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	fsOperationsTotal.WithLabelValues(operation, status).Inc()
	fsOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordUpload records bytes written by an upload.
func RecordUpload(bytes int64) {
	uploadBytesTotal.Add(float64(bytes))
}

// RecordMetadataPartialFailure records a metadata update that failed after
// the filesystem change went through.
func RecordMetadataPartialFailure(operation string) {
	metadataPartialFailures.WithLabelValues(operation).Inc()
}

// RecordSearchCache records a search cache hit or miss.
func RecordSearchCache(hit bool) {
	result := "hit"
	if !hit {
		result = "miss"
	}
	searchCacheTotal.WithLabelValues(result).Inc()
}

// RecordReconcile records reconcile upserts and removals.
func RecordReconcile(upserted, removed int) {
	reconcileChangesTotal.WithLabelValues("upserted").Add(float64(upserted))
	reconcileChangesTotal.WithLabelValues("removed").Add(float64(removed))
}

// RecordRateLimitHit records a rate limit rejection.
func RecordRateLimitHit() {
	rateLimitHitsTotal.Inc()
}

// RecordAuthAttempt records a token validation.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// Middleware returns gin middleware that records request metrics.
// Requests are labelled by route template so path parameters don't explode cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

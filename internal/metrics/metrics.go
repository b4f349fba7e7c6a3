package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sharefiles"

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	// EntriesCreated counts upload batches that were declared.
	EntriesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "entries_created_total",
		Help:      "Upload entries created.",
	})

	// ChunksReceived counts chunk-append requests that reached the blob store.
	ChunksReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunks_received_total",
		Help:      "File chunks appended.",
	})

	// ChunkBytes counts decoded chunk bytes appended.
	ChunkBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunk_bytes_total",
		Help:      "Raw bytes appended from chunks.",
	})

	// UploadFailures counts rejected upload requests by reason.
	UploadFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upload_failures_total",
		Help:      "Rejected upload requests by reason.",
	}, []string{"reason"})

	// Downloads counts archive downloads by result (ok, not_found, aborted).
	Downloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "downloads_total",
		Help:      "Archive downloads by result.",
	}, []string{"result"})

	// ArchiveBytes counts zip bytes written to clients.
	ArchiveBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "archive_bytes_total",
		Help:      "Zip bytes streamed to clients.",
	})

	// Sweeps counts completed sweeper cycles.
	Sweeps = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweeps_total",
		Help:      "Retention sweeps run.",
	})

	// SweptFiles counts files reclaimed by the sweeper.
	SweptFiles = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "swept_files_total",
		Help:      "Expired files removed by the sweeper.",
	})

	// SweepErrors counts per-file or per-entry cleanup failures.
	SweepErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_errors_total",
		Help:      "Sweeper cleanup failures.",
	})
)

var registerOnce sync.Once

// InitMetrics registers all collectors with the default registry. Safe to call repeatedly.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			EntriesCreated,
			ChunksReceived,
			ChunkBytes,
			UploadFailures,
			Downloads,
			ArchiveBytes,
			Sweeps,
			SweptFiles,
			SweepErrors,
		)
	})
}

// Middleware records request counts and latency per matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		httpRequests.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}

// Register attaches the Prometheus metrics endpoint to the router.
func Register(router *gin.Engine, path string) {
	router.GET(path, gin.WrapH(promhttp.Handler()))
}

package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatdispatch_ws_connections",
		Help: "Current number of open websocket connections",
	})
	Sessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatdispatch_sessions",
		Help: "Current number of registered usernames",
	})
	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatdispatch_commands_total",
		Help: "Commands handled by the hub, by kind and result code",
	}, []string{"command", "result"})
	DroppedEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatdispatch_dropped_events_total",
		Help: "Events dropped because a client send buffer was full",
	})
	HistoryPruned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatdispatch_history_pruned_total",
		Help: "Messages removed by history maintenance",
	})
	RateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatdispatch_rate_limited_total",
		Help: "Inbound events rejected by the per-connection rate limiter",
	})
	UploadBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatdispatch_upload_bytes_total",
		Help: "Bytes accepted by the upload endpoint",
	})
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatdispatch_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatdispatch_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WSConnections,
		Sessions,
		CommandsTotal,
		DroppedEvents,
		HistoryPruned,
		RateLimited,
		UploadBytes,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// GinMiddleware records request counts and latencies.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HTTPRequestsTotal.With(labels).Inc()
		HTTPRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}

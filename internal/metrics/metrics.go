package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pollvote_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollvote_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ActiveRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pollvote_http_requests_in_progress",
			Help: "Number of HTTP requests currently being processed",
		},
		[]string{"method", "path"},
	)

	VoteOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollvote_vote_operations_total",
			Help: "Total number of vote requests by response status",
		},
		[]string{"status"},
	)

	PollOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollvote_poll_operations_total",
			Help: "Total number of poll operations",
		},
		[]string{"operation", "status"},
	)

	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollvote_cache_operations_total",
			Help: "Total number of cache operations",
		},
		[]string{"operation", "status"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollvote_events_published_total",
			Help: "Total number of poll events handed to the event transport",
		},
		[]string{"transport", "type", "status"},
	)
)

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		method := c.Request.Method
		start := time.Now()

		ActiveRequests.WithLabelValues(method, path).Inc()
		defer ActiveRequests.WithLabelValues(method, path).Dec()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		RequestDuration.WithLabelValues(method, path, status).Observe(duration)
		RequestTotal.WithLabelValues(method, path, status).Inc()

		switch path {
		case "/polls/:id/vote":
			VoteOperations.WithLabelValues(status).Inc()
		case "/polls":
			if method == http.MethodPost {
				PollOperations.WithLabelValues("create", status).Inc()
			} else if method == http.MethodGet {
				PollOperations.WithLabelValues("list", status).Inc()
			}
		case "/polls/byId":
			PollOperations.WithLabelValues("get", status).Inc()
		}
	}
}

func RecordCacheOperation(operation string, hit bool) {
	status := "miss"
	if hit {
		status = "hit"
	}
	CacheOperations.WithLabelValues(operation, status).Inc()
}

func RecordEventPublish(transport, eventType string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	EventsPublished.WithLabelValues(transport, eventType, status).Inc()
}

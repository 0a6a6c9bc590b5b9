package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector registers and records the service metrics.
type Collector struct {
	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// Graph metrics
	graphSavesTotal   *prometheus.CounterVec
	graphSaveDuration *prometheus.HistogramVec
	graphNodes        *prometheus.GaugeVec

	// Action metrics
	actionOpsTotal *prometheus.CounterVec

	// Event stream metrics
	eventsBroadcastTotal *prometheus.CounterVec
	eventSubscribers     prometheus.Gauge

	// Cache metrics
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// Database metrics
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector creates the metrics collector under the given namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.graphSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_saves_total",
			Help:      "Total number of graph snapshot writes",
		},
		[]string{"status"},
	)

	c.graphSaveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_save_duration_seconds",
			Help:      "Graph snapshot write duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	c.graphNodes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_nodes",
			Help:      "Node count of the last saved graph snapshot",
		},
		[]string{"workflow_id"},
	)

	c.actionOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_operations_total",
			Help:      "Total number of action record operations",
		},
		[]string{"operation", "status"},
	)

	c.eventsBroadcastTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_broadcast_total",
			Help:      "Total number of graph change events broadcast",
		},
		[]string{"kind"},
	)

	c.eventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_subscribers",
			Help:      "Number of connected event stream subscribers",
		},
	)

	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordHTTPRequest records an HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// RecordGraphSave records a graph snapshot write.
func (c *Collector) RecordGraphSave(workflowID, status string, nodes int, duration time.Duration) {
	c.graphSavesTotal.WithLabelValues(status).Inc()
	c.graphSaveDuration.WithLabelValues(status).Observe(duration.Seconds())
	if status == "ok" {
		c.graphNodes.WithLabelValues(workflowID).Set(float64(nodes))
	}
}

// RecordActionOp records an action record operation (create, delete, update).
func (c *Collector) RecordActionOp(operation, status string) {
	c.actionOpsTotal.WithLabelValues(operation, status).Inc()
}

// RecordEventBroadcast records a graph change event broadcast.
func (c *Collector) RecordEventBroadcast(kind string) {
	c.eventsBroadcastTotal.WithLabelValues(kind).Inc()
}

// SetEventSubscribers updates the connected subscriber gauge.
func (c *Collector) SetEventSubscribers(n int) {
	c.eventSubscribers.Set(float64(n))
}

// RecordCacheHit records a cache hit.
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordDBConnections records database connection pool gauges.
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// statusCode buckets an HTTP status code for the status label.
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

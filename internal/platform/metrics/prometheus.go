package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// Scheduler metrics
	schedulerTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_ticks_total",
			Help: "Total number of scheduler cycles by outcome",
		},
		[]string{"outcome"},
	)

	schedulerTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scheduler_tick_duration_seconds",
			Help:    "Scheduler cycle duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 45},
		},
	)

	// Notification pipeline metrics
	notificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Total number of global notifications created",
		},
		[]string{"type", "bucket"},
	)

	notificationsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_suppressed_total",
			Help: "Total number of notifications suppressed by deduplication",
		},
		[]string{"type", "bucket"},
	)

	notificationsFannedOut = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_fanned_out_total",
			Help: "Total number of per-recipient notification copies created",
		},
	)

	notificationsPushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_pushed_total",
			Help: "Total number of real-time push attempts by outcome",
		},
		[]string{"outcome"},
	)

	auditFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Total number of failed audit trail writes",
		},
	)

	// WebSocket metrics
	wsConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connected_clients",
			Help: "Number of currently connected WebSocket clients",
		},
	)

	wsHandshakeRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_handshake_rejections_total",
			Help: "Total number of rejected WebSocket handshakes by reason",
		},
		[]string{"reason"},
	)

	// Database metrics
	dbConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns echo middleware that records request counts and latency.
// The route template (not the raw URL) is used as the path label to keep
// cardinality bounded.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if httpErr, ok := err.(*echo.HTTPError); ok {
				status = httpErr.Code
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}

			httpRequestsTotal.WithLabelValues(c.Request().Method, path, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(c.Request().Method, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// RecordTick records a completed scheduler cycle.
func RecordTick(outcome string, duration time.Duration) {
	schedulerTicksTotal.WithLabelValues(outcome).Inc()
	schedulerTickDuration.Observe(duration.Seconds())
}

// RecordTickSkipped records a cycle skipped because the previous one was still running.
func RecordTickSkipped() {
	schedulerTicksTotal.WithLabelValues("skipped").Inc()
}

// RecordNotificationCreated records a new global notification.
func RecordNotificationCreated(notifType, bucket string) {
	notificationsCreated.WithLabelValues(notifType, bucket).Inc()
}

// RecordNotificationSuppressed records a notification suppressed as a duplicate.
func RecordNotificationSuppressed(notifType, bucket string) {
	notificationsSuppressed.WithLabelValues(notifType, bucket).Inc()
}

// RecordFanOut records per-recipient notification copies.
func RecordFanOut(count int) {
	notificationsFannedOut.Add(float64(count))
}

// RecordPush records a real-time push attempt.
func RecordPush(delivered bool) {
	outcome := "offline"
	if delivered {
		outcome = "delivered"
	}
	notificationsPushed.WithLabelValues(outcome).Inc()
}

// RecordAuditFailure records a failed audit trail write.
func RecordAuditFailure() {
	auditFailures.Inc()
}

// RecordWSConnect and RecordWSDisconnect track the connected client gauge.
func RecordWSConnect()    { wsConnectedClients.Inc() }
func RecordWSDisconnect() { wsConnectedClients.Dec() }

// RecordWSRejection records a rejected WebSocket handshake.
func RecordWSRejection(reason string) {
	wsHandshakeRejections.WithLabelValues(reason).Inc()
}

// RecordDBConnections records active database connections.
func RecordDBConnections(count int) {
	dbConnectionsActive.Set(float64(count))
}

package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_http_requests_total",
			Help: "Total number of HTTP requests processed by the realtime service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "realtime_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	grpcServerHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_server_handled_total",
			Help: "Total number of gRPC requests handled by the server.",
		},
		[]string{"grpc_service", "grpc_method", "grpc_code"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_ws_active_connections",
			Help: "Number of open websocket channels.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_ws_events_total",
			Help: "Total number of websocket lifecycle and client events.",
		},
		[]string{"event"},
	)
	pushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_pushes_total",
			Help: "Events pushed to live channels, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	outboxDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_outbox_dropped_total",
			Help: "Delivery jobs dropped because the outbox queue was full.",
		},
		[]string{"job"},
	)
	outboxDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_outbox_depth",
			Help: "Delivery jobs waiting for a worker.",
		},
	)
	notificationsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_notifications_created_total",
			Help: "Notifications persisted, by type.",
		},
		[]string{"type"},
	)
	messagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_messages_sent_total",
			Help: "Direct messages stored, by content kind.",
		},
		[]string{"content"},
	)
	messagesPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_messages_purged_total",
			Help: "Expired messages removed by the retention sweep.",
		},
	)
	rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_rate_limited_total",
			Help: "Requests or events refused by a rate limiter.",
		},
		[]string{"scope"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		grpcServerHandledTotal,
		wsActiveConnections,
		wsEventsTotal,
		pushesTotal,
		outboxDroppedTotal,
		outboxDepth,
		notificationsCreatedTotal,
		messagesSentTotal,
		messagesPurgedTotal,
		rateLimitedTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		statusInfo := status.Convert(err)
		service, method := splitFullMethod(info.FullMethod)
		grpcServerHandledTotal.WithLabelValues(service, method, statusInfo.Code().String()).Inc()
		return resp, err
	}
}

func splitFullMethod(fullMethod string) (string, string) {
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 3 {
		return "unknown", "unknown"
	}
	return parts[1], parts[2]
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

// IncPush records one push attempt; outcome is "delivered", "offline" or "failed".
func IncPush(kind, outcome string) {
	pushesTotal.WithLabelValues(kind, outcome).Inc()
}

func IncOutboxDropped(job string) {
	outboxDroppedTotal.WithLabelValues(job).Inc()
}

func SetOutboxDepth(n int) {
	outboxDepth.Set(float64(n))
}

func IncNotificationCreated(notificationType string) {
	notificationsCreatedTotal.WithLabelValues(notificationType).Inc()
}

func IncMessageSent(content string) {
	messagesSentTotal.WithLabelValues(content).Inc()
}

func AddMessagesPurged(n int64) {
	messagesPurgedTotal.Add(float64(n))
}

func IncRateLimited(scope string) {
	rateLimitedTotal.WithLabelValues(scope).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

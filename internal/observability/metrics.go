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
			Name: "chat_router_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat router.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_router_http_request_duration_seconds",
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
			Name: "chat_router_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_router_ws_events_total",
			Help: "Total number of websocket lifecycle events.",
		},
		[]string{"event"},
	)
	registeredUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_router_registered_users",
			Help: "Number of users holding a live delivery handle.",
		},
	)
	messagesRoutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_router_messages_routed_total",
			Help: "Messages handled by the router, by route and outcome.",
		},
		[]string{"route", "outcome"},
	)
	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_router_deliveries_total",
			Help: "Delivery attempts to connection handles, by route and result.",
		},
		[]string{"route", "result"},
	)
	appendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_router_append_duration_seconds",
			Help:    "Latency of persistence appends.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)
	historyCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_router_history_cache_total",
			Help: "History cache lookups by result.",
		},
		[]string{"result"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_router_amqp_publish_errors_total",
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
		registeredUsers,
		messagesRoutedTotal,
		deliveriesTotal,
		appendDuration,
		historyCacheTotal,
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

func SetRegisteredUsers(n int) {
	registeredUsers.Set(float64(n))
}

// IncRouted counts a routed message. outcome is one of delivered, offline, persist_failed, invalid.
func IncRouted(route, outcome string) {
	messagesRoutedTotal.WithLabelValues(route, outcome).Inc()
}

func AddDeliveries(route string, delivered, failed int) {
	if delivered > 0 {
		deliveriesTotal.WithLabelValues(route, "ok").Add(float64(delivered))
	}
	if failed > 0 {
		deliveriesTotal.WithLabelValues(route, "failed").Add(float64(failed))
	}
}

func ObserveAppend(start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	appendDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}

// IncHistoryCache counts a cache lookup. result is one of hit, miss, error.
func IncHistoryCache(result string) {
	historyCacheTotal.WithLabelValues(result).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

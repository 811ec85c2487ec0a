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
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "realtime_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"kind", "event"},
	)
	hubDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_hub_deliveries_total",
			Help: "Frames handed to subscriber queues, by topic kind and outcome.",
		},
		[]string{"topic", "outcome"},
	)
	presenceTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_presence_transitions_total",
			Help: "Online/offline transitions stored by the presence tracker.",
		},
		[]string{"state"},
	)
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_notifications_total",
			Help: "Notification pipeline outcomes by type.",
		},
		[]string{"type", "outcome"},
	)
	pushJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_push_jobs_total",
			Help: "Push attempts by stage and outcome.",
		},
		[]string{"stage", "outcome"},
	)
	batchRecipientsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_batch_recipients_total",
			Help: "Batch recipients by outcome.",
		},
		[]string{"outcome"},
	)
	cleanupDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_cleanup_deleted_total",
			Help: "Rows purged by the retention job.",
		},
		[]string{"resource"},
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
		hubDeliveriesTotal,
		presenceTransitionsTotal,
		notificationsTotal,
		pushJobsTotal,
		batchRecipientsTotal,
		cleanupDeletedTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
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

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

// AddHubDeliveries counts fan-out results for a topic kind ("room" or "user").
func AddHubDeliveries(topic string, delivered, dropped int) {
	if delivered > 0 {
		hubDeliveriesTotal.WithLabelValues(topic, "delivered").Add(float64(delivered))
	}
	if dropped > 0 {
		hubDeliveriesTotal.WithLabelValues(topic, "dropped").Add(float64(dropped))
	}
}

func IncPresenceTransition(online bool) {
	state := "offline"
	if online {
		state = "online"
	}
	presenceTransitionsTotal.WithLabelValues(state).Inc()
}

// IncNotification records a pipeline outcome: created, deduplicated, or a suppression reason.
func IncNotification(notificationType, outcome string) {
	notificationsTotal.WithLabelValues(notificationType, outcome).Inc()
}

func IncPushJob(stage, outcome string) {
	pushJobsTotal.WithLabelValues(stage, outcome).Inc()
}

func AddBatchRecipients(sent, failed, suppressed int) {
	batchRecipientsTotal.WithLabelValues("sent").Add(float64(sent))
	batchRecipientsTotal.WithLabelValues("failed").Add(float64(failed))
	batchRecipientsTotal.WithLabelValues("suppressed").Add(float64(suppressed))
}

func AddCleanupDeleted(resource string, n int64) {
	if n > 0 {
		cleanupDeletedTotal.WithLabelValues(resource).Add(float64(n))
	}
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

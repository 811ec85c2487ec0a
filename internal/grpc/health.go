// Package grpc exposes the service's gRPC surface: the standard health
// service, instrumented with OpenTelemetry and Prometheus.
package grpc

import (
	"context"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"realtime-service/internal/observability"
)

// CheckFunc reports whether a dependency the service needs is reachable.
type CheckFunc func(ctx context.Context) error

// HealthServer serves grpc.health.v1 for the whole server and for the named
// service.
type HealthServer struct {
	server  *grpclib.Server
	health  *health.Server
	service string
	logger  *zap.Logger
}

func NewHealthServer(service string, logger *zap.Logger) *HealthServer {
	srv := grpclib.NewServer(
		grpclib.StatsHandler(otelgrpc.NewServerHandler()),
		grpclib.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	h := &HealthServer{server: srv, health: hs, service: service, logger: logger.Named("grpc")}
	h.SetServing(true)
	return h
}

// SetServing flips the reported status of both the server and the service.
func (h *HealthServer) SetServing(ok bool) {
	status := healthpb.HealthCheckResponse_SERVING
	if !ok {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(h.service, status)
}

// Watch runs check on every interval and reports NOT_SERVING while it fails.
// It returns when ctx is done.
func (h *HealthServer) Watch(ctx context.Context, check CheckFunc, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	healthy := true
	for {
		checkCtx, cancel := context.WithTimeout(ctx, interval)
		err := check(checkCtx)
		cancel()
		if (err == nil) != healthy {
			healthy = err == nil
			h.SetServing(healthy)
			if healthy {
				h.logger.Info("dependency check recovered")
			} else {
				h.logger.Warn("dependency check failed", zap.Error(err))
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Serve blocks serving gRPC on lis.
func (h *HealthServer) Serve(lis net.Listener) error {
	return h.server.Serve(lis)
}

// Stop marks the service as shutting down and drains in-flight calls.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}

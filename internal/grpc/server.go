package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"dm-service/internal/observability"
)

// ServiceName is the health service name reported for the chat core.
const ServiceName = "dm.ConversationService"

// HealthServer exposes the standard gRPC health protocol for the service.
type HealthServer struct {
	server *grpc.Server
	health *health.Server
	logger *slog.Logger
}

// NewHealthServer builds a gRPC server with metrics and tracing instrumentation
// and registers the health service on it.
func NewHealthServer(logger *slog.Logger) *HealthServer {
	srv := grpc.NewServer(
		grpc.UnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return &HealthServer{server: srv, health: hs, logger: logger}
}

// Serve blocks serving lis until ctx is cancelled, then drains in-flight calls.
func (s *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("grpc server listening", "addr", lis.Addr().String())
		errCh <- s.server.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.Stop()
		return nil
	}
}

// Stop marks every service NOT_SERVING and stops gracefully.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
	s.logger.Info("grpc server stopped")
}

// SetServing toggles the reported status of the chat core.
func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

package server

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/property-verifier/internal/pipeline"
)

// Health service names reported alongside the overall ("") status.
const (
	HealthServiceVLM = "vlm"
	HealthServiceLLM = "llm"
)

// ReadinessFunc is usually (*pipeline.Processor).Ready.
type ReadinessFunc func() pipeline.Readiness

// UpdateHealth copies model readiness onto hs. The server itself is always
// SERVING; a missing model degrades answers but does not stop them.
func UpdateHealth(hs *health.Server, ready pipeline.Readiness) {
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(HealthServiceVLM, servingStatus(ready.VLM))
	hs.SetServingStatus(HealthServiceLLM, servingStatus(ready.LLM))
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// ServeGRPCHealth serves the gRPC health protocol on addr until ctx is done,
// refreshing readiness every interval.
func ServeGRPCHealth(ctx context.Context, addr string, ready ReadinessFunc, interval time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	// Reflection for grpcurl
	reflection.Register(grpcServer)
	UpdateHealth(hs, ready())

	errCh := make(chan error, 1)
	go func() {
		logger.Info("grpc health serving", "addr", lis.Addr().String())
		errCh <- grpcServer.Serve(lis)
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case err := <-errCh:
			return err
		case <-ticker.C:
			UpdateHealth(hs, ready())
		case <-ctx.Done():
			hs.Shutdown()
			grpcServer.GracefulStop()
			logger.Info("grpc health stopped")
			return nil
		}
	}
}

// Package grpc serves the standard gRPC health service, reporting SERVING once
// every provider is loaded.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name of the cloning API.
const ServiceName = "voxclone.v1.VoiceCloning"

const defaultPollInterval = time.Second

// Readiness reports whether models are loaded.
type Readiness interface {
	IsReady() bool
}

// Server is the gRPC health server.
type Server struct {
	srv          *grpc.Server
	health       *health.Server
	models       Readiness
	pollInterval time.Duration
}

// NewServer creates a health server that starts as NOT_SERVING.
func NewServer(models Readiness) *Server {
	s := &Server{
		srv:          grpc.NewServer(),
		health:       health.NewServer(),
		models:       models,
		pollInterval: defaultPollInterval,
	}
	healthpb.RegisterHealthServer(s.srv, s.health)
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)

	return s
}

func (s *Server) set(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Sync publishes the current readiness.
func (s *Server) Sync() {
	if s.models.IsReady() {
		s.set(healthpb.HealthCheckResponse_SERVING)
		return
	}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
}

// Run listens on addr and serves until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("gRPC health server listening", "addr", lis.Addr().String())
		if err := s.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
		close(errCh)
	}()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		s.Sync()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			s.health.Shutdown()
			s.srv.GracefulStop()
			slog.Info("gRPC health server stopped")
			return nil
		case <-ticker.C:
		}
	}
}

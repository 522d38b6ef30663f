package server

import (
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// grpcHealthServer serves the standard gRPC health service so orchestrators
// can probe the process.
type grpcHealthServer struct {
	server       *grpc.Server
	healthServer *health.Server
	log          *zap.Logger
}

func newGRPCHealthServer(log *zap.Logger) *grpcHealthServer {
	s := grpc.NewServer(
		grpc.MaxRecvMsgSize(1024*1024),
		grpc.ConnectionTimeout(30*time.Second),
	)
	healthServer := health.NewServer()

	grpc_health_v1.RegisterHealthServer(s, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	// Enable reflection for grpcurl
	reflection.Register(s)

	return &grpcHealthServer{server: s, healthServer: healthServer, log: log}
}

// Serve blocks until Stop.
func (s *grpcHealthServer) Serve(lis net.Listener) {
	s.log.Info("gRPC health server starting", zap.String("address", lis.Addr().String()))
	if err := s.server.Serve(lis); err != nil {
		s.log.Error("gRPC server failed", zap.Error(err))
	}
}

// Stop gracefully stops the gRPC server
func (s *grpcHealthServer) Stop() {
	s.healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		s.log.Info("gRPC server stopped gracefully")
	case <-time.After(5 * time.Second):
		s.log.Warn("gRPC server forced to stop after timeout")
		s.server.Stop()
	}
}

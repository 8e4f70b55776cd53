// internal/server/grpc_server.go
package server

import (
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/SinaHo/phone-referral-auth/internal/middleware"
)

// NewGRPCServer builds the operational gRPC endpoint: the standard health service fed by
// the scheduler's database probe, plus reflection.
func NewGRPCServer(logger *zap.SugaredLogger, healthSrv *health.Server) *grpc.Server {
	logInt := middleware.UnaryLoggingInterceptor(logger)

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(logInt),
	)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)
	return grpcServer
}

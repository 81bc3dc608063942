package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/mailkeeper/internal/logging"
	"github.com/dmitrijs2005/mailkeeper/internal/server/api"
	"github.com/dmitrijs2005/mailkeeper/internal/server/clientip"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type GRPCServer struct {
	address   string
	registrar api.Registrar
	users     api.Users
	clientIPs *clientip.Resolver
	logger    logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, reg api.Registrar, us api.Users, ips *clientip.Resolver) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		registrar: reg,
		users:     us,
		clientIPs: ips,
	}
}

// newServer builds the grpc.Server with the auth service and health checks.
func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))
	srv.RegisterService(&AuthServiceDesc, s)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	return nil
}

package grpc

import (
	"context"
	"net"

	"github.com/tubepulse/accounts/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type GRPCServer struct {
	address  string
	service  AccountService
	verifier AccessVerifier
	logger   logging.Logger
}

func NewGRPCServer(address string, l logging.Logger, svc AccountService, v AccessVerifier) *GRPCServer {
	if l == nil {
		l = logging.Nop{}
	}
	return &GRPCServer{
		address:  address,
		logger:   l.With("module", "grpc_server"),
		service:  svc,
		verifier: v,
	}
}

func (s *GRPCServer) accounts() AccountService { return s.service }

// Register builds a *grpc.Server with the interceptor chain, the account
// service and a health service reporting SERVING.
func (s *GRPCServer) Register(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.authInterceptor))
	srv := grpc.NewServer(opts...)
	srv.RegisterService(serviceDesc(), s)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

// Serve accepts connections on lis until ctx is cancelled, then stops
// gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.Register()

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

func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/Additional-Code/topup/internal/catalog"
	"github.com/Additional-Code/topup/internal/config"
	"github.com/Additional-Code/topup/pkg/errorbank"
)

const readinessInterval = 5 * time.Second

// Module exposes the gRPC server and lifecycle hooks to Fx.
var Module = fx.Module("grpc_server",
	fx.Provide(NewServer, health.NewServer),
	fx.Invoke(Run),
)

// Readiness reports whether the service can take orders.
type Readiness interface {
	Ready() bool
}

// NewServer builds a gRPC server with logging and error mapping interceptors
// and registers the health and reflection services.
func NewServer(logger *zap.Logger, healthSrv *health.Server) *grpc.Server {
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(unaryLogging(logger), unaryErrors()),
		grpc.ChainStreamInterceptor(streamLogging(logger), streamErrors()),
	)
	healthpb.RegisterHealthServer(server, healthSrv)
	reflection.Register(server)
	return server
}

func unaryLogging(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		duration := time.Since(start)
		if err != nil {
			logger.Warn("grpc unary call finished", zap.String("method", info.FullMethod), zap.Duration("duration", duration), zap.Error(err))
		} else {
			logger.Debug("grpc unary call finished", zap.String("method", info.FullMethod), zap.Duration("duration", duration))
		}
		return resp, err
	}
}

func streamLogging(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		duration := time.Since(start)
		if err != nil {
			logger.Warn("grpc stream call finished", zap.String("method", info.FullMethod), zap.Duration("duration", duration), zap.Error(err))
		} else {
			logger.Debug("grpc stream call finished", zap.String("method", info.FullMethod), zap.Duration("duration", duration))
		}
		return err
	}
}

func unaryErrors() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		return resp, toStatus(err)
	}
}

func streamErrors() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return toStatus(handler(srv, ss))
	}
}

// toStatus converts application errors into gRPC status errors. Errors that
// already carry a status pass through unchanged.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	appErr := errorbank.From(err)
	return status.Error(appErr.GRPCCode(), appErr.Message())
}

// RunParams groups the dependencies of Run.
type RunParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Server    *grpc.Server
	Health    *health.Server
	Catalog   *catalog.Catalog `optional:"true"`
	Logger    *zap.Logger
}

// Run binds the gRPC server to the configured host/port and manages lifecycle.
func Run(p RunParams) {
	cfg, server, logger := p.Config, p.Server, p.Logger
	if !cfg.GRPC.Enabled {
		logger.Info("gRPC server disabled")
		return
	}
	var ready Readiness
	if p.Catalog != nil {
		ready = p.Catalog
	}

	addr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
	var listener net.Listener
	watchCtx, stopWatch := context.WithCancel(context.Background())

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				stopWatch()
				return fmt.Errorf("listen grpc: %w", err)
			}
			listener = ln
			go watchReadiness(watchCtx, p.Health, ready, readinessInterval)
			logger.Info("starting gRPC server", zap.String("addr", addr))
			go func() {
				if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
					logger.Fatal("grpc server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping gRPC server")
			stopWatch()
			p.Health.Shutdown()
			stopped := make(chan struct{})
			go func() {
				server.GracefulStop()
				close(stopped)
			}()

			select {
			case <-ctx.Done():
				server.Stop()
				return ctx.Err()
			case <-stopped:
				if listener != nil {
					_ = listener.Close()
				}
				return nil
			}
		},
	})
}

// watchReadiness mirrors ready onto the overall health status until ctx ends.
// A nil ready reports SERVING.
func watchReadiness(ctx context.Context, srv *health.Server, ready Readiness, every time.Duration) {
	update := func() {
		st := healthpb.HealthCheckResponse_SERVING
		if ready != nil && !ready.Ready() {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		srv.SetServingStatus("", st)
	}
	update()

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

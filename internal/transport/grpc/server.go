package transportgrpc

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcinterceptors "github.com/nnh2x/hemidi-authen/internal/transport/grpc/interceptors"
)

// AuthServiceName is the health service name reported alongside the overall "" entry.
const AuthServiceName = "hemidi.auth.v1.AuthService"

const (
	defaultProbeInterval = 10 * time.Second
	probeTimeout         = 2 * time.Second
)

// Probe checks one dependency the service cannot run without.
type Probe func(ctx context.Context) error

// ServerDependencies encapsulates what the gRPC server layer needs.
type ServerDependencies struct {
	Logger         *zap.Logger
	Metrics        *grpcinterceptors.GRPCMetrics
	TracerProvider trace.TracerProvider
	Probes         map[string]Probe
	ProbeInterval  time.Duration
}

// Server serves grpc.health.v1 with a status derived from dependency probes.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	probes   map[string]Probe
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	serving *bool
}

// NewServer wires the health service, reflection and the interceptor chain.
func NewServer(deps ServerDependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	interval := deps.ProbeInterval
	if interval <= 0 {
		interval = defaultProbeInterval
	}

	srv := grpc.NewServer(
		grpcinterceptors.ServerTracing(grpcinterceptors.TracingOptions{TracerProvider: deps.TracerProvider}),
		grpc.ChainUnaryInterceptor(
			grpcinterceptors.UnaryLogging(logger),
			deps.Metrics.UnaryServerInterceptor(),
		),
		grpc.ChainStreamInterceptor(deps.Metrics.StreamServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthServer)

	// Register reflection service for tools like grpcurl.
	reflection.Register(srv)

	return &Server{
		grpc:     srv,
		health:   healthServer,
		probes:   deps.Probes,
		interval: interval,
		logger:   logger,
	}
}

// CheckNow runs every probe once and publishes the resulting status.
func (s *Server) CheckNow(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	names := make([]string, 0, len(s.probes))
	for name := range s.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	ok := true
	for _, name := range names {
		if err := s.probes[name](ctx); err != nil {
			ok = false
			s.logger.Warn("readiness probe failed", zap.String("dependency", name), zap.Error(err))
		}
	}

	s.setServing(ok)
	return ok
}

func (s *Server) setServing(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.serving != nil && *s.serving == ok {
		return
	}
	s.serving = &ok

	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(AuthServiceName, status)
	s.logger.Info("grpc health status changed", zap.String("status", status.String()))
}

// WatchReadiness re-runs the probes every interval until ctx is cancelled.
func (s *Server) WatchReadiness(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	s.CheckNow(ctx)

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CheckNow(ctx)
			}
		}
	}()

	return done
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Stop drains in-flight calls, or cuts them off once ctx expires.
func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpc.Stop()
	}
}

package transportgrpc

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T, srv *Server) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() { srv.Stop(context.Background()) })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return healthpb.NewHealthClient(conn)
}

func checkStatus(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	return resp.GetStatus()
}

func TestHealthFollowsProbes(t *testing.T) {
	var failing atomic.Bool
	srv := NewServer(ServerDependencies{
		Logger: zaptest.NewLogger(t),
		Probes: map[string]Probe{
			"database": func(context.Context) error {
				if failing.Load() {
					return errors.New("connection refused")
				}
				return nil
			},
		},
	})
	client := startServer(t, srv)

	if !srv.CheckNow(context.Background()) {
		t.Fatalf("expected probes to pass")
	}
	if got := checkStatus(t, client, AuthServiceName); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", got)
	}

	failing.Store(true)
	if srv.CheckNow(context.Background()) {
		t.Fatalf("expected probes to fail")
	}
	if got := checkStatus(t, client, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %v", got)
	}
}

func TestWatchReadinessStopsWithContext(t *testing.T) {
	srv := NewServer(ServerDependencies{Logger: zaptest.NewLogger(t), ProbeInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := srv.WatchReadiness(ctx)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("readiness watcher did not stop")
	}
}

package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"
	"google.golang.org/grpc"

	"github.com/nnh2x/hemidi-authen/internal/core/port"
	"github.com/nnh2x/hemidi-authen/internal/infra/config"
	"github.com/nnh2x/hemidi-authen/internal/infra/database"
	kafkainfra "github.com/nnh2x/hemidi-authen/internal/infra/kafka"
	"github.com/nnh2x/hemidi-authen/internal/infra/logger"
	redisinfra "github.com/nnh2x/hemidi-authen/internal/infra/redis"
	"github.com/nnh2x/hemidi-authen/internal/infra/security"
	"github.com/nnh2x/hemidi-authen/internal/infra/telemetry"
	"github.com/nnh2x/hemidi-authen/internal/repository/memory"
	postgresrepo "github.com/nnh2x/hemidi-authen/internal/repository/postgres"
	redisrepo "github.com/nnh2x/hemidi-authen/internal/repository/redis"
	transportgrpc "github.com/nnh2x/hemidi-authen/internal/transport/grpc"
	grpcinterceptors "github.com/nnh2x/hemidi-authen/internal/transport/grpc/interceptors"
	"github.com/nnh2x/hemidi-authen/internal/transport/http/middleware"
	"github.com/nnh2x/hemidi-authen/internal/transport/http/routes"
	"github.com/nnh2x/hemidi-authen/internal/usecase"
)

const (
	shutdownTimeout   = 10 * time.Second
	blacklistCacheMax = 100_000
	acmeChallengeAddr = ":80"
)

type Application struct {
	cfg        *config.AppConfig
	engine     *gin.Engine
	logger     *zap.Logger
	pool       *pgxpool.Pool
	redis      *redisinfra.Client
	producer   *kafkainfra.Producer
	tracer     *telemetry.TracerProvider
	grpcServer *transportgrpc.Server
	grpcAddr   string
	quotas     *memory.QuotaStore
	cleanup    *usecase.TokenCleanupWorker
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	a := &Application{
		cfg:      cfg,
		logger:   log,
		tracer:   tracer,
		grpcAddr: fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port),
	}
	if err := a.wire(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *Application) wire(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	a.pool = pool
	repos := postgresrepo.NewRepositories(pool)

	keyProvider, err := security.NewKeyProvider(cfg.App.Env, cfg.JWT.KeyDirectory)
	if err != nil {
		return fmt.Errorf("init key provider: %w", err)
	}

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return fmt.Errorf("configure argon2: %w", err)
	}

	metrics, err := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}
	grpcMetrics, err := grpcinterceptors.NewGRPCMetrics(grpcinterceptors.GRPCMetricsOptions{})
	if err != nil {
		return fmt.Errorf("init grpc metrics: %w", err)
	}

	blacklist, pruner := a.blacklistCache(ctx)

	authService, err := usecase.NewAuthService(cfg, usecase.AuthDependencies{
		Users:     repos.Users,
		Tokens:    repos.Tokens,
		Blacklist: blacklist,
		Hasher:    hasher,
		Policy:    security.NewPasswordPolicy(cfg.Password.MinLength, cfg.Password.MinScore),
		Signer:    security.NewTokenSigner(keyProvider, cfg.JWT.Issuer),
		Events:    a.eventPublisher(),
		Metrics:   metrics,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("init auth service: %w", err)
	}

	policies, err := usecase.BuildPolicyTable(cfg.RateLimit.Policies)
	if err != nil {
		return fmt.Errorf("build rate limit policies: %w", err)
	}
	a.quotas = memory.NewQuotaStore(log)
	admission := usecase.NewAdmissionService(a.quotas, policies, metrics, log)

	var rateLimiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = middleware.NewRateLimiter(admission, log)
	} else {
		log.Warn("rate limiting disabled by configuration")
	}

	a.cleanup = usecase.NewTokenCleanupWorker(repos.Tokens, pruner, cfg.Cleanup.BlacklistInterval, log)

	probes := map[string]transportgrpc.Probe{"database": pool.Ping}
	deps := routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		HTTPMetrics: httpMetrics,
		Keys:        keyProvider,
		Database:    pool,
		Services: routes.ServiceSet{
			Auth:   authService,
			Quotas: admission,
		},
	}
	if a.redis != nil {
		deps.Cache = a.redis
		probes["redis"] = a.redis.HealthCheck
	}
	a.engine = routes.Register(deps)

	a.grpcServer = transportgrpc.NewServer(transportgrpc.ServerDependencies{
		Logger:  log,
		Metrics: grpcMetrics,
		Probes:  probes,
	})

	return nil
}

// blacklistCache prefers Redis and falls back to an in-process cache. The
// in-process cache is also returned as the pruner for the cleanup worker.
func (a *Application) blacklistCache(ctx context.Context) (port.BlacklistCache, usecase.CachePruner) {
	if a.cfg.Redis.Enabled {
		client, err := redisinfra.NewClient(ctx, a.cfg.Redis, a.logger)
		if err == nil {
			a.redis = client
			return redisrepo.NewBlacklistRepository(client.Client(), a.cfg.Redis.BlacklistPrefix), nil
		}
		a.logger.Warn("redis unavailable, using in-process blacklist cache", zap.Error(err))
	}

	cache := memory.NewBlacklistCache(blacklistCacheMax)
	return cache, cache
}

func (a *Application) eventPublisher() port.EventPublisher {
	if len(a.cfg.Kafka.Brokers) == 0 {
		a.logger.Info("kafka brokers not configured, using stub publisher")
		return kafkainfra.NewStubPublisher(a.logger)
	}

	producer, err := kafkainfra.NewProducer(a.cfg.Kafka, a.cfg.App.Name, a.logger)
	if err != nil {
		a.logger.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(a.logger)
	}
	a.producer = producer
	return kafkainfra.NewEventPublisher(producer, a.cfg.App)
}

func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	// Background work is bound to the root context and drained before close.
	bgCtx, stopBackground := context.WithCancel(ctx)
	janitorDone := a.quotas.StartJanitor(bgCtx, a.cfg.RateLimit.CleanupInterval)
	cleanupDone := a.cleanup.Start(bgCtx)
	readinessDone := a.grpcServer.WatchReadiness(bgCtx)
	defer func() {
		stopBackground()
		<-janitorDone
		<-cleanupDone
		<-readinessDone
	}()

	lis, err := net.Listen("tcp", a.grpcAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		a.logger.Info("starting gRPC server", zap.String("address", a.grpcAddr))
		if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("run grpc server: %w", err)
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.Bool("tls", a.cfg.App.TLSDomain != ""),
	)
	go func() {
		if err := a.serveHTTP(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.grpcServer.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutdown server: %w", err)
	}
	return runErr
}

// serveHTTP serves plain HTTP, or HTTPS with Let's Encrypt certificates when
// app.tls_domain is set. The ACME HTTP-01 challenge is answered on :80.
func (a *Application) serveHTTP(srv *http.Server) error {
	domain := a.cfg.App.TLSDomain
	if domain == "" {
		return srv.ListenAndServe()
	}

	m := &autocert.Manager{
		Cache:      autocert.DirCache(a.cfg.App.TLSCacheDir),
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domain),
	}

	go func() {
		challenge := &http.Server{
			Addr:              acmeChallengeAddr,
			Handler:           m.HTTPHandler(nil),
			ReadHeaderTimeout: 10 * time.Second,
		}
		a.logger.Info("ACME HTTP challenge server listening", zap.String("address", acmeChallengeAddr))
		if err := challenge.ListenAndServe(); err != nil {
			a.logger.Error("ACME challenge server stopped", zap.Error(err))
		}
	}()

	srv.TLSConfig = &tls.Config{
		GetCertificate: m.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
	return srv.ListenAndServeTLS("", "")
}

func (a *Application) close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if err := a.tracer.Shutdown(context.Background()); err != nil {
		a.logger.Warn("shutdown tracer", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// Package main is the entry point for the uibind server. It loads
// declarative UI definitions, wires the data runtime and serves resolved
// component trees over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/uibind/internal/config"
	"github.com/pitabwire/uibind/internal/controller"
	"github.com/pitabwire/uibind/internal/definition"
	"github.com/pitabwire/uibind/internal/idempotency"
	"github.com/pitabwire/uibind/internal/listener"
	"github.com/pitabwire/uibind/internal/observability"
	"github.com/pitabwire/uibind/internal/openapi"
	"github.com/pitabwire/uibind/internal/proxy"
	"github.com/pitabwire/uibind/internal/query"
	"github.com/pitabwire/uibind/internal/render"
	"github.com/pitabwire/uibind/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "uibind", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	oaIndex := openapi.NewIndex()
	if err := oaIndex.Load(buildSpecSources(cfg.Specs)); err != nil {
		logger.Error("OpenAPI index load failed", zap.Error(err))
		return 1
	}
	for _, svc := range oaIndex.Services() {
		metrics.SetOpenAPISchemasIndexed(svc, float64(len(oaIndex.SchemaNames(svc))))
	}

	defs, err := definition.NewLoader().LoadAll(cfg.Definitions.Directories)
	if err != nil {
		metrics.RecordDefinitionReload("error")
		logger.Error("definition loading failed", zap.Error(err))
		return 1
	}
	if verrs := definition.NewValidator().Validate(defs, oaIndex); len(verrs) > 0 {
		for _, ve := range verrs {
			logger.Error("definition validation error",
				zap.String("path", ve.Path), zap.String("code", ve.Code), zap.String("error", ve.Message))
		}
		metrics.RecordDefinitionReload("error")
		logger.Error("definition validation failed", zap.Int("errors", len(verrs)))
		return 1
	}
	if err := definition.ApplySchemas(defs, oaIndex); err != nil {
		metrics.RecordDefinitionReload("error")
		logger.Error("applying OpenAPI schemas failed", zap.Error(err))
		return 1
	}
	registry := definition.NewRegistry(defs)
	metrics.SetDefinitionsLoaded(float64(registry.Count()))
	metrics.RecordDefinitionReload("success")

	pool, err := buildPostgresPool(ctx, cfg.Storage.Postgres, logger)
	if err != nil {
		logger.Error("postgres initialization failed", zap.Error(err))
		return 1
	}

	idemStore, idemChecker, idemCloser := buildIdempotencyStore(cfg.Idempotency, logger)

	engine := query.NewEngine(cfg.Runtime.Locale)
	factoryOpts := []proxy.FactoryOption{
		proxy.WithFactoryMetrics(metrics),
		proxy.WithFactoryLogger(logger),
	}
	if pool != nil {
		factoryOpts = append(factoryOpts, proxy.WithPostgres(pool))
	}

	factory := proxy.NewFactory(cfg.Proxy, engine, factoryOpts...)
	ctrlOpts := []controller.Option{
		controller.WithProxyFactory(factory),
		controller.WithEngine(engine),
		controller.WithDefaultPageSize(cfg.Runtime.DefaultPageSize),
		controller.WithLogger(logger),
		controller.WithMetrics(metrics),
	}
	if idemStore != nil {
		ctrlOpts = append(ctrlOpts, controller.WithIdempotency(idemStore, cfg.Idempotency.Store.DefaultTTL))
	}

	ctrl, err := controller.New(ctx, controller.Config{
		Models:  registry.Models(),
		Stores:  registry.Stores(),
		Views:   registry.Views(),
		Routes:  registry.Routes(),
		Actions: controller.Builtins(),
		Init: func(ctx context.Context, _ *controller.Controller) error {
			if pool == nil {
				return nil
			}
			return factory.EnsureTables(ctx)
		},
	}, ctrlOpts...)
	if err != nil {
		logger.Error("controller initialization failed", zap.Error(err))
		return 1
	}

	resolver := render.NewResolver(
		render.WithController(ctrl),
		render.WithListenerAdapter(listener.New(listener.WithDispatcher(ctrl), listener.WithLogger(logger))),
		render.WithLogger(logger),
		render.WithMetrics(metrics),
	)

	readiness := observability.ReadinessChecks{
		DefinitionsLoaded: func() bool { return registry.Count() > 0 },
		OpenAPILoaded: func() bool {
			return len(cfg.Specs.Sources) == 0 || len(oaIndex.Services()) > 0
		},
		IdempotencyStore: idemChecker,
	}
	if pool != nil {
		readiness.Postgres = observability.HealthCheckFunc(pool.Ping)
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:     cfg,
		Controller: ctrl,
		Resolver:   resolver,
		Metrics:    metrics,
		Logger:     logger,
		Readiness:  readiness,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("definitions", registry.Count()),
		zap.String("checksum", registry.Checksum()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if idemCloser != nil {
		idemCloser()
	}
	if pool != nil {
		pool.Close()
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildSpecSources resolves configured spec files against the specs
// directory.
func buildSpecSources(specsCfg config.SpecsConfig) []openapi.SpecSource {
	sources := make([]openapi.SpecSource, len(specsCfg.Sources))
	for i, s := range specsCfg.Sources {
		specPath := s.SpecFile
		if specsCfg.Directory != "" && !filepath.IsAbs(specPath) {
			specPath = filepath.Join(specsCfg.Directory, specPath)
		}
		sources[i] = openapi.SpecSource{ServiceID: s.ServiceID, SpecPath: specPath}
	}
	return sources
}

// buildPostgresPool connects to the database named by the DSN environment
// variable. It returns a nil pool when no DSN is configured.
func buildPostgresPool(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	if cfg.DSNEnv == "" {
		return nil, nil
	}
	dsn := os.Getenv(cfg.DSNEnv)
	if dsn == "" {
		logger.Info("postgres DSN not set, postgres proxies disabled", zap.String("env", cfg.DSNEnv))
		return nil, nil
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse DSN: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// buildIdempotencyStore creates the idempotency store based on config. A
// redis driver without an address falls back to memory.
func buildIdempotencyStore(cfg config.IdempotencyConfig, logger *zap.Logger) (idempotency.Store, observability.HealthChecker, func()) {
	if !cfg.Enabled {
		return nil, nil, nil
	}

	if cfg.Store.Driver == "redis" {
		addr := os.Getenv(cfg.Store.AddrEnv)
		if addr != "" {
			client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.Store.DB})
			logger.Info("using redis idempotency store", zap.String("addr", addr))
			store := idempotency.NewRedisStore(client)
			return store, store, func() { _ = client.Close() }
		}
		logger.Warn("redis address not set, using in-memory idempotency store", zap.String("env", cfg.Store.AddrEnv))
	}

	logger.Info("using in-memory idempotency store")
	return idempotency.NewMemoryStore(), nil, nil
}

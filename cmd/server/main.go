package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	appmodule "github.com/erp/platform/internal/application/module"
	"github.com/erp/platform/internal/domain/event"
	"github.com/erp/platform/internal/infrastructure/auth"
	"github.com/erp/platform/internal/infrastructure/catalog"
	"github.com/erp/platform/internal/infrastructure/config"
	"github.com/erp/platform/internal/infrastructure/eventbus"
	"github.com/erp/platform/internal/infrastructure/lock"
	"github.com/erp/platform/internal/infrastructure/logger"
	"github.com/erp/platform/internal/infrastructure/persistence"
	"github.com/erp/platform/internal/infrastructure/telemetry"
	"github.com/erp/platform/internal/interfaces/http/middleware"
	"github.com/erp/platform/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}
	log, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()

	// Logs bridge first so the teed logger is used by everything below
	logProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log exporter", zap.Error(err))
	}
	if logProvider.IsEnabled() {
		log, err = logger.New(logCfg, logProvider.ZapCore(logger.ParseLevel(cfg.Log.Level)))
		if err != nil {
			panic("Failed to initialize logger: " + err.Error())
		}
	}
	defer func() {
		_ = log.Sync()
	}()
	zap.ReplaceGlobals(log)

	log.Info("Starting module platform",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer", zap.Error(err))
	}

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter", zap.Error(err))
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Profiler.Enabled,
		ServerAddress:   cfg.Profiler.ServerAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() && cfg.Profiler.SpanProfiles {
		tracerProvider.EnableSpanProfiles()
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
		if err := logProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down logger provider", zap.Error(err))
		}
	}()

	db, err := persistence.NewDatabase(&cfg.Database, log, persistence.Options{
		LogLevel: cfg.Log.Level,
		Tracing:  cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
	})
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully", zap.String("driver", cfg.Database.Driver))

	registry, err := catalog.Load(cfg.Modules.CatalogPath)
	if err != nil {
		log.Fatal("Failed to load module catalog", zap.Error(err))
	}
	log.Info("Module catalog loaded",
		zap.Int("modules", registry.Count()),
		zap.String("path", cfg.Modules.CatalogPath),
	)

	moduleMetrics, err := telemetry.NewModuleMetrics(meterProvider.Meter("erp-platform/modules"))
	if err != nil {
		log.Fatal("Failed to create module metrics", zap.Error(err))
	}

	bus := eventbus.New(log,
		eventbus.WithAsyncTimeout(cfg.Event.HandlerTimeout),
		eventbus.WithMetrics(moduleMetrics),
	)
	subscribeLifecycleAudit(bus, log)

	locker, closeLocker := newTenantLocker(ctx, cfg, log)
	defer closeLocker()

	service := appmodule.NewActivationService(
		registry,
		persistence.NewGormActivationRepository(db.DB),
		bus,
		log,
		appmodule.WithLocker(locker),
		appmodule.WithMetrics(moduleMetrics),
		appmodule.WithFlushTimeout(cfg.Event.FlushTimeout),
	)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	jwtService := auth.NewJWTService(cfg.JWT)
	if !jwtService.Enabled() {
		log.Warn("JWT secret not configured, company is taken from the path or X-Company-ID header")
	}

	r, err := router.New(router.Deps{
		Logger:  log,
		Service: service,
		Bus:     bus,
		JWT:     jwtService,
		DB:      db,
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		},
		FlushTimeout:   cfg.Event.FlushTimeout,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	})
	if err != nil {
		log.Fatal("Failed to build router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        r.Engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-quit.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	// Anything still queued by an interrupted request
	if pending := bus.Pending(); pending > 0 {
		stats := bus.Flush(shutdownCtx)
		log.Info("Drained pending events", zap.Int("total", stats.Total), zap.Int("failed", stats.Failed))
	}

	log.Info("Server exited gracefully")
}

// newTenantLocker picks the lock backend for activation and deactivation.
// The returned func releases the backend's resources.
func newTenantLocker(ctx context.Context, cfg *config.Config, log *zap.Logger) (appmodule.TenantLocker, func()) {
	if cfg.Modules.LockBackend != "redis" {
		log.Info("Using in-process tenant lock", zap.Duration("wait", cfg.Modules.LockWait))
		return lock.NewMemoryTenantLocker(cfg.Modules.LockWait), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Fatal("Failed to connect to redis", zap.String("addr", cfg.Redis.Addr()), zap.Error(err))
	}
	log.Info("Using redis tenant lock",
		zap.String("addr", cfg.Redis.Addr()),
		zap.Duration("ttl", cfg.Modules.LockTTL),
		zap.Duration("wait", cfg.Modules.LockWait),
	)

	locker := lock.NewRedisTenantLocker(client, cfg.Modules.LockTTL, cfg.Modules.LockWait, log)
	return locker, func() {
		if err := client.Close(); err != nil {
			log.Error("Error closing redis client", zap.Error(err))
		}
	}
}

// subscribeLifecycleAudit logs every module lifecycle change after the request settles
func subscribeLifecycleAudit(bus event.Bus, log *zap.Logger) {
	audit := log.Named("module_audit")
	bus.OnAsync(event.NameModuleActivated, event.Handle(func(ctx context.Context, e event.ModuleActivated) error {
		logger.Enrich(ctx, audit).Info("Module lifecycle changed",
			zap.String("company_id", e.CompanyID.String()),
			zap.String("module_id", e.ModuleID),
			zap.String("state", "active"),
		)
		return nil
	}))
	bus.OnAsync(event.NameModuleDeactivated, event.Handle(func(ctx context.Context, e event.ModuleDeactivated) error {
		logger.Enrich(ctx, audit).Info("Module lifecycle changed",
			zap.String("company_id", e.CompanyID.String()),
			zap.String("module_id", e.ModuleID),
			zap.String("state", "inactive"),
		)
		return nil
	}))
}

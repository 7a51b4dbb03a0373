package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/arnobt78/multimodel-chat/config"
	"github.com/arnobt78/multimodel-chat/internal/observability"
	"github.com/arnobt78/multimodel-chat/middleware"
	"github.com/arnobt78/multimodel-chat/repositories"
	"github.com/arnobt78/multimodel-chat/repositories/postgres"
	"github.com/arnobt78/multimodel-chat/services/cooldown"
	"github.com/arnobt78/multimodel-chat/services/inference"
	"github.com/arnobt78/multimodel-chat/services/providers"
	"github.com/arnobt78/multimodel-chat/services/providers/backends"
	"github.com/arnobt78/multimodel-chat/services/routing"
	"github.com/arnobt78/multimodel-chat/services/telemetry"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	DB     *postgres.DB // nil unless a database is configured
	NATS   *nats.Conn   // nil unless NATS_URL is set

	// Observability
	MetricsProvider *observability.MetricsProvider
	Metrics         *observability.Metrics

	// Repositories
	Events repositories.EventRepository

	// Routing
	Registry     *providers.Registry
	Adapters     map[providers.BackendID]providers.Adapter
	Tracker      *cooldown.Tracker
	Orchestrator *routing.Orchestrator

	// Services
	Emitter *telemetry.Emitter // nil when telemetry is disabled
	Chat    *inference.Service

	// Auth
	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initMetrics(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		deps.closeQuietly(ctx)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initRouting(cfg); err != nil {
		deps.closeQuietly(ctx)
		return nil, fmt.Errorf("failed to initialize backends: %w", err)
	}

	if err := deps.initTelemetry(cfg); err != nil {
		deps.closeQuietly(ctx)
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	deps.Chat = inference.NewService(deps.Orchestrator, deps.eventEmitter(), logger)
	deps.initAuth(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.Int("backends", deps.Registry.Len()),
		zap.Int("usable_backends", cfg.UsableBackends()))
	return deps, nil
}

func (d *Dependencies) initMetrics(cfg *config.Config) error {
	if !cfg.Observability.MetricsEnabled {
		return nil
	}
	mp, err := observability.NewMetricsProvider()
	if err != nil {
		return err
	}
	metrics, err := observability.NewMetrics(mp)
	if err != nil {
		return err
	}
	d.MetricsProvider = mp
	d.Metrics = metrics
	return nil
}

// initDatabase opens the events store when a database is configured
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	if cfg.Database == nil {
		d.Logger.Info("no database configured, events will not be persisted")
		return nil
	}

	db, err := postgres.NewDB(*cfg.Database, d.Logger)
	if err != nil {
		return err
	}
	d.DB = db

	if err := db.InitSchema(ctx); err != nil {
		return err
	}

	d.Events = postgres.NewEventRepository(db, d.Logger)
	return nil
}

func (d *Dependencies) initRouting(cfg *config.Config) error {
	registry, err := providers.NewRegistry(cfg.Backends.Priority, cfg.Backends.List)
	if err != nil {
		return err
	}

	adapters, err := backends.BuildAll(registry, d.Logger)
	if err != nil {
		return err
	}

	for _, b := range registry.List() {
		d.Logger.Info("backend registered",
			zap.String("backend", string(b.ID)),
			zap.String("display_name", b.Name()),
			zap.Bool("enabled", b.Enabled),
			zap.Bool("usable", b.Usable()))
	}
	if cfg.UsableBackends() == 0 {
		d.Logger.Warn("no AI backends configured")
	}

	d.Registry = registry
	d.Adapters = adapters
	d.Tracker = cooldown.NewTracker(cfg.Routing.CooldownWindow, d.Logger)
	d.Orchestrator = routing.NewOrchestrator(
		routing.Config{
			CallTimeout:    cfg.Routing.CallTimeout,
			RequestTimeout: cfg.Routing.RequestTimeout,
		},
		registry,
		adapters,
		d.Tracker,
		d.Logger,
		routing.WithMetrics(d.Metrics),
	)
	return nil
}

// initTelemetry builds the sink list and starts the emitter
func (d *Dependencies) initTelemetry(cfg *config.Config) error {
	tc := cfg.Telemetry
	if !tc.Enabled {
		d.Logger.Info("telemetry disabled")
		return nil
	}

	var sinks []telemetry.Sink
	if tc.LogEvents {
		sinks = append(sinks, telemetry.NewLogSink(d.Logger))
	}
	if d.Metrics != nil {
		sinks = append(sinks, telemetry.NewMetricsSink(d.Metrics))
	}
	if d.Events != nil {
		sinks = append(sinks, telemetry.NewRepositorySink(d.Events))
	}
	if tc.EventsURL != "" {
		sinks = append(sinks, telemetry.NewHTTPSink(tc.EventsURL, &http.Client{Timeout: tc.SinkTimeout}))
	}
	if tc.NATSURL != "" {
		nc, err := nats.Connect(tc.NATSURL, nats.Name("multimodel-chat"), nats.Timeout(5*time.Second))
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		d.NATS = nc
		sinks = append(sinks, telemetry.NewNATSSink(nc, tc.NATSSubject))
	}

	d.Emitter = telemetry.NewEmitter(telemetry.Config{
		BufferSize:  tc.BufferSize,
		WorkerCount: tc.WorkerCount,
		SinkTimeout: tc.SinkTimeout,
	}, d.Logger, d.Metrics, sinks...)

	return d.Emitter.Start()
}

// eventEmitter avoids handing a typed nil to the chat service
func (d *Dependencies) eventEmitter() inference.EventEmitter {
	if d.Emitter == nil {
		return nil
	}
	return d.Emitter
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	if cfg.Auth.JWTSecret == "" {
		d.Logger.Warn("AUTH_JWT_SECRET not set, API authentication disabled")
		d.AuthMiddleware = middleware.NewAuthMiddleware(nil, d.Logger)
		return
	}
	validator := middleware.NewHMACValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger)
	d.Logger.Info("API authentication enabled")
}

// Close gracefully shuts down all dependencies. Pending telemetry is flushed
// before the sinks it depends on are closed.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Emitter != nil {
		timeout := 5 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Emitter.Stop(timeout); err != nil && !errors.Is(err, telemetry.ErrNotStarted) {
			errs = append(errs, fmt.Errorf("failed to stop telemetry: %w", err))
		}
	}

	if d.NATS != nil {
		if err := d.NATS.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("failed to drain NATS: %w", err))
		}
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.MetricsProvider != nil {
		if err := d.MetricsProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down metrics: %w", err))
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return errors.Join(errs...)
}

// closeQuietly releases partially initialized resources
func (d *Dependencies) closeQuietly(ctx context.Context) {
	if err := d.Close(ctx); err != nil {
		d.Logger.Warn("cleanup after failed initialization", zap.Error(err))
	}
}

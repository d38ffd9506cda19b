package app

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"toolmesh/internal/infra/config"
	"toolmesh/internal/infra/telemetry"
)

// Application owns the daemon lifecycle: config loading, engine
// assembly, background loops, and shutdown.
type Application struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Application {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Application{logger: logger}
}

type ServeConfig struct {
	ConfigPath string
}

type ValidateConfig struct {
	ConfigPath string
}

// Serve runs the engine until ctx is canceled: periodic health probing,
// config file watching, and the observability server all stop together.
func (a *Application) Serve(ctx context.Context, serve ServeConfig) error {
	loader := config.NewLoader(a.logger)
	cfg, err := loader.Load(serve.ConfigPath)
	if err != nil {
		return err
	}

	metrics := telemetry.NewPrometheusMetrics(nil)
	engine, err := NewEngine(cfg, nil, a.logger, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			a.logger.Error("engine close failed", zap.Error(err))
		}
	}()

	// Initial sweep so the catalog is warm before anything asks for it.
	if _, err := engine.DiscoverAll(ctx, true); err != nil {
		a.logger.Warn("initial discovery failed", zap.Error(err))
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		engine.monitor.Run(groupCtx, cfg.HealthInterval)
		return nil
	})

	watcher := config.NewWatcher(loader, serve.ConfigPath, func(next config.Config) {
		if err := engine.ApplyConfig(next); err != nil {
			a.logger.Error("apply reloaded config failed", zap.Error(err))
		}
	}, a.logger)
	group.Go(func() error {
		watcher.Run(groupCtx)
		return nil
	})

	group.Go(func() error {
		return telemetry.StartHTTPServer(groupCtx, telemetry.HTTPServerOptions{
			Addr:          cfg.Observability.ListenAddress,
			EnableMetrics: cfg.Observability.EnableMetrics,
			EnableHealthz: true,
			Health:        engine.registry,
			Registry:      prometheus.DefaultGatherer,
		}, a.logger)
	})

	a.logger.Info("engine started",
		zap.Int("servers", len(cfg.Servers)),
		zap.Duration("healthInterval", cfg.HealthInterval),
	)
	return group.Wait()
}

// Validate loads and validates the configuration without starting
// anything.
func (a *Application) Validate(_ context.Context, validate ValidateConfig) error {
	loader := config.NewLoader(a.logger)
	cfg, err := loader.Load(validate.ConfigPath)
	if err != nil {
		return err
	}
	a.logger.Info("config valid",
		zap.Int("servers", len(cfg.Servers)),
		zap.String("observability", cfg.Observability.ListenAddress),
	)
	return nil
}

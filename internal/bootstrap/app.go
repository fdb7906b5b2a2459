package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"querygate/internal/catalog"
	"querygate/internal/config"
	"querygate/internal/database"
	"querygate/internal/dispatch"
	"querygate/internal/metrics"
	"querygate/internal/validation"
	"querygate/interfaces/http/rest"
)

// App wires the gateway together: store, snapshot holder, connection
// manager, dispatch engine, collector and router. Dependencies are
// constructed by hand in dependency order.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	store     catalog.Store
	holder    *catalog.Holder
	manager   *database.Manager
	collector *metrics.Collector
	sink      metrics.Sink
	engine    *dispatch.Engine
	router    *rest.Router
	server    *http.Server
	watcher   *config.Watcher
}

// New builds the application. The catalogue is loaded and database pools
// are built before this returns; a degraded database never fails startup.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{cfg: cfg, logger: logger}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	app.store = store

	snap, err := store.LoadAll()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load catalogue: %w", err)
	}
	app.holder = catalog.NewHolder(snap)

	app.manager = database.NewManager(logger)
	app.manager.Build(ctx, snap)

	app.sink = openSink(cfg, logger)
	app.collector = metrics.NewCollector(metrics.CollectorConfig{
		Enabled:      cfg.MetricsEnabled,
		SampleRate:   cfg.MetricsSamplingRate,
		AsyncSave:    cfg.MetricsAsyncSave,
		ExcludePaths: cfg.MetricsExcludePaths,
		SaveTimeout:  metrics.DefaultCollectorConfig().SaveTimeout,
	}, metrics.NewRegistry(), app.sink, logger)

	executor := dispatch.NewExecutor(app.manager, logger)
	app.engine = dispatch.NewEngine(app.holder, executor, logger)

	app.router = rest.NewRouter(
		app.holder, app.manager, app.store, app.engine, app.collector,
		app.Reload, cfg.EnableCORS, logger,
	)
	app.router.Rebind(snap)

	app.server = &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      app.router.Setup(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return app, nil
}

func openStore(cfg *config.Config) (catalog.Store, error) {
	switch cfg.StoreProvider {
	case config.StoreSQL:
		store, err := catalog.NewSQLStore(cfg.StoreDriver, cfg.StoreDSN)
		if err != nil {
			return nil, fmt.Errorf("open sql catalogue store: %w", err)
		}
		return store, nil
	default:
		store, err := catalog.NewFileStore(cfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("open catalogue file %s: %w", cfg.ConfigPath, err)
		}
		return store, nil
	}
}

func openSink(cfg *config.Config, logger *zap.Logger) metrics.Sink {
	if !cfg.MetricsEnabled || cfg.MetricsSink != config.SinkSQL {
		return metrics.NoopSink{}
	}
	sink, err := metrics.NewSQLSink(cfg.SinkDriver(), cfg.SinkDSN())
	if err != nil {
		logger.Warn("metrics sink unavailable, falling back to noop", zap.Error(err))
		return metrics.NoopSink{}
	}
	return sink
}

// Validate runs both validation phases against the current snapshot and
// reports whether the catalogue passed.
func (a *App) Validate(ctx context.Context) (*validation.Report, *validation.Report, bool) {
	v := validation.New(a.manager, a.logger)
	phaseA, phaseB := v.Run(ctx, a.holder.Current())
	return phaseA, phaseB, phaseA.OK() && phaseB.OK()
}

// Reload re-reads the catalogue from the store, validates it, rebuilds
// pools and swaps the snapshot and routes. A catalogue that fails
// structural validation is rejected and the current snapshot stays live.
// Requests in flight keep the old snapshot either way.
func (a *App) Reload(ctx context.Context) error {
	if fs, ok := a.store.(*catalog.FileStore); ok {
		if err := fs.Reload(); err != nil {
			return fmt.Errorf("reload catalogue file: %w", err)
		}
	}

	snap, err := a.store.LoadAll()
	if err != nil {
		return fmt.Errorf("load catalogue: %w", err)
	}

	// A structurally broken catalogue never replaces a working one.
	if report := validation.New(a.manager, a.logger).ValidateCatalogue(snap); !report.OK() {
		for _, line := range report.Errors {
			a.logger.Error("catalogue rejected", zap.String("error", line))
		}
		return fmt.Errorf("catalogue validation failed with %d error(s)", len(report.Errors))
	}

	a.manager.Build(ctx, snap)
	a.holder.Swap(snap)
	a.router.Rebind(snap)

	a.logger.Info("catalogue reloaded",
		zap.Int("databases", len(snap.Databases)),
		zap.Int("queries", len(snap.Queries)),
		zap.Int("endpoints", len(snap.Endpoints)))
	return nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully:
// stop accepting, drain in-flight requests, drain metric writes, close
// pools and the store.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.WatchConfig && a.cfg.StoreProvider == config.StoreFile {
		watcher, err := config.NewWatcher(a.cfg.ConfigPath, func() {
			reloadCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := a.Reload(reloadCtx); err != nil {
				a.logger.Error("automatic reload failed", zap.Error(err))
			}
		}, a.logger)
		if err != nil {
			a.logger.Warn("config watcher unavailable", zap.Error(err))
		} else {
			a.watcher = watcher
			watcher.Start()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", zap.String("address", a.cfg.ServerAddress))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.Close()
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down", zap.Duration("grace", a.cfg.ShutdownGracePeriod))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("forced shutdown", zap.Error(err))
	}
	if err := a.engine.Drain(shutdownCtx); err != nil {
		a.logger.Warn("async dispatch drain incomplete", zap.Error(err))
	}
	if err := a.collector.Drain(shutdownCtx); err != nil {
		a.logger.Warn("metric drain incomplete", zap.Error(err))
	}
	a.Close()
	a.logger.Info("shutdown complete")
	return nil
}

// Close releases everything the app holds. Safe after Run returns.
func (a *App) Close() {
	if a.watcher != nil {
		a.watcher.Stop()
		a.watcher = nil
	}
	if a.sink != nil {
		a.sink.Close()
	}
	a.manager.Close()
	a.store.Close()
}

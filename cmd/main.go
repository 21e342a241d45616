package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/toprank/internal/adapters/http/api"
	"github.com/okian/toprank/internal/adapters/http/swagger"
	"github.com/okian/toprank/internal/adapters/repository"
	"github.com/okian/toprank/internal/adapters/repository/sqlstore"
	app "github.com/okian/toprank/internal/app"
	"github.com/okian/toprank/internal/config"
	"github.com/okian/toprank/pkg/logger"
	"github.com/okian/toprank/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 15 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.InitWith(os.Stdout, logger.Format(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	_ = logger.SetLevelString(cfg.LogLevel)
	loggerInstance := logger.Get()

	if err := run(ctx, cfg, loggerInstance); err != nil {
		loggerInstance.Error(ctx, "server exited", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

// run wires the store, service and HTTP server, and blocks until ctx ends.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	svc, err := newService(cfg, store, log)
	if err != nil {
		_ = store.Close()
		return err
	}
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, cfg, svc, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// openStore selects the persistence backend from configuration.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory, "":
		return repository.NewMemoryStore(), nil
	case config.DriverSQLite, config.DriverPostgres:
		store, err := sqlstore.Open(ctx, cfg.StoreDriver, cfg.StoreDSN)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: store driver %q", config.ErrInvalidConfig, cfg.StoreDriver)
	}
}

// newService builds the ranking service from configuration.
func newService(cfg *config.Config, store repository.Store, log logger.Logger) (*app.Service, error) {
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}
	if len(catalog) == 0 {
		catalog = app.DefaultProblems()
	}
	return app.New(
		app.WithLogger(log),
		app.WithStore(store),
		app.WithProblems(catalog...),
		app.WithUsers(cfg.SeedUsers()...),
		app.WithContests(cfg.SeedContests()...),
		app.WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
		app.WithCrossDimensionLimit(cfg.CrossDimensionLimit),
		app.WithRefreshAllOverall(cfg.RefreshAllOverall),
		app.WithRebuildConcurrency(cfg.RebuildConcurrency),
	), nil
}

// newMux registers the docs and business API routes.
func newMux(ctx context.Context, cfg *config.Config, svc *app.Service, log logger.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc,
		api.WithLogger(log.Named("api")),
		api.WithSubmitRateLimit(cfg.SubmitRatePerSec, cfg.SubmitBurst),
		api.WithIdempotencyKeys(cfg.IdempotencyKeys),
	).Register(mux)
	return mux
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes gauges derived from service stats.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// GetStats refreshes the problems gauge as a side effect.
			_ = svc.GetStats(ctx)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		// Calculate average GC pause time
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

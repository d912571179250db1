package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/localfinder/internal/config"
	"github.com/JonMunkholm/localfinder/internal/core"
	"github.com/JonMunkholm/localfinder/internal/geo"
	"github.com/JonMunkholm/localfinder/internal/logging"
	"github.com/JonMunkholm/localfinder/internal/metrics"
	"github.com/JonMunkholm/localfinder/internal/store"
	"github.com/JonMunkholm/localfinder/internal/web"
)

// backend is what main needs from a store implementation.
type backend interface {
	core.Store
	core.AuditSink
	Ping(ctx context.Context) error
	Close()
}

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"geo_enabled", cfg.Geo.Enabled,
	)

	if err := run(cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// run serves until a shutdown signal has been fully handled. Deferred
// closes run only after the server and running imports have stopped.
func run(cfg *config.Config) error {
	ctx := context.Background()

	db, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var importer *core.Importer
	prom := metrics.New(reg, func() int { return importer.Gate().ActiveCount() })
	importer = core.NewImporter(db, core.ImporterOptions{
		RowDelay:      cfg.Import.RowDelay,
		MaxConcurrent: cfg.Import.MaxConcurrent,
		GateWait:      cfg.Import.GateWait,
		Audit:         db,
		Metrics:       prom,
	})

	locator, err := newLocator(cfg.Geo)
	if err != nil {
		return err
	}
	catalogs, err := core.OpenCatalogs(db, core.CatalogOptions{
		Locator:       locator,
		LocateTimeout: cfg.Geo.Timeout,
		Audit:         db,
		Metrics:       prom,
	})
	if err != nil {
		return fmt.Errorf("open catalogs: %w", err)
	}
	defer func() {
		for _, c := range catalogs {
			c.Close()
		}
	}()

	for id, c := range catalogs {
		slog.Debug("category opened", "category", id, "kind", c.Category().Kind)
	}
	slog.Info("catalogs opened", "count", len(catalogs))

	server := web.NewServer(cfg, web.Dependencies{
		Catalogs: catalogs,
		Importer: importer,
		Audit:    db,
		Ping:     db.Ping,
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	})

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop running commits after their current row
		if status := importer.Gate().Status(); status.Active > 0 {
			slog.Info("cancelling running imports", "active", status.Active)
		}
		if err := importer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("imports did not stop in time", "error", err)
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	<-done
	slog.Info("server stopped")
	return nil
}

// newLocator picks the position source for manual creates. A fixed
// position wins over the HTTP lookup; nil disables stamping.
func newLocator(cfg config.GeoConfig) (core.Locator, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.FixedPosition != "" {
		fixed, err := geo.ParseFixed(cfg.FixedPosition)
		if err != nil {
			return nil, fmt.Errorf("GEO_FIXED_POSITION: %w", err)
		}
		slog.Info("using fixed position", "lat", fixed.Lat, "lng", fixed.Lng)
		return fixed, nil
	}
	return geo.NewHTTPLocator(cfg.URL, cfg.Timeout), nil
}

// openStore connects the configured record store.
func openStore(ctx context.Context, cfg *config.Config) (backend, error) {
	if !cfg.UsesPostgres() {
		slog.Info("using in-memory store")
		return store.NewMemory(), nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	pg, err := store.NewPostgres(ctx, pool, store.PostgresOptions{SnapshotTimeout: cfg.Store.SnapshotTimeout})
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &pgBackend{Postgres: pg, pool: pool}, nil
}

// pgBackend closes the pool after the store.
type pgBackend struct {
	*store.Postgres
	pool *pgxpool.Pool
}

func (b *pgBackend) Close() {
	b.Postgres.Close()
	b.pool.Close()
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinware/clinic-backoffice/internal/api"
	"github.com/clinware/clinic-backoffice/internal/audit"
	"github.com/clinware/clinic-backoffice/internal/billing"
	"github.com/clinware/clinic-backoffice/internal/catalog"
	"github.com/clinware/clinic-backoffice/internal/config"
	"github.com/clinware/clinic-backoffice/internal/db"
	"github.com/clinware/clinic-backoffice/internal/directory"
	"github.com/clinware/clinic-backoffice/internal/observability/metrics"
	"github.com/clinware/clinic-backoffice/internal/redisclient"
	"github.com/clinware/clinic-backoffice/internal/scheduling"
	"github.com/clinware/clinic-backoffice/internal/visit"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("config load error")
	}

	log := newLogger(cfg)
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Str("version", version).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	audits := audit.NewPgSink(pgPool, log)
	m := metrics.New(nil)

	patients := directory.NewService(directory.NewPgRepository(pgPool), audits, log)
	appointments := scheduling.NewService(scheduling.NewPgRepository(pgPool), locker, audits, log)
	visits := visit.NewService(visit.NewPgRepository(pgPool), appointments, audits, log)
	invoices := billing.NewService(billing.NewPgRepository(pgPool), locker, audits, log)

	router := api.NewRouter(api.RouterConfig{
		Patients:     patients,
		Appointments: appointments,
		Visits:       visits,
		Invoices:     invoices,
		Catalog:      catalog.NewPgRepository(pgPool),
		Metrics:      m,
		Logger:       log,
		PgPool:       pgPool,
		Redis:        rdb,
		JWTSecret:    cfg.JWTSecret,
		Env:          cfg.Env,
		Version:      version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	log.Info().Msg("api-server stopped")
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stderr)
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	return logger.Level(level).With().Timestamp().Str("service", "clinic-backoffice").Logger()
}

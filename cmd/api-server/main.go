package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/api"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/appointment"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/config"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/db"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/logging"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/medicalrecord"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/metrics"
	redisclient "github.com/hackgods/clinic-appointment-lifecycle/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("prod", "info")
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "api-server").Logger()
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.WithApplicationName("api-server"), db.WithMaxConns(cfg.PostgresMaxConns))
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(rootCtx, 30*time.Second)
	err = db.Migrate(migrateCtx, pgPool)
	cancelMigrate()
	if err != nil {
		logger.Fatal().Err(err).Msg("schema migration failed")
	}
	logger.Info().Msg("connected to Postgres")

	// Redis is optional. Without it the version check alone guards writers.
	var rdb *redis.Client
	locker := redisclient.NopLocker()
	if cfg.RedisAddr != "" {
		redisCtx, cancelRedis := context.WithTimeout(rootCtx, 5*time.Second)
		rdb, err = redisclient.NewRedisClient(redisCtx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		cancelRedis()
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, appointment lock disabled")
			rdb = nil
		} else {
			locker = redisclient.NewRedisAppointmentLocker(rdb, cfg.LockTTL)
			logger.Info().Msg("connected to Redis")
			defer func() {
				if err := rdb.Close(); err != nil {
					logger.Error().Err(err).Msg("error closing redis")
				}
			}()
		}
	}

	collector := metrics.NewCollector("clinic")

	records := medicalrecord.NewPgRepository(pgPool)
	checker := medicalrecord.NewBreakerChecker(records, medicalrecord.BreakerSettings{
		MaxFailures: cfg.BreakerMaxFailures,
		Timeout:     cfg.BreakerTimeout,
	}, logger)

	repo := appointment.NewPgRepository(pgPool)
	engine := appointment.NewEngine(repo, checker, locker,
		appointment.WithLogger(logger.With().Str("component", "lifecycle").Logger()),
		appointment.WithRecorder(collector),
		appointment.WithDoctorDirectory(repo),
	)

	router := api.NewRouter(api.RouterConfig{
		Engine:  engine,
		Records: records,
		Breaker: checker,
		PgPool:  pgPool,
		Redis:   rdb,
		Metrics: collector,
		Logger:  logger,
		Env:     cfg.Env,
		Version: cfg.Version,
	})

	srv := newHTTPServer(cfg, router)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-rootCtx.Done():
	case err := <-serverErr:
		logger.Error().Err(err).Msg("http server error")
		stop()
	}

	logger.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		os.Exit(1)
	}
}

func newHTTPServer(cfg config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

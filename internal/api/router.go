package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/metrics"
)

type RouterConfig struct {
	Engine  LifecycleEngine
	Records MedicalRecords
	Breaker BreakerStater
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Metrics *metrics.Collector
	Logger  zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Recovery sits inside logging and metrics so a panicking request is
	// still logged and counted as a 500.
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics))
	}
	r.Use(RecoveryMiddleware(cfg.Logger))

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Breaker, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", createAppointmentHandler(cfg.Engine))

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", getAppointmentHandler(cfg.Engine))
			r.Post("/transitions", applyTransitionHandler(cfg.Engine))
			r.Post("/revert", revertHandler(cfg.Engine))
			r.Get("/revert/preview", previewRevertHandler(cfg.Engine))
			r.Put("/doctor", assignDoctorHandler(cfg.Engine))
			r.Get("/history", historyHandler(cfg.Engine))
			r.Get("/history/undo-candidate", undoCandidateHandler(cfg.Engine))

			if cfg.Records != nil {
				r.Post("/medical-record", createMedicalRecordHandler(cfg.Records))
				r.Get("/medical-record", getMedicalRecordHandler(cfg.Records))
			}
		})
	})

	return r
}

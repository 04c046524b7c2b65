package main

import (
	"context"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/appointment"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/config"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/db"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/logging"
)

const (
	clinicianCount   = 100
	patientCount     = 9000
	appointmentCount = 2000
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("prod", "info")
		bootLog.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "seed").Logger()
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.WithApplicationName("seed"))
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	clinicians, err := seedClinicians(context.Background(), pool, faker, logger, clinicianCount)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed clinicians")
	}
	patients, err := seedPatients(context.Background(), pool, faker, logger, patientCount)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	repo := appointment.NewPgRepository(pool)
	engine := appointment.NewEngine(repo, nil, nil, appointment.WithLogger(logger))
	if err := seedAppointments(context.Background(), engine, faker, logger, patients, clinicians, appointmentCount); err != nil {
		logger.Fatal().Err(err).Msg("seed appointments")
	}

	logger.Info().Msg("seed complete")
}

func seedClinicians(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, logger zerolog.Logger, count int) ([]uuid.UUID, error) {
	logger.Info().Int("count", count).Msg("seeding clinicians")

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		spec := specialties[faker.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO clinicians (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, "Dr. "+faker.Name(), spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	logger.Info().Msg("clinicians seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, logger zerolog.Logger, count int) ([]uuid.UUID, error) {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, faker.Name(), faker.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		logger.Info().Int("seeded", end).Int("total", count).Msg("patients seeded")
	}

	return ids, nil
}

// seedAppointments goes through the engine so every appointment starts with
// its opening ledger entry and created event.
func seedAppointments(ctx context.Context, engine *appointment.Engine, faker *gofakeit.Faker, logger zerolog.Logger, patients, clinicians []uuid.UUID, count int) error {
	logger.Info().Int("count", count).Msg("seeding appointments")

	for i := 0; i < count; i++ {
		in := newAppointmentInput(faker, patients, clinicians)
		if _, err := engine.CreateAppointment(ctx, in); err != nil {
			return err
		}
	}

	logger.Info().Msg("appointments seeded")
	return nil
}

func newAppointmentInput(faker *gofakeit.Faker, patients, clinicians []uuid.UUID) appointment.NewAppointment {
	in := appointment.NewAppointment{
		PatientID: patients[faker.Number(0, len(patients)-1)],
		ServiceID: uuid.New(),
		ActorID:   "seed",
	}
	// roughly half start with a doctor already assigned
	if len(clinicians) > 0 && faker.Bool() {
		doc := clinicians[faker.Number(0, len(clinicians)-1)]
		in.DoctorID = &doc
	}
	return in
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/config"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/db"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/logging"
)

type SimConfig struct {
	APIBaseURL       string
	Duration         time.Duration
	Workers          int
	TransitionRatio  float64
	RevertRatio      float64
	DoctorRatio      float64
	ReadRatio        float64
	AppointmentLimit int
	PostgresDSN      string
}

// DataPool holds the ids workers pick from. Appointments are shared on purpose
// so workers race each other on the same rows.
type DataPool struct {
	Appointments []uuid.UUID
	Clinicians   []uuid.UUID
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]

	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Transition   OperationMetrics
	Revert       OperationMetrics
	AssignDoctor OperationMetrics
	ReadByID     OperationMetrics
	History      OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     zerolog.Logger
}

type appointmentView struct {
	ID                 uuid.UUID `json:"id"`
	Status             string    `json:"status"`
	AllowedTransitions []string  `json:"allowed_transitions"`
	CanAssignDoctor    bool      `json:"can_assign_doctor"`
}

type historyEntryView struct {
	ID uuid.UUID `json:"id"`
}

func main() {
	logger := logging.New(getEnv("APP_ENV", "dev"), getEnv("LOG_LEVEL", "info")).With().Str("service", "simulate").Logger()
	logger.Info().Msg("simulator starting")

	cfg := loadConfig(logger)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("transition", cfg.TransitionRatio).
		Float64("revert", cfg.RevertRatio).
		Float64("doctor", cfg.DoctorRatio).
		Float64("read", cfg.ReadRatio).
		Msg("config")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.WithApplicationName("simulate"))
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}

	logger.Info().
		Int("appointments", len(dataPool.Appointments)).
		Int("clinicians", len(dataPool.Clinicians)).
		Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: logger,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig(logger zerolog.Logger) SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load base config")
	}

	cfg := SimConfig{
		APIBaseURL:       getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:         getDuration("SIM_DURATION", 30*time.Second),
		Workers:          getInt("SIM_WORKERS", 10),
		TransitionRatio:  getFloat("SIM_TRANSITION_RATIO", 0.5),
		RevertRatio:      getFloat("SIM_REVERT_RATIO", 0.15),
		DoctorRatio:      getFloat("SIM_DOCTOR_RATIO", 0.1),
		ReadRatio:        getFloat("SIM_READ_RATIO", 0.25),
		AppointmentLimit: getInt("SIM_APPOINTMENT_LIMIT", 200),
		PostgresDSN:      baseCfg.PostgresDSN,
	}

	total := cfg.TransitionRatio + cfg.RevertRatio + cfg.DoctorRatio + cfg.ReadRatio
	if total > 0 {
		cfg.TransitionRatio /= total
		cfg.RevertRatio /= total
		cfg.DoctorRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	// Non-terminal appointments only; terminal ones have nowhere to go.
	rows, err := pool.Query(ctx, `
		SELECT id FROM appointments
		WHERE status NOT IN ('cancelled', 'no_show')
		ORDER BY created_at DESC
		LIMIT $1
	`, cfg.AppointmentLimit)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Appointments = append(dataPool.Appointments, id)
	}
	rows.Close()

	rows, err = pool.Query(ctx, `SELECT id FROM clinicians LIMIT 100`)
	if err != nil {
		return nil, fmt.Errorf("load clinicians: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Clinicians = append(dataPool.Clinicians, id)
	}
	rows.Close()

	if len(dataPool.Appointments) == 0 {
		return nil, fmt.Errorf("no appointments loaded, run seed first")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	actor := fmt.Sprintf("sim-worker-%d", workerID)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			apptID := s.pool.Appointments[rng.Intn(len(s.pool.Appointments))]

			r := rng.Float64()
			switch {
			case r < s.config.TransitionRatio:
				s.doTransition(ctx, rng, actor, apptID)
			case r < s.config.TransitionRatio+s.config.RevertRatio:
				s.doRevert(ctx, actor, apptID)
			case r < s.config.TransitionRatio+s.config.RevertRatio+s.config.DoctorRatio:
				s.doAssignDoctor(ctx, rng, actor, apptID)
			default:
				if rng.Intn(2) == 0 {
					s.doReadByID(ctx, apptID)
				} else {
					s.doHistory(ctx, apptID)
				}
			}
		}
	}
}

// doTransition reads the appointment and asks for one of its allowed next
// statuses. Another worker may move it in between, which shows up as a conflict.
func (s *Simulator) doTransition(ctx context.Context, rng *rand.Rand, actor string, apptID uuid.UUID) {
	view, ok := s.getAppointment(ctx, apptID)
	if !ok || len(view.AllowedTransitions) == 0 {
		return
	}

	next := view.AllowedTransitions[rng.Intn(len(view.AllowedTransitions))]
	body := map[string]string{"status": next}
	if next == "cancelled" || next == "no_show" {
		body["reason"] = "simulated " + next
	}

	start := time.Now()
	status, _, err := s.send(ctx, http.MethodPost, fmt.Sprintf("/appointments/%s/transitions", apptID), actor, body)
	s.metrics.Transition.Record(time.Since(start), err == nil && status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doRevert(ctx context.Context, actor string, apptID uuid.UUID) {
	status, raw, err := s.send(ctx, http.MethodGet, fmt.Sprintf("/appointments/%s/history/undo-candidate", apptID), actor, nil)
	if err != nil || status != http.StatusOK {
		return
	}
	var candidate historyEntryView
	if err := json.Unmarshal(raw, &candidate); err != nil {
		return
	}

	start := time.Now()
	status, _, err = s.send(ctx, http.MethodPost, fmt.Sprintf("/appointments/%s/revert", apptID), actor, map[string]string{
		"history_entry_id": candidate.ID.String(),
		"reason":           "simulated front desk correction",
	})
	s.metrics.Revert.Record(time.Since(start), err == nil && status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doAssignDoctor(ctx context.Context, rng *rand.Rand, actor string, apptID uuid.UUID) {
	if len(s.pool.Clinicians) == 0 {
		return
	}
	doc := s.pool.Clinicians[rng.Intn(len(s.pool.Clinicians))].String()

	start := time.Now()
	status, _, err := s.send(ctx, http.MethodPut, fmt.Sprintf("/appointments/%s/doctor", apptID), actor, map[string]*string{
		"doctor_id": &doc,
	})
	s.metrics.AssignDoctor.Record(time.Since(start), err == nil && status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doReadByID(ctx context.Context, apptID uuid.UUID) {
	start := time.Now()
	_, ok := s.getAppointment(ctx, apptID)
	s.metrics.ReadByID.Record(time.Since(start), ok, false)
}

func (s *Simulator) doHistory(ctx context.Context, apptID uuid.UUID) {
	start := time.Now()
	status, _, err := s.send(ctx, http.MethodGet, fmt.Sprintf("/appointments/%s/history", apptID), "", nil)
	s.metrics.History.Record(time.Since(start), err == nil && status == http.StatusOK, false)
}

func (s *Simulator) getAppointment(ctx context.Context, apptID uuid.UUID) (appointmentView, bool) {
	var view appointmentView
	status, raw, err := s.send(ctx, http.MethodGet, fmt.Sprintf("/appointments/%s", apptID), "", nil)
	if err != nil || status != http.StatusOK {
		return view, false
	}
	if err := json.Unmarshal(raw, &view); err != nil {
		return view, false
	}
	return view, true
}

func (s *Simulator) send(ctx context.Context, method, path, actor string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set("X-Actor-ID", actor)
	}
	if method != http.MethodGet {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	return resp.StatusCode, raw, err
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Transition", &s.metrics.Transition)
	printOperationReport("Revert", &s.metrics.Revert)
	printOperationReport("Assign doctor", &s.metrics.AssignDoctor)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("History", &s.metrics.History)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

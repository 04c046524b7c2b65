package events

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the relay uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type RelayConfig struct {
	Topic     string
	BatchSize int
	Interval  time.Duration
}

// Relay moves lifecycle events from the outbox table to Kafka, keyed by
// appointment id so consumers see one appointment's events in order.
type Relay struct {
	store  Store
	writer MessageWriter
	cfg    RelayConfig
	log    zerolog.Logger
}

func NewRelay(store Store, writer MessageWriter, cfg RelayConfig, log zerolog.Logger) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	return &Relay{store: store, writer: writer, cfg: cfg, log: log}
}

// NewKafkaWriter builds a writer for a comma separated broker list.
func NewKafkaWriter(brokers string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(SplitBrokers(brokers)...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

func SplitBrokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Run publishes once at startup and then on every tick until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	r.runOnce(ctx)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("shutdown signal received, stopping event relay")
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Relay) runOnce(ctx context.Context) {
	start := time.Now()
	n, err := r.PublishOnce(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("event relay run failed")
		return
	}
	if n > 0 {
		r.log.Info().Int("events", n).Dur("took", time.Since(start)).Msg("events published")
	}
}

// PublishOnce drains up to one batch and returns how many events were published.
func (r *Relay) PublishOnce(ctx context.Context) (int, error) {
	return r.store.PublishBatch(ctx, r.cfg.BatchSize, func(ctx context.Context, batch []Event) error {
		msgs := make([]kafka.Message, 0, len(batch))
		for _, ev := range batch {
			msgs = append(msgs, r.message(ev))
		}
		return r.writer.WriteMessages(ctx, msgs...)
	})
}

func (r *Relay) message(ev Event) kafka.Message {
	var key []byte
	if ev.AppointmentID != nil {
		key = []byte(ev.AppointmentID.String())
	}
	return kafka.Message{
		Topic: r.cfg.Topic,
		Key:   key,
		Value: ev.Payload,
		Time:  ev.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(strconv.FormatInt(ev.ID, 10))},
			{Key: "event_type", Value: []byte(ev.EventType)},
		},
	}
}

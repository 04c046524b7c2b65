package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type memStore struct {
	pending   []Event
	published []Event
}

func (s *memStore) PublishBatch(ctx context.Context, limit int, fn func(ctx context.Context, batch []Event) error) (int, error) {
	n := limit
	if n > len(s.pending) {
		n = len(s.pending)
	}
	if n == 0 {
		return 0, nil
	}
	batch := s.pending[:n]
	if err := fn(ctx, batch); err != nil {
		return 0, err
	}
	s.published = append(s.published, batch...)
	s.pending = s.pending[n:]
	return n, nil
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func newEvents(n int) []Event {
	appt := uuid.New()
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Event{
			ID:            int64(i + 1),
			EventType:     "APPOINTMENT_STATUS_CHANGED",
			AppointmentID: &appt,
			Payload:       []byte(`{"to_status":"scheduled"}`),
			CreatedAt:     time.Now(),
		})
	}
	return out
}

func TestRelay_PublishOnce(t *testing.T) {
	store := &memStore{pending: newEvents(5)}
	writer := &fakeWriter{}
	r := NewRelay(store, writer, RelayConfig{Topic: "appointment.lifecycle", BatchSize: 3}, zerolog.Nop())

	n, err := r.PublishOnce(context.Background())
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if n != 3 || len(writer.msgs) != 3 {
		t.Fatalf("published %d events, wrote %d messages, want 3", n, len(writer.msgs))
	}

	msg := writer.msgs[0]
	if msg.Topic != "appointment.lifecycle" {
		t.Errorf("topic = %q", msg.Topic)
	}
	if string(msg.Key) != store.published[0].AppointmentID.String() {
		t.Errorf("key = %q, want appointment id", msg.Key)
	}
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["event_id"] != "1" || headers["event_type"] != "APPOINTMENT_STATUS_CHANGED" {
		t.Errorf("headers = %v", headers)
	}

	n, _ = r.PublishOnce(context.Background())
	if n != 2 || len(store.pending) != 0 {
		t.Errorf("second run published %d, %d left", n, len(store.pending))
	}
}

func TestRelay_WriterFailureKeepsEventsPending(t *testing.T) {
	store := &memStore{pending: newEvents(2)}
	boom := errors.New("broker unavailable")
	r := NewRelay(store, &fakeWriter{err: boom}, RelayConfig{Topic: "t"}, zerolog.Nop())

	if _, err := r.PublishOnce(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected writer error, got %v", err)
	}
	if len(store.pending) != 2 || len(store.published) != 0 {
		t.Errorf("events marked published after a failed write")
	}
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	store := &memStore{pending: newEvents(1)}
	writer := &fakeWriter{}
	r := NewRelay(store, writer, RelayConfig{Topic: "t", Interval: 10 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop after cancel")
	}
	if len(writer.msgs) != 1 {
		t.Errorf("wrote %d messages, want 1", len(writer.msgs))
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Errorf("SplitBrokers = %v", got)
	}
	if SplitBrokers("") != nil {
		t.Error("empty broker list should be nil")
	}
}

package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestLockKey(t *testing.T) {
	id := uuid.MustParse("7f1c2a9e-2b1d-4f7a-9a43-3c1d2e5f6a7b")
	if got := lockKey(id); got != "lock:appointment:7f1c2a9e-2b1d-4f7a-9a43-3c1d2e5f6a7b" {
		t.Errorf("lockKey = %q", got)
	}
}

func TestNopLocker(t *testing.T) {
	called := false
	boom := errors.New("boom")

	err := NopLocker().WithAppointmentLock(context.Background(), uuid.New(), func(ctx context.Context) error {
		called = true
		return boom
	})
	if !called {
		t.Fatal("fn not called")
	}
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want fn error", err)
	}
}

func TestRedisLocker_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	locker := NewRedisAppointmentLocker(client, time.Second)
	called := false
	err := locker.WithAppointmentLock(context.Background(), uuid.New(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected an acquire error")
	}
	if errors.Is(err, ErrLockNotAcquired) {
		t.Error("a connection failure is not lock contention")
	}
	if called {
		t.Error("fn ran without the lock")
	}
}

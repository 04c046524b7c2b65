package redisclient

import (
	"context"
	"testing"
)

func TestOptions_DefaultPoolSize(t *testing.T) {
	got := Options{Addr: "cache:6379"}.redisOptions()
	if got.PoolSize != 20 {
		t.Errorf("pool size = %d, want 20", got.PoolSize)
	}
	if got.Addr != "cache:6379" {
		t.Errorf("addr = %q", got.Addr)
	}

	got = Options{Addr: "cache:6379", PoolSize: 5}.redisOptions()
	if got.PoolSize != 5 {
		t.Errorf("pool size = %d, want 5", got.PoolSize)
	}
}

func TestNewRedisClient_EmptyAddr(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), Options{}); err == nil {
		t.Fatal("expected error for empty addr")
	}
}

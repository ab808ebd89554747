package status

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Runs against a real server when REDIS_TEST_ADDR is set.
func newTestRedis(t *testing.T) (redis.UniversalClient, string) {
	t.Helper()

	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not reachable: %v", err)
	}

	return client, "opp-comb-test:" + uuid.NewString() + ":"
}

func TestRedisStore(t *testing.T) {
	client, prefix := newTestRedis(t)
	store := NewRedisStore(client, prefix, time.Minute)
	ctx := context.Background()

	report := &RunReport{ID: "run-1", Status: RunRunning, StartedAt: time.Now().UTC()}
	if err := store.Save(ctx, report); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	report.Status = RunCompleted
	if err := store.Save(ctx, report); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	latest, err := store.Latest(ctx)
	if err != nil || latest == nil || latest.Status != RunCompleted {
		t.Fatalf("Expected completed latest report, got %v (err %v)", latest, err)
	}

	recent, err := store.Recent(ctx, 10)
	if err != nil || len(recent) != 1 {
		t.Errorf("Expected 1 recent report, got %d (err %v)", len(recent), err)
	}

	if r, err := store.Get(ctx, "missing"); err != nil || r != nil {
		t.Errorf("Expected (nil, nil) for missing report, got (%v, %v)", r, err)
	}
}

func TestRedisLock(t *testing.T) {
	client, prefix := newTestRedis(t)
	ctx := context.Background()

	first := NewRedisLock(client, prefix, time.Minute)
	second := NewRedisLock(client, prefix, time.Minute)

	if ok, err := first.TryLock(ctx); err != nil || !ok {
		t.Fatalf("Expected first lock to succeed, got %v (err %v)", ok, err)
	}
	if ok, _ := second.TryLock(ctx); ok {
		t.Fatal("Expected second instance to be locked out")
	}

	// Only the holder can release.
	second.Unlock(ctx)
	if ok, _ := second.TryLock(ctx); ok {
		t.Fatal("Expected lock to survive a foreign unlock")
	}

	if err := first.Unlock(ctx); err != nil {
		t.Fatalf("Failed to unlock: %v", err)
	}
	if ok, _ := second.TryLock(ctx); !ok {
		t.Error("Expected lock to be free after holder unlocked")
	}
	second.Unlock(ctx)
}

func TestRedisLockRefresh(t *testing.T) {
	client, prefix := newTestRedis(t)
	ctx := context.Background()

	lock := NewRedisLock(client, prefix, 2*time.Second)
	if ok, err := lock.TryLock(ctx); err != nil || !ok {
		t.Fatalf("Expected lock to succeed, got %v (err %v)", ok, err)
	}
	defer lock.Unlock(ctx)

	if err := client.PExpire(ctx, prefix+"runs:lock", 100*time.Millisecond).Err(); err != nil {
		t.Fatalf("Failed to shorten ttl: %v", err)
	}
	if err := lock.Refresh(ctx); err != nil {
		t.Fatalf("Expected refresh to succeed, got %v", err)
	}

	ttl, err := client.PTTL(ctx, prefix+"runs:lock").Result()
	if err != nil {
		t.Fatalf("Failed to read ttl: %v", err)
	}
	if ttl < time.Second {
		t.Errorf("Expected ttl to be extended past 1s, got %v", ttl)
	}

	client.Del(ctx, prefix+"runs:lock")
	if err := lock.Refresh(ctx); !errors.Is(err, ErrLockLost) {
		t.Errorf("Expected ErrLockLost after the key vanished, got %v", err)
	}
}

package lock

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/kilang-desa-murni/crm/pkg/config"
	"github.com/kilang-desa-murni/crm/pkg/database"
	"github.com/kilang-desa-murni/crm/pkg/logger"
)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)

	parts := strings.Split(mr.Addr(), ":")
	port, _ := strconv.Atoi(parts[1])
	log := logger.New(logger.Config{Level: "error", Format: "json", TimeFormat: time.RFC3339})
	redisClient, err := database.NewRedis(&config.RedisConfig{Host: parts[0], Port: port}, log)
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() { _ = redisClient.Close() })

	return New(redisClient, log), mr
}

func TestAcquireAndRelease(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	h, err := svc.Acquire(ctx, "42", Options{Lease: time.Minute, MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !svc.IsLocked(ctx, "42") {
		t.Fatal("expected entity 42 to be locked")
	}

	h.Release(ctx)
	if svc.IsLocked(ctx, "42") {
		t.Fatal("expected entity 42 to be unlocked after Release")
	}
}

func TestAcquireFailsWhenAlreadyHeld(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	h1, err := svc.Acquire(ctx, "7", Options{Lease: time.Minute, MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer h1.Release(ctx)

	_, err = svc.Acquire(ctx, "7", Options{Lease: time.Minute, MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	if err == nil {
		t.Fatal("expected second Acquire to fail while the first holds the lock")
	}
}

func TestCalculateDelayBoundedByMax(t *testing.T) {
	svc, _ := newTestService(t)
	svc.rand = func() float64 { return 1.0 }

	for attempt := 0; attempt < 10; attempt++ {
		d := svc.calculateDelay(attempt, time.Second, 5*time.Second, true)
		if d < 0 {
			t.Fatalf("delay must be non-negative, got %v", d)
		}
		if d > 5*time.Second*3/2 {
			t.Fatalf("delay %v exceeds jittered max bound", d)
		}
	}
}

func TestRemainingLockTime(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	h, err := svc.Acquire(ctx, "99", Options{Lease: time.Minute, MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer h.Release(ctx)

	remaining, err := svc.RemainingLockTime(ctx, "99")
	if err != nil {
		t.Fatalf("RemainingLockTime: %v", err)
	}
	if remaining <= 0 || remaining > time.Minute {
		t.Fatalf("remaining = %v, want within (0, 1m]", remaining)
	}
}

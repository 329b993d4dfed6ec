package token

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

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)

	parts := strings.Split(mr.Addr(), ":")
	host := parts[0]
	port, _ := strconv.Atoi(parts[1])

	log := logger.New(logger.Config{Level: "error", Format: "json", TimeFormat: time.RFC3339})
	redisClient, err := database.NewRedis(&config.RedisConfig{
		Host: host,
		Port: port,
	}, log)
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() { _ = redisClient.Close() })

	cipher, err := NewCipher(testMasterKey())
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	return NewStore(redisClient, cipher, log), mr
}

func TestStoreSaveGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "tok-abc", "7", ProviderBitrix24, KindAccess, 0); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Get(ctx, "7", ProviderBitrix24, KindAccess)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "tok-abc" {
		t.Fatalf("got %q, want %q", got, "tok-abc")
	}
}

func TestStoreGetMissingReturnsEmpty(t *testing.T) {
	store, _ := newTestStore(t)
	got, err := store.Get(context.Background(), "nope", ProviderBitrix24, KindAccess)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty result for missing key, got %q", got)
	}
}

func TestStoreDefaultTTLs(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "access-val", "7", ProviderBitrix24, KindAccess, 0); err != nil {
		t.Fatalf("Save access: %v", err)
	}
	if err := store.Save(ctx, "refresh-val", "7", ProviderBitrix24, KindRefresh, 0); err != nil {
		t.Fatalf("Save refresh: %v", err)
	}

	accessKey := buildKey(KindAccess, "7", ProviderBitrix24)
	refreshKey := buildKey(KindRefresh, "7", ProviderBitrix24)

	if ttl := mr.TTL(accessKey); ttl != DefaultAccessTTL {
		t.Fatalf("access ttl = %v, want %v", ttl, DefaultAccessTTL)
	}
	if ttl := mr.TTL(refreshKey); ttl != DefaultRefreshTTL {
		t.Fatalf("refresh ttl = %v, want %v", ttl, DefaultRefreshTTL)
	}
}

func TestStoreDeleteAndExists(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "v", "7", ProviderBitrix24, KindAccess, time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}
	ok, err := store.Exists(ctx, "7", ProviderBitrix24, KindAccess)
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v; want true, nil", ok, err)
	}

	deleted, err := store.Delete(ctx, "7", ProviderBitrix24, KindAccess)
	if err != nil || !deleted {
		t.Fatalf("Delete = %v, %v; want true, nil", deleted, err)
	}

	deletedAgain, err := store.Delete(ctx, "7", ProviderBitrix24, KindAccess)
	if err != nil || deletedAgain {
		t.Fatalf("second Delete = %v, %v; want false, nil", deletedAgain, err)
	}
}

func TestStoreGetToleratesUndecryptableValue(t *testing.T) {
	store, mr := newTestStore(t)
	key := buildKey(KindAccess, "7", ProviderBitrix24)
	if err := mr.Set(key, `"not-valid-ciphertext"`); err != nil {
		t.Fatalf("mr.Set: %v", err)
	}
	got, err := store.Get(context.Background(), "7", ProviderBitrix24, KindAccess)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty result on undecryptable ciphertext, got %q", got)
	}
}

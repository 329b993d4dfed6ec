package bitrix

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/kilang-desa-murni/crm/internal/crmsync/token"
	pkgconfig "github.com/kilang-desa-murni/crm/pkg/config"
	"github.com/kilang-desa-murni/crm/pkg/database"
	"github.com/kilang-desa-murni/crm/pkg/logger"
	"github.com/kilang-desa-murni/crm/pkg/tracer"
)

func newTestClient(t *testing.T, portalURL string) (*Client, *token.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)

	log := logger.New(logger.Config{Level: "error", Format: "json", TimeFormat: time.RFC3339})

	parts := strings.Split(mr.Addr(), ":")
	port, _ := strconv.Atoi(parts[1])
	redisClient, err := database.NewRedis(&pkgconfig.RedisConfig{Host: parts[0], Port: port}, log)
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() { _ = redisClient.Close() })

	cipher, err := token.NewCipher([]byte("01234567890123456789012345678901")[:32])
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	store := token.NewStore(redisClient, cipher, log)

	tr, err := tracer.New(&pkgconfig.TracerConfig{Enabled: false, ServiceName: "bitrix-test"}, log)
	if err != nil {
		t.Fatalf("tracer.New: %v", err)
	}

	c := NewClient(ClientConfig{
		PortalURL:     portalURL,
		ClientID:      "id",
		ClientSecret:  "secret",
		RedirectURI:   "https://example.test/callback",
		ServiceUserID: 1,
		MaxRetries:    2,
	}, store, tr, log)
	return c, store
}

func TestClientCallSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{"ID": 42},
		})
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)
	ctx := context.Background()
	if err := store.Save(ctx, "existing-access-token", c.tokenKey(), token.ProviderBitrix24, token.KindAccess, time.Hour); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	result, err := c.Call(ctx, "crm.deal.get", map[string]interface{}{"id": 42})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	var decoded struct{ ID int }
	if err := json.Unmarshal(result, &decoded); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if decoded.ID != 42 {
		t.Fatalf("got %d, want 42", decoded.ID)
	}
}

func TestClientCallRetriesOnTokenError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if calls == 1 {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"error":             "expired_token",
				"error_description": "token expired",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{"ok": true},
		})
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)
	ctx := context.Background()
	if err := store.Save(ctx, "stale-token", c.tokenKey(), token.ProviderBitrix24, token.KindAccess, time.Hour); err != nil {
		t.Fatalf("seed token: %v", err)
	}
	if err := store.Save(ctx, "refresh-token-value", c.tokenKey(), token.ProviderBitrix24, token.KindRefresh, 0); err != nil {
		t.Fatalf("seed refresh token: %v", err)
	}

	_, err := c.Call(ctx, "crm.deal.get", nil)
	if err == nil {
		t.Fatal("expected error because the refresh reply carries no access_token")
	}
	if calls < 2 {
		t.Fatalf("expected the token error to trigger a refresh request, got %d server calls", calls)
	}
}

func TestClientGetAuthURL(t *testing.T) {
	c, _ := newTestClient(t, "https://portal.example.test")
	url := c.GetAuthURL()
	if url == "" {
		t.Fatal("expected non-empty auth url")
	}
}

package webhook

import (
	"testing"
	"time"

	"github.com/kilang-desa-murni/crm/pkg/errors"
)

func treeFor(event, token, domain string, ts int64) map[string]interface{} {
	return map[string]interface{}{
		"event": event,
		"ts":    itoa(ts),
		"auth": map[string]interface{}{
			"application_token": token,
			"domain":            domain,
		},
	}
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf []byte
	for v > 0 {
		buf = append([]byte{byte('0' + v%10)}, buf...)
		v /= 10
	}
	if neg {
		buf = append([]byte{'-'}, buf...)
	}
	return string(buf)
}

func fixedNow(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestVerifyAcceptsValidWebhook(t *testing.T) {
	now := time.Unix(1700000300, 0)
	v := &Verifier{TokenDomains: map[string]string{"tok": "portal.bitrix24.com"}, Now: fixedNow(now)}
	cfg := EntityConfig{AllowedEvents: []string{"ONCRMDEALUPDATE"}}

	tree := treeFor("ONCRMDEALUPDATE", "tok", "portal.bitrix24.com", 1700000000)
	if err := v.Verify(tree, cfg); err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
}

func TestVerifyRejectsDisallowedEvent(t *testing.T) {
	v := &Verifier{TokenDomains: map[string]string{"tok": "portal.bitrix24.com"}, Now: fixedNow(time.Unix(1700000000, 0))}
	cfg := EntityConfig{AllowedEvents: []string{"ONCRMLEADUPDATE"}}

	tree := treeFor("ONCRMDEALUPDATE", "tok", "portal.bitrix24.com", 1700000000)
	err := v.Verify(tree, cfg)
	if errors.GetCode(err) != errors.ErrCodeValidation {
		t.Fatalf("got code %v, want validation error", errors.GetCode(err))
	}
}

func TestVerifyRejectsTokenDomainMismatch(t *testing.T) {
	v := &Verifier{TokenDomains: map[string]string{"tok": "portal.bitrix24.com"}, Now: fixedNow(time.Unix(1700000000, 0))}
	cfg := EntityConfig{AllowedEvents: []string{"ONCRMDEALUPDATE"}}

	tree := treeFor("ONCRMDEALUPDATE", "tok", "other-portal.bitrix24.com", 1700000000)
	err := v.Verify(tree, cfg)
	if errors.GetCode(err) != errors.ErrCodeSecurity {
		t.Fatalf("got code %v, want security error", errors.GetCode(err))
	}
}

func TestVerifyRejectsUnknownToken(t *testing.T) {
	v := &Verifier{TokenDomains: map[string]string{"tok": "portal.bitrix24.com"}, Now: fixedNow(time.Unix(1700000000, 0))}
	cfg := EntityConfig{AllowedEvents: []string{"ONCRMDEALUPDATE"}}

	tree := treeFor("ONCRMDEALUPDATE", "unknown-token", "portal.bitrix24.com", 1700000000)
	err := v.Verify(tree, cfg)
	if errors.GetCode(err) != errors.ErrCodeSecurity {
		t.Fatalf("got code %v, want security error", errors.GetCode(err))
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	now := time.Unix(1700000000+301, 0)
	v := &Verifier{TokenDomains: map[string]string{"tok": "portal.bitrix24.com"}, Now: fixedNow(now)}
	cfg := EntityConfig{AllowedEvents: []string{"ONCRMDEALUPDATE"}}

	tree := treeFor("ONCRMDEALUPDATE", "tok", "portal.bitrix24.com", 1700000000)
	err := v.Verify(tree, cfg)
	if errors.GetCode(err) != errors.ErrCodeSecurity {
		t.Fatalf("got code %v, want security error for stale ts", errors.GetCode(err))
	}
}

func TestVerifyRejectsMissingTimestamp(t *testing.T) {
	v := &Verifier{TokenDomains: map[string]string{"tok": "portal.bitrix24.com"}, Now: fixedNow(time.Unix(1700000000, 0))}
	cfg := EntityConfig{AllowedEvents: []string{"ONCRMDEALUPDATE"}}

	tree := map[string]interface{}{
		"event": "ONCRMDEALUPDATE",
		"auth": map[string]interface{}{
			"application_token": "tok",
			"domain":            "portal.bitrix24.com",
		},
	}
	err := v.Verify(tree, cfg)
	if errors.GetCode(err) != errors.ErrCodeValidation {
		t.Fatalf("got code %v, want validation error for missing ts", errors.GetCode(err))
	}
}

func TestEntityConfigMaxAgeDefault(t *testing.T) {
	cfg := EntityConfig{}
	if cfg.maxAge() != 300*time.Second {
		t.Fatalf("default max age = %v, want 300s", cfg.maxAge())
	}
}

package webhook

import (
	"time"

	"github.com/kilang-desa-murni/crm/pkg/errors"
)

// EntityConfig gates one kind's inbound events: the event names Bitrix24 may
// send for it, and the window an event's timestamp must fall within.
type EntityConfig struct {
	AllowedEvents []string
	MaxAge        time.Duration
}

func (c EntityConfig) allows(event string) bool {
	for _, e := range c.AllowedEvents {
		if e == event {
			return true
		}
	}
	return false
}

func (c EntityConfig) maxAge() time.Duration {
	if c.MaxAge <= 0 {
		return 300 * time.Second
	}
	return c.MaxAge
}

// Verifier checks a webhook's token and timestamp against configuration.
// TokenDomains maps an application_token to the single domain it is valid
// for; a token whose mapped domain doesn't match the request's auth[domain]
// is rejected, not merely logged.
type Verifier struct {
	TokenDomains map[string]string
	Now          func() time.Time
}

func NewVerifier(tokenDomains map[string]string) *Verifier {
	return &Verifier{TokenDomains: tokenDomains, Now: time.Now}
}

// Verify validates event membership, token-to-domain binding, and
// timestamp age for one parsed webhook body.
func (v *Verifier) Verify(tree map[string]interface{}, cfg EntityConfig) error {
	event := StringAt(tree, "event")
	if !cfg.allows(event) {
		return errors.Newf(errors.ErrCodeValidation, "event %q not allowed for this entity", event)
	}

	token := StringAt(tree, "auth", "application_token")
	domain := StringAt(tree, "auth", "domain")
	expectedDomain, ok := v.TokenDomains[token]
	if !ok || expectedDomain != domain {
		return errors.Newf(errors.ErrCodeSecurity, "application_token does not map to domain %q", domain)
	}

	ts, ok := Int64At(tree, "ts")
	if !ok || ts < 0 {
		return errors.New(errors.ErrCodeValidation, "ts missing or not a non-negative unix second")
	}
	now := v.Now()
	age := now.Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > cfg.maxAge() {
		return errors.Newf(errors.ErrCodeSecurity, "event timestamp age %s exceeds max_age %s", age, cfg.maxAge())
	}

	return nil
}

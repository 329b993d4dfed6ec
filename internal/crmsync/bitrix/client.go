package bitrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kilang-desa-murni/crm/internal/crmsync/token"
	"github.com/kilang-desa-murni/crm/pkg/errors"
	"github.com/kilang-desa-murni/crm/pkg/logger"
	"github.com/kilang-desa-murni/crm/pkg/resilience"
	"github.com/kilang-desa-murni/crm/pkg/tracer"
)

const (
	restAPIPath    = "rest/"
	oauthAuthPath  = "oauth/authorize/"
	oauthTokenPath = "oauth/token/"

	defaultTimeout = 10 * time.Second
	defaultRetries = 2
)

var tokenErrorCodes = map[string]bool{
	"expired_token": true,
	"invalid_token": true,
}

// ClientConfig configures the outbound CRM HTTP client.
type ClientConfig struct {
	PortalURL     string
	ClientID      string
	ClientSecret  string
	RedirectURI   string
	ServiceUserID int64
	MaxRetries    int
	CallTimeout   time.Duration
	RatePerSecond float64
}

// Client is the authenticated Bitrix24 REST client (component B). It owns
// the OAuth grant exchange, token refresh, per-call retry on token
// errors, and the rate limit / circuit breaker wrapping every call.
type Client struct {
	cfg ClientConfig

	httpClient *http.Client
	tokens     *token.Store
	limiter    *rate.Limiter
	breaker    *resilience.CircuitBreaker
	tracer     *tracer.Tracer
	log        *logger.Logger
}

// NewClient builds a Client over an already-initialized token store.
func NewClient(cfg ClientConfig, tokens *token.Store, tr *tracer.Tracer, log *logger.Logger) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultRetries
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultTimeout
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 2
	}
	cfg.PortalURL = strings.TrimRight(cfg.PortalURL, "/") + "/"

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.CallTimeout},
		tokens:     tokens,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		breaker:    resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("bitrix-crm")),
		tracer:     tr,
		log:        log,
	}
}

func (c *Client) tokenKey() string { return fmt.Sprintf("%d", c.cfg.ServiceUserID) }

// GetAuthURL returns the portal's OAuth consent URL for this client's
// registered application.
func (c *Client) GetAuthURL() string {
	q := url.Values{
		"client_id":     {c.cfg.ClientID},
		"redirect_uri":  {c.cfg.RedirectURI},
		"response_type": {"code"},
	}
	return c.cfg.PortalURL + oauthAuthPath + "?" + q.Encode()
}

// ExchangeCode trades an OAuth authorization code for a token pair and
// persists both in the token store.
func (c *Client) ExchangeCode(ctx context.Context, code string) error {
	return c.exchangeToken(ctx, url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"redirect_uri":  {c.cfg.RedirectURI},
		"code":          {code},
	})
}

func (c *Client) refreshAccessToken(ctx context.Context, refreshToken string) error {
	return c.exchangeToken(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"refresh_token": {refreshToken},
	})
}

type oauthTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

func (c *Client) exchangeToken(ctx context.Context, params url.Values) error {
	reqURL := c.cfg.PortalURL + oauthTokenPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCRMAuth, "build oauth request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCRMAuth, "oauth network error")
	}
	defer resp.Body.Close()

	var tok oauthTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return errors.Wrap(err, errors.ErrCodeCRMAuth, "decode oauth response")
	}
	if tok.Error != "" {
		return errors.Newf(errors.ErrCodeCRMAuth, "oauth error: %s (%s)", tok.Error, tok.ErrorDesc)
	}
	if tok.AccessToken == "" {
		return errors.New(errors.ErrCodeCRMAuth, "oauth response missing access_token")
	}

	expiresIn := time.Duration(tok.ExpiresIn) * time.Second
	if err := c.tokens.Save(ctx, tok.AccessToken, c.tokenKey(), token.ProviderBitrix24, token.KindAccess, expiresIn); err != nil {
		return errors.Wrap(err, errors.ErrCodeTokenConnection, "save access token")
	}
	if tok.RefreshToken != "" {
		if err := c.tokens.Save(ctx, tok.RefreshToken, c.tokenKey(), token.ProviderBitrix24, token.KindRefresh, 0); err != nil {
			return errors.Wrap(err, errors.ErrCodeTokenConnection, "save refresh token")
		}
	}
	return nil
}

// getValidToken implements the three-step flow: reuse a cached access
// token, else refresh using the cached refresh token, else fail with a
// re-auth pointer.
func (c *Client) getValidToken(ctx context.Context) (string, error) {
	if access, err := c.tokens.Get(ctx, c.tokenKey(), token.ProviderBitrix24, token.KindAccess); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeTokenConnection, "read access token")
	} else if access != "" {
		return access, nil
	}

	refresh, err := c.tokens.Get(ctx, c.tokenKey(), token.ProviderBitrix24, token.KindRefresh)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeTokenConnection, "read refresh token")
	}
	if refresh == "" {
		return "", errors.Newf(errors.ErrCodeCRMAuth, "authentication required: re-authorize at %s", c.GetAuthURL())
	}
	if err := c.refreshAccessToken(ctx, refresh); err != nil {
		return "", err
	}
	return c.tokens.Get(ctx, c.tokenKey(), token.ProviderBitrix24, token.KindAccess)
}

func (c *Client) invalidateAccessToken(ctx context.Context) {
	if _, err := c.tokens.Delete(ctx, c.tokenKey(), token.ProviderBitrix24, token.KindAccess); err != nil {
		c.log.Warn().Err(err).Msg("bitrix: failed to invalidate access token")
	}
}

type apiResponse struct {
	Result    json.RawMessage `json:"result"`
	Error     string          `json:"error"`
	ErrorDesc string          `json:"error_description"`
	Next      *int            `json:"next"`
	Total     *int            `json:"total"`
}

// Page is the {result, total, next} envelope crm.*.list / crm.item.list
// calls return; Call callers that don't paginate only need Result.
type Page struct {
	Result json.RawMessage
	Total  int
	Next   *int
}

// Call invokes a Bitrix24 REST method, retrying on token errors up to
// MaxRetries and enforcing the client's rate limit and circuit breaker.
func (c *Client) Call(ctx context.Context, method string, params map[string]interface{}) (json.RawMessage, error) {
	resp, err := c.callWithRetry(ctx, method, params)
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// CallPage is Call plus the pagination fields list endpoints carry.
func (c *Client) CallPage(ctx context.Context, method string, params map[string]interface{}) (Page, error) {
	resp, err := c.callWithRetry(ctx, method, params)
	if err != nil {
		return Page{}, err
	}
	total := 0
	if resp.Total != nil {
		total = *resp.Total
	}
	return Page{Result: resp.Result, Total: total, Next: resp.Next}, nil
}

func (c *Client) callWithRetry(ctx context.Context, method string, params map[string]interface{}) (apiResponse, error) {
	ctx, span := c.tracer.StartSpan(ctx, "bitrix.call",
		tracer.HTTPMethod("POST"),
	)
	defer span.End()

	var result apiResponse
	attempt := 0
	for {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return apiResponse{}, errors.Wrap(err, errors.ErrCodeCRMAPI, "rate limiter wait")
		}

		var callErr error
		breakerErr := c.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
			resp, err := c.doCall(ctx, method, params)
			if err != nil {
				callErr = err
				return err
			}
			result = resp
			return nil
		})

		if breakerErr == nil {
			return result, nil
		}
		if callErr == nil {
			return apiResponse{}, errors.Wrap(breakerErr, errors.ErrCodeCRMAPI, "bitrix call rejected by circuit breaker")
		}
		if !isTokenError(callErr) || attempt > c.cfg.MaxRetries {
			return apiResponse{}, callErr
		}
		c.log.Warn().Str("method", method).Int("attempt", attempt).Msg("bitrix: token error, retrying")
		c.invalidateAccessToken(ctx)
	}
}

func isTokenError(err error) bool {
	appErr, ok := err.(*errors.AppError)
	return ok && appErr.Code == errors.ErrCodeCRMAuth
}

func (c *Client) doCall(ctx context.Context, method string, params map[string]interface{}) (apiResponse, error) {
	accessToken, err := c.getValidToken(ctx)
	if err != nil {
		return apiResponse{}, err
	}

	payload := map[string]interface{}{"auth": accessToken}
	for k, v := range params {
		payload[k] = v
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return apiResponse{}, errors.Wrap(err, errors.ErrCodeCRMAPI, "marshal request")
	}

	reqURL := c.cfg.PortalURL + restAPIPath + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return apiResponse{}, errors.Wrap(err, errors.ErrCodeCRMAPI, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apiResponse{}, errors.Wrap(err, errors.ErrCodeCRMAPI, "network error calling "+method)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apiResponse{}, errors.Wrap(err, errors.ErrCodeCRMAPI, "read response body")
	}

	var decoded apiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return apiResponse{}, errors.Wrap(err, errors.ErrCodeCRMAPI, "decode response")
	}

	if decoded.Error != "" {
		if tokenErrorCodes[decoded.Error] {
			return apiResponse{}, errors.Newf(errors.ErrCodeCRMAuth, "token invalid or expired: %s", decoded.Error)
		}
		if decoded.Error == "not_found" || resp.StatusCode == http.StatusNotFound {
			return apiResponse{}, errors.Newf(errors.ErrCodeNotFound, "bitrix: %s: %s", decoded.Error, decoded.ErrorDesc)
		}
		return apiResponse{}, errors.Newf(errors.ErrCodeCRMAPI, "bitrix api error: %s: %s", decoded.Error, decoded.ErrorDesc)
	}
	if decoded.Result == nil {
		return apiResponse{}, errors.New(errors.ErrCodeCRMAPI, "bitrix: response has no result")
	}
	return decoded, nil
}

// Batch invokes the `batch` method with the given named sub-commands.
func (c *Client) Batch(ctx context.Context, cmd map[string]string, halt bool) (json.RawMessage, error) {
	haltVal := 0
	if halt {
		haltVal = 1
	}
	return c.Call(ctx, "batch", map[string]interface{}{
		"halt": haltVal,
		"cmd":  cmd,
	})
}

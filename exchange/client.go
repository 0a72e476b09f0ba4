package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/giftshift/giftshift-go/config"
	"github.com/giftshift/giftshift-go/errors"
	"github.com/giftshift/giftshift-go/models"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultMaxAttempts = 3
	defaultRetryDelay  = 500 * time.Millisecond
	defaultMaxDelay    = 5 * time.Second
	defaultQuoteTTL    = 15 * time.Minute

	coinsCacheKey = "exchange:coins"
	coinsCacheTTL = 10 * time.Minute

	// bounds used when the upstream listing omits them
	defaultDepositMin = 0.0001
	defaultDepositMax = 10000
)

// Client is the gateway to the external exchange. Implementations own retry,
// backoff and endpoint fallback; callers only see normalized models and the
// typed error taxonomy.
type Client interface {
	GetQuote(ctx context.Context, params *QuoteParams) (*models.Quote, error)
	CreateShift(ctx context.Context, params *ShiftParams) (*models.Shift, error)
	GetShiftStatus(ctx context.Context, shiftID string) (*models.Shift, error)
	ListSupportedAssets(ctx context.Context) ([]models.AssetNetwork, error)
}

// Cache is the optional read-through cache the client publishes derived
// results to. Absence of a value never fails the caller.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key string, value any, ttl time.Duration) bool
}

type HTTPClient struct {
	endpoints   []string
	secret      string
	affiliateID string
	client      *http.Client
	maxAttempts int
	retryDelay  time.Duration
	maxDelay    time.Duration
	cache       Cache
	log         *zap.Logger
}

type ClientOption func(*HTTPClient)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) { c.client = client }
}

func WithMaxAttempts(n int) ClientOption {
	return func(c *HTTPClient) { c.maxAttempts = n }
}

func WithRetryDelay(base, max time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = base
		c.maxDelay = max
	}
}

func WithFallbackURL(url string) ClientOption {
	return func(c *HTTPClient) {
		if url != "" {
			c.endpoints = append(c.endpoints, strings.TrimSuffix(url, "/"))
		}
	}
}

func NewHTTPClient(baseURL, secret, affiliateID string, cache Cache, log *zap.Logger, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoints:   []string{strings.TrimSuffix(baseURL, "/")},
		secret:      secret,
		affiliateID: affiliateID,
		client:      &http.Client{Timeout: defaultTimeout},
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
		maxDelay:    defaultMaxDelay,
		cache:       cache,
		log:         log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClient builds the process-wide exchange client from config.
func NewClient(cache Cache, log *zap.Logger) Client {
	return NewHTTPClient(
		config.EXCHANGE_BASE_URL,
		config.EXCHANGE_SECRET,
		config.EXCHANGE_AFFILIATE_ID,
		cache,
		log,
		WithFallbackURL(config.EXCHANGE_FALLBACK_URL),
		WithHTTPClient(&http.Client{Timeout: config.EXCHANGE_TIMEOUT}),
	)
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) GetQuote(ctx context.Context, params *QuoteParams) (*models.Quote, error) {
	body := map[string]any{
		"depositCoin":    upper(params.FromCoin),
		"depositNetwork": params.FromNetwork,
		"settleCoin":     upper(params.ToCoin),
		"settleNetwork":  params.ToNetwork,
		"depositAmount":  fmt.Sprintf("%g", params.Amount),
	}
	if params.SettleAddress != "" {
		body["settleAddress"] = params.SettleAddress
	}
	if c.affiliateID != "" {
		body["affiliateId"] = c.affiliateID
	}

	payload, err := c.doRequest(ctx, http.MethodPost, "/quotes", body, params.CallerIP)
	if err != nil {
		return nil, err
	}

	raw := new(rawQuote)
	if err := json.Unmarshal(payload, raw); err != nil {
		return nil, errors.NewUpstreamRejectedError("exchange returned an unreadable quote")
	}
	return raw.toQuote(time.Now())
}

func (c *HTTPClient) CreateShift(ctx context.Context, params *ShiftParams) (*models.Shift, error) {
	body := map[string]any{
		"quoteId":       params.QuoteID,
		"settleAddress": params.SettleAddress,
	}
	if c.affiliateID != "" {
		body["affiliateId"] = c.affiliateID
	}

	payload, err := c.doRequest(ctx, http.MethodPost, "/shifts/fixed", body, params.CallerIP)
	if err != nil {
		return nil, err
	}

	raw := new(rawShift)
	if err := json.Unmarshal(payload, raw); err != nil {
		return nil, errors.NewUpstreamRejectedError("exchange returned an unreadable shift")
	}
	return raw.toShift(time.Now())
}

func (c *HTTPClient) GetShiftStatus(ctx context.Context, shiftID string) (*models.Shift, error) {
	payload, err := c.doRequest(ctx, http.MethodGet, "/shifts/"+shiftID, nil, "")
	if err != nil {
		return nil, err
	}

	raw := new(rawShift)
	if err := json.Unmarshal(payload, raw); err != nil {
		return nil, errors.NewUpstreamRejectedError("exchange returned an unreadable shift")
	}
	return raw.toShift(time.Now())
}

func (c *HTTPClient) ListSupportedAssets(ctx context.Context) ([]models.AssetNetwork, error) {
	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, coinsCacheKey); ok {
			assets := []models.AssetNetwork{}
			if err := json.Unmarshal([]byte(cached), &assets); err == nil {
				return assets, nil
			}
		}
	}

	payload, err := c.doRequest(ctx, http.MethodGet, "/coins", nil, "")
	if err != nil {
		return nil, err
	}

	coins := []rawCoin{}
	if err := json.Unmarshal(payload, &coins); err != nil {
		return nil, errors.NewUpstreamRejectedError("exchange returned an unreadable coin listing")
	}

	assets := flattenCoins(coins)

	if c.cache != nil {
		if data, err := json.Marshal(assets); err == nil {
			c.cache.Set(ctx, coinsCacheKey, string(data), coinsCacheTTL)
		}
	}
	return assets, nil
}

// flattenCoins expands each coin into one entry per eligible network, skipping
// networks the upstream marks deposit-offline and falling back to conservative
// bounds when none are supplied.
func flattenCoins(coins []rawCoin) []models.AssetNetwork {
	assets := make([]models.AssetNetwork, 0, len(coins))
	for _, coin := range coins {
		networks := coin.Networks
		if len(networks) == 0 {
			networks = []string{strings.ToLower(coin.Coin)}
		}
		for _, network := range networks {
			if networkFlag(coin.DepositOffline, network) {
				continue
			}
			asset := models.AssetNetwork{
				Coin:      upper(coin.Coin),
				Name:      coin.Name,
				Network:   network,
				Min:       float64(coin.DepositMin),
				Max:       float64(coin.DepositMax),
				FixedOnly: networkFlag(coin.FixedOnly, network),
			}
			if asset.Min <= 0 {
				asset.Min = defaultDepositMin
			}
			if asset.Max <= 0 {
				asset.Max = defaultDepositMax
			}
			assets = append(assets, asset)
		}
	}
	return assets
}

// doRequest runs one logical exchange call: bounded attempts with exponential
// backoff on transient transport failures only, rotating through fallback
// endpoints between attempts. 4xx responses fail immediately with the
// taxonomy class preserved.
func (c *HTTPClient) doRequest(ctx context.Context, method, path string, body any, callerIP string) (json.RawMessage, error) {
	var reqBody []byte
	if body != nil {
		var err error
		reqBody, err = json.Marshal(body)
		if err != nil {
			return nil, errors.NewFatalError(err)
		}
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.NewServiceUnavailableError(ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		endpoint := c.endpoints[attempt%len(c.endpoints)]
		req, err := http.NewRequestWithContext(ctx, method, endpoint+path, bytes.NewReader(reqBody))
		if err != nil {
			return nil, errors.NewFatalError(err)
		}
		req.Header.Set("content-type", "application/json")
		req.Header.Set("accept", "application/json")
		if c.secret != "" {
			req.Header.Set("x-sideshift-secret", c.secret)
		}
		if callerIP != "" {
			req.Header.Set("x-user-ip", callerIP)
		}

		res, err := c.client.Do(req)
		if err != nil {
			if !isTransient(err) {
				return nil, errors.NewFatalError(err)
			}
			c.log.Warn("exchange request failed",
				zap.String("path", path),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			lastErr = err
			continue
		}

		resBody, err := io.ReadAll(res.Body)
		res.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case res.StatusCode < 300:
			return unwrapPayload(resBody), nil
		case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500:
			lastErr = fmt.Errorf("exchange responded %d: %s", res.StatusCode, string(resBody))
			continue
		case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
			return nil, errors.NewAuthenticationError("exchange rejected credentials")
		case res.StatusCode == http.StatusNotFound:
			return nil, errors.NewNotFoundError("unknown quote or shift")
		default:
			return nil, errors.NewUpstreamRejectedError(upstreamReason(resBody))
		}
	}

	return nil, errors.NewServiceUnavailableError(lastErr)
}

// isTransient reports whether a transport error is in the retryable class:
// name resolution, connection refused/reset, or a timeout.
func isTransient(err error) bool {
	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if stderrors.Is(err, syscall.ECONNREFUSED) || stderrors.Is(err, syscall.ECONNRESET) {
		return true
	}
	return stderrors.Is(err, context.DeadlineExceeded)
}

var upperCaser = cases.Upper(language.English)

func upper(coin string) string {
	return upperCaser.String(coin)
}

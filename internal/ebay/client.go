// Package ebay retrieves comparable listings from the eBay Browse API.
package ebay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/raine/resale-pricer/internal/pricing"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	ProductionBaseURL    = "https://api.ebay.com"
	SandboxBaseURL       = "https://api.sandbox.ebay.com"
	DefaultMarketplaceID = "EBAY_US"

	DefaultLimit = 25
	MaxLimit     = 50

	DefaultRatePerSecond = 5.0

	searchPath     = "/buy/browse/v1/item_summary/search"
	requestTimeout = 20 * time.Second
)

// BaseURLFor maps EBAY_ENV to an API host. Anything but "sandbox" is
// production.
func BaseURLFor(env string) string {
	if strings.EqualFold(strings.TrimSpace(env), "sandbox") {
		return SandboxBaseURL
	}
	return ProductionBaseURL
}

type ClientOpts struct {
	// BaseURL overrides the host derived from Env.
	BaseURL       string
	Env           string
	ClientID      string
	ClientSecret  string
	MarketplaceID string
	// RatePerSecond paces search requests. Zero means DefaultRatePerSecond.
	RatePerSecond float64
	TokenStore    TokenStore
}

// SearchOptions tune a single comp search.
type SearchOptions struct {
	// Limit is clamped to 1..50; zero means DefaultLimit.
	Limit int
	// Currency is assumed for items whose price has no currency.
	Currency string
}

type Client struct {
	httpClient    *resty.Client
	tokens        *TokenSource
	marketplaceID string
	limiter       *rate.Limiter
}

func NewClient(opts ClientOpts) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = BaseURLFor(opts.Env)
	}
	marketplaceID := opts.MarketplaceID
	if marketplaceID == "" {
		marketplaceID = DefaultMarketplaceID
	}
	rps := opts.RatePerSecond
	if rps <= 0 {
		rps = DefaultRatePerSecond
	}

	return &Client{
		httpClient: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(requestTimeout).
			SetHeaders(map[string]string{
				"Accept":                  "application/json",
				"X-EBAY-C-MARKETPLACE-ID": marketplaceID,
			}),
		tokens:        NewTokenSource(baseURL, opts.ClientID, opts.ClientSecret, opts.TokenStore),
		marketplaceID: marketplaceID,
		limiter:       rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// CheckCredentials reports ErrMissingCredentials without touching the network.
func (c *Client) CheckCredentials() error {
	return c.tokens.CheckCredentials()
}

// Tokens exposes the client's token source.
func (c *Client) Tokens() *TokenSource {
	return c.tokens
}

// SearchComps runs one Browse search and returns the normalized comps. The
// query is sent as is. HTTP failures are returned as *APIError, never as an
// empty result.
func (c *Client) SearchComps(ctx context.Context, query string, opts SearchOptions) ([]pricing.Comp, error) {
	limit := ClampLimit(opts.Limit)
	currency := opts.Currency
	if currency == "" {
		currency = pricing.DefaultCurrency
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("ebay: rate limiter: %w", err)
	}

	res, err := handleError(c.httpClient.NewRequest().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParams(map[string]string{
			"q":     query,
			"limit": strconv.Itoa(limit),
		}).
		Get(searchPath))
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, err
		}
		return nil, fmt.Errorf("ebay: search request: %w", err)
	}

	comps, skipped, err := normalizeSearchResponse(res.Body(), currency)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("query", query).
		Int("limit", limit).
		Int("comps", len(comps)).
		Int("skipped", skipped).
		Msg("ebay comp search")

	return comps, nil
}

// ClampLimit bounds a requested result count to what the Browse API accepts.
func ClampLimit(limit int) int {
	if limit == 0 {
		return DefaultLimit
	}
	return max(1, min(MaxLimit, limit))
}

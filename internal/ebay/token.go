package ebay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	tokenPath = "/identity/v1/oauth2/token"
	// browseScope grants access to the Browse API.
	browseScope = "https://api.ebay.com/oauth/api_scope"
	// expirySkew treats a token as expired this long before eBay does.
	expirySkew = 30 * time.Second
)

// Token is an application access token.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Valid reports whether the token can still be used at now.
func (t Token) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt.Add(-expirySkew))
}

// TokenStore persists tokens across restarts.
type TokenStore interface {
	// LoadToken returns nil, nil when nothing is stored under key.
	LoadToken(ctx context.Context, key string) (*Token, error)
	SaveToken(ctx context.Context, key string, token Token) error
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// TokenSource hands out client-credentials tokens. A valid cached token is
// served under a read lock; an expired one is refreshed by exactly one
// request no matter how many callers are waiting.
type TokenSource struct {
	http         *resty.Client
	baseURL      string
	clientID     string
	clientSecret string
	store        TokenStore
	now          func() time.Time

	mu     sync.RWMutex
	cached *Token
	group  singleflight.Group
}

// NewTokenSource creates a token source against baseURL. store may be nil.
func NewTokenSource(baseURL, clientID, clientSecret string, store TokenStore) *TokenSource {
	return &TokenSource{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(requestTimeout).
			SetHeader("Accept", "application/json"),
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		store:        store,
		now:          time.Now,
	}
}

// CheckCredentials reports ErrMissingCredentials without touching the network.
func (s *TokenSource) CheckCredentials() error {
	if s.clientID == "" || s.clientSecret == "" {
		return ErrMissingCredentials
	}
	return nil
}

// Token returns a valid access token, refreshing it if needed. The refresh
// outlives a canceled caller so that other waiters still get a token.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if err := s.CheckCredentials(); err != nil {
		return "", err
	}

	if tok, ok := s.cachedToken(); ok {
		return tok.AccessToken, nil
	}

	refreshCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(s.clientID, func() (any, error) {
		return s.refresh(refreshCtx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(Token).AccessToken, nil
	}
}

func (s *TokenSource) cachedToken() (Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cached != nil && s.cached.Valid(s.now()) {
		return *s.cached, true
	}
	return Token{}, false
}

func (s *TokenSource) setCached(tok Token) {
	s.mu.Lock()
	s.cached = &tok
	s.mu.Unlock()
}

func (s *TokenSource) refresh(ctx context.Context) (Token, error) {
	// Another flight may have finished between the cache check and now
	if tok, ok := s.cachedToken(); ok {
		return tok, nil
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if tok := s.loadStored(ctx); tok != nil {
		s.setCached(*tok)
		return *tok, nil
	}

	tok, err := s.fetch(ctx)
	if err != nil {
		return Token{}, err
	}
	s.setCached(tok)

	if s.store != nil {
		if err := s.store.SaveToken(ctx, s.storeKey(), tok); err != nil {
			log.Warn().Err(err).Msg("failed to persist ebay token")
		}
	}
	return tok, nil
}

func (s *TokenSource) loadStored(ctx context.Context) *Token {
	if s.store == nil {
		return nil
	}
	tok, err := s.store.LoadToken(ctx, s.storeKey())
	if err != nil {
		log.Warn().Err(err).Msg("failed to load stored ebay token")
		return nil
	}
	if tok == nil || !tok.Valid(s.now()) {
		return nil
	}
	log.Debug().Time("expiresAt", tok.ExpiresAt).Msg("reusing stored ebay token")
	return tok
}

func (s *TokenSource) fetch(ctx context.Context) (Token, error) {
	requestedAt := s.now()
	result := &tokenResponse{}

	_, err := handleError(s.http.NewRequest().
		SetContext(ctx).
		SetBasicAuth(s.clientID, s.clientSecret).
		SetFormData(map[string]string{
			"grant_type": "client_credentials",
			"scope":      browseScope,
		}).
		SetResult(result).
		Post(tokenPath))
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return Token{}, err
		}
		return Token{}, fmt.Errorf("ebay: token request: %w", err)
	}

	if result.AccessToken == "" || result.ExpiresIn <= 0 {
		return Token{}, fmt.Errorf("ebay: unexpected token response (expires_in: %d)", result.ExpiresIn)
	}

	tok := Token{
		AccessToken: result.AccessToken,
		ExpiresAt:   requestedAt.Add(time.Duration(result.ExpiresIn) * time.Second),
	}
	log.Info().Time("expiresAt", tok.ExpiresAt).Msg("fetched ebay application token")
	return tok, nil
}

// storeKey separates sandbox and production tokens of the same client.
func (s *TokenSource) storeKey() string {
	return s.baseURL + "|" + s.clientID
}

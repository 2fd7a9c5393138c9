package ebay

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]Token
}

func (m *memoryTokenStore) LoadToken(ctx context.Context, key string) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[key]
	if !ok {
		return nil, nil
	}
	return &tok, nil
}

func (m *memoryTokenStore) SaveToken(ctx context.Context, key string, token Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		m.tokens = make(map[string]Token)
	}
	m.tokens[key] = token
	return nil
}

func newTestTokenSource(baseURL string, store TokenStore, clock *fakeClock) *TokenSource {
	s := NewTokenSource(baseURL, "client-id", "client-secret", store)
	s.now = clock.Now
	return s
}

func TestTokenSource_CachesUntilSkew(t *testing.T) {
	fake := newFakeEbay()
	fake.tokenBody = `{"access_token":"tok-1","expires_in":120}`
	ts := fake.server(t)
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := newTestTokenSource(ts.URL, nil, clock)

	tok, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	// still valid 89s in: expiry is at 120s, minus the 30s skew
	clock.Advance(89 * time.Second)
	_, err = s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.tokenCalls.Load())

	// at 90s the token is treated as expired
	clock.Advance(1 * time.Second)
	_, err = s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.tokenCalls.Load())
}

func TestTokenSource_ConcurrentCallersShareOneRefresh(t *testing.T) {
	fake := newFakeEbay()
	fake.tokenDelay = 100 * time.Millisecond
	ts := fake.server(t)
	s := NewTokenSource(ts.URL, "client-id", "client-secret", nil)

	var wg sync.WaitGroup
	results := make([]string, 20)
	errs := make([]error, 20)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = s.Token(context.Background())
		}()
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, "tok-1", results[i])
	}
	assert.Equal(t, int32(1), fake.tokenCalls.Load())
}

func TestTokenSource_RefreshSurvivesCanceledCaller(t *testing.T) {
	fake := newFakeEbay()
	fake.tokenDelay = 100 * time.Millisecond
	ts := fake.server(t)
	s := NewTokenSource(ts.URL, "client-id", "client-secret", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Token(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the detached refresh completes and the next caller reuses it
	require.Eventually(t, func() bool {
		_, ok := s.cachedToken()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	tok, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, int32(1), fake.tokenCalls.Load())
}

func TestTokenSource_InvalidResponses(t *testing.T) {
	for _, body := range []string{
		`{"expires_in":7200}`,
		`{"access_token":"tok","expires_in":0}`,
		`{"access_token":"tok","expires_in":-5}`,
	} {
		fake := newFakeEbay()
		fake.tokenBody = body
		ts := fake.server(t)

		_, err := NewTokenSource(ts.URL, "client-id", "client-secret", nil).Token(context.Background())
		assert.Error(t, err, body)
	}
}

func TestTokenSource_HTTPError(t *testing.T) {
	fake := newFakeEbay()
	fake.tokenStatus = http.StatusUnauthorized
	fake.tokenBody = `{"error":"invalid_client"}`
	ts := fake.server(t)

	_, err := NewTokenSource(ts.URL, "client-id", "client-secret", nil).Token(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "invalid_client")
}

func TestTokenSource_PersistsAndReusesStoredToken(t *testing.T) {
	fake := newFakeEbay()
	ts := fake.server(t)
	clock := &fakeClock{now: time.Now()}
	store := &memoryTokenStore{}

	first := newTestTokenSource(ts.URL, store, clock)
	_, err := first.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.tokenCalls.Load())

	// a fresh source, as after a restart, picks up the stored token
	second := newTestTokenSource(ts.URL, store, clock)
	tok, err := second.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, int32(1), fake.tokenCalls.Load())

	// an expired stored token is ignored
	clock.Advance(3 * time.Hour)
	third := newTestTokenSource(ts.URL, store, clock)
	_, err = third.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.tokenCalls.Load())
}

func TestToken_Valid(t *testing.T) {
	now := time.Now()
	assert.True(t, Token{AccessToken: "t", ExpiresAt: now.Add(time.Minute)}.Valid(now))
	assert.False(t, Token{AccessToken: "t", ExpiresAt: now.Add(30 * time.Second)}.Valid(now))
	assert.False(t, Token{ExpiresAt: now.Add(time.Hour)}.Valid(now))
}

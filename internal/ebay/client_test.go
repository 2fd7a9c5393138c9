package ebay

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEbay struct {
	tokenCalls  atomic.Int32
	searchCalls atomic.Int32

	tokenStatus  int
	tokenBody    string
	tokenDelay   time.Duration
	searchStatus int
	searchBody   string

	mu         sync.Mutex
	lastSearch *http.Request
}

func newFakeEbay() *fakeEbay {
	return &fakeEbay{
		tokenStatus:  http.StatusOK,
		tokenBody:    `{"access_token":"tok-1","expires_in":7200,"token_type":"Application Access Token"}`,
		searchStatus: http.StatusOK,
		searchBody:   `{"itemSummaries":[{"itemId":"1","title":"Lamp","price":{"value":"20.00","currency":"USD"}}]}`,
	}
}

func (f *fakeEbay) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/identity/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		want := "Basic " + base64.StdEncoding.EncodeToString([]byte("client-id:client-secret"))
		assert.Equal(t, want, r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "https://api.ebay.com/oauth/api_scope", r.PostForm.Get("scope"))

		if f.tokenDelay > 0 {
			time.Sleep(f.tokenDelay)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.tokenStatus)
		w.Write([]byte(f.tokenBody))
	})
	mux.HandleFunc("/buy/browse/v1/item_summary/search", func(w http.ResponseWriter, r *http.Request) {
		f.searchCalls.Add(1)
		f.mu.Lock()
		f.lastSearch = r
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.searchStatus)
		w.Write([]byte(f.searchBody))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func newTestClient(baseURL string) *Client {
	return NewClient(ClientOpts{
		BaseURL:       baseURL,
		ClientID:      "client-id",
		ClientSecret:  "client-secret",
		RatePerSecond: 1000,
	})
}

func TestClient_SearchComps(t *testing.T) {
	fake := newFakeEbay()
	ts := fake.server(t)
	c := NewClient(ClientOpts{
		BaseURL:       ts.URL,
		ClientID:      "client-id",
		ClientSecret:  "client-secret",
		MarketplaceID: "EBAY_GB",
		RatePerSecond: 1000,
	})

	comps, err := c.SearchComps(context.Background(), "Ikea desk lamp", SearchOptions{Limit: 25, Currency: "USD"})
	require.NoError(t, err)
	require.Len(t, comps, 1)
	assert.Equal(t, 20.0, comps[0].Price)

	fake.mu.Lock()
	req := fake.lastSearch
	fake.mu.Unlock()
	assert.Equal(t, "Ikea desk lamp", req.URL.Query().Get("q"))
	assert.Equal(t, "25", req.URL.Query().Get("limit"))
	assert.Equal(t, "Bearer tok-1", req.Header.Get("Authorization"))
	assert.Equal(t, "EBAY_GB", req.Header.Get("X-EBAY-C-MARKETPLACE-ID"))
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
}

func TestClient_SearchComps_LimitClamped(t *testing.T) {
	fake := newFakeEbay()
	ts := fake.server(t)
	c := newTestClient(ts.URL)

	for in, want := range map[int]string{0: "25", 500: "50", -3: "1", 10: "10"} {
		_, err := c.SearchComps(context.Background(), "lamp", SearchOptions{Limit: in})
		require.NoError(t, err)
		fake.mu.Lock()
		assert.Equal(t, want, fake.lastSearch.URL.Query().Get("limit"), "limit %d", in)
		fake.mu.Unlock()
	}
	// one token for all searches
	assert.Equal(t, int32(1), fake.tokenCalls.Load())
}

func TestClient_SearchComps_HTTPErrorIsNotEmptyResult(t *testing.T) {
	fake := newFakeEbay()
	fake.searchStatus = http.StatusServiceUnavailable
	fake.searchBody = `{"errors":[{"message":"down"}]}`
	ts := fake.server(t)

	comps, err := newTestClient(ts.URL).SearchComps(context.Background(), "lamp", SearchOptions{})
	require.Error(t, err)
	assert.Nil(t, comps)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, int32(1), fake.searchCalls.Load(), "search must not be retried")
}

func TestClient_SearchComps_MissingCredentials(t *testing.T) {
	fake := newFakeEbay()
	ts := fake.server(t)
	c := NewClient(ClientOpts{BaseURL: ts.URL})

	_, err := c.SearchComps(context.Background(), "lamp", SearchOptions{})
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.ErrorIs(t, c.CheckCredentials(), ErrMissingCredentials)
	assert.Zero(t, fake.tokenCalls.Load())
	assert.Zero(t, fake.searchCalls.Load())
}

func TestBaseURLFor(t *testing.T) {
	assert.Equal(t, SandboxBaseURL, BaseURLFor("sandbox"))
	assert.Equal(t, SandboxBaseURL, BaseURLFor(" SANDBOX "))
	assert.Equal(t, ProductionBaseURL, BaseURLFor("production"))
	assert.Equal(t, ProductionBaseURL, BaseURLFor(""))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, ClampLimit(0))
	assert.Equal(t, 1, ClampLimit(-10))
	assert.Equal(t, 50, ClampLimit(51))
	assert.Equal(t, 7, ClampLimit(7))
}

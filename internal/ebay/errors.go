package ebay

import (
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// ErrMissingCredentials is returned before any network activity when the
// client id or secret is not configured.
var ErrMissingCredentials = errors.New("ebay: EBAY_CLIENT_ID/EBAY_CLIENT_SECRET not set")

// APIError is a non-2xx response from eBay.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ebay: request failed: %s %s (status: %d): %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// handleError is a generic error handler for failing response (>399 status
// code). Without this, failing responses would have nil error.
func handleError(res *resty.Response, err error) (*resty.Response, error) {
	if err != nil {
		return res, err
	}
	if res.IsError() {
		return res, &APIError{
			Method:     res.Request.Method,
			URL:        res.Request.URL,
			StatusCode: res.StatusCode(),
			Body:       truncate(res.String(), 500),
		}
	}

	return res, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

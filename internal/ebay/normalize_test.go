package ebay

import (
	"testing"

	"github.com/raine/resale-pricer/internal/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSearchResponse(t *testing.T) {
	body := `{
		"total": 7,
		"itemSummaries": [
			{"itemId": "v1|1", "title": "Lamp A", "price": {"value": "24.99", "currency": "USD"}, "condition": "Used", "itemWebUrl": "https://www.ebay.com/itm/1"},
			{"itemId": "v1|2", "title": "Lamp B", "price": {"value": 30}},
			{"itemId": "v1|3", "title": "Free lamp", "price": {"value": "0.00", "currency": "USD"}},
			{"itemId": "v1|4", "title": "No price"},
			{"itemId": "v1|5", "title": "Bad price", "price": {"value": "call me", "currency": "USD"}},
			{"itemId": "v1|6", "title": "Empty currency", "price": {"value": "10", "currency": ""}},
			"not an object",
			null,
			{"itemId": "v1|7", "title": "Lamp C", "price": {"value": " 12.5 ", "currency": "EUR"}}
		]
	}`

	comps, skipped, err := normalizeSearchResponse([]byte(body), "USD")
	require.NoError(t, err)
	assert.Equal(t, 6, skipped)
	assert.Equal(t, []pricing.Comp{
		{Title: "Lamp A", Price: 24.99, Currency: "USD", Condition: "Used", URL: "https://www.ebay.com/itm/1", ID: "v1|1"},
		{Title: "Lamp B", Price: 30, Currency: "USD", ID: "v1|2"},
		{Title: "Lamp C", Price: 12.5, Currency: "EUR", ID: "v1|7"},
	}, comps)
}

func TestNormalizeSearchResponse_MissingCurrencyUsesDefault(t *testing.T) {
	comps, _, err := normalizeSearchResponse([]byte(`{"itemSummaries":[{"price":{"value":"5"}}]}`), "GBP")
	require.NoError(t, err)
	require.Len(t, comps, 1)
	assert.Equal(t, "GBP", comps[0].Currency)
}

func TestNormalizeSearchResponse_NoItems(t *testing.T) {
	for _, body := range []string{`{}`, `{"itemSummaries": null}`, `{"total": 0, "itemSummaries": []}`} {
		comps, skipped, err := normalizeSearchResponse([]byte(body), "USD")
		require.NoError(t, err, body)
		assert.Empty(t, comps, body)
		assert.Zero(t, skipped, body)
	}
}

func TestNormalizeSearchResponse_InvalidBody(t *testing.T) {
	_, _, err := normalizeSearchResponse([]byte(`<html>`), "USD")
	assert.Error(t, err)
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{12.5, 12.5, true},
		{"12.50", 12.5, true},
		{"-3", -3, true},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{"", 0, false},
		{nil, 0, false},
		{true, 0, false},
	}
	for _, tt := range tests {
		got, ok := parsePrice(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, "%v", tt.in)
		}
	}
}

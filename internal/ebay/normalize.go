package ebay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/raine/resale-pricer/internal/pricing"
)

type searchResponse struct {
	Total         int               `json:"total"`
	ItemSummaries []json.RawMessage `json:"itemSummaries"`
}

// normalizeSearchResponse turns a Browse search body into comps. Items that
// are not objects, lack a parseable positive price or end up without a
// currency are skipped and counted.
func normalizeSearchResponse(body []byte, defaultCurrency string) ([]pricing.Comp, int, error) {
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, fmt.Errorf("ebay: failed to parse search response: %w", err)
	}

	comps := make([]pricing.Comp, 0, len(resp.ItemSummaries))
	skipped := 0
	for _, raw := range resp.ItemSummaries {
		comp, ok := normalizeItem(raw, defaultCurrency)
		if !ok {
			skipped++
			continue
		}
		comps = append(comps, comp)
	}
	return comps, skipped, nil
}

func normalizeItem(raw json.RawMessage, defaultCurrency string) (pricing.Comp, bool) {
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		return pricing.Comp{}, false
	}
	var item map[string]any
	if err := json.Unmarshal(raw, &item); err != nil {
		return pricing.Comp{}, false
	}

	price, _ := item["price"].(map[string]any)
	value, ok := parsePrice(price["value"])
	if !ok || value <= 0 {
		return pricing.Comp{}, false
	}

	currency := defaultCurrency
	if v, present := price["currency"]; present {
		currency, _ = v.(string)
	}
	currency = strings.TrimSpace(currency)
	if currency == "" {
		return pricing.Comp{}, false
	}

	return pricing.Comp{
		Title:     stringField(item, "title"),
		Price:     value,
		Currency:  currency,
		Condition: stringField(item, "condition"),
		URL:       stringField(item, "itemWebUrl"),
		ID:        stringField(item, "itemId"),
	}, true
}

// parsePrice accepts a JSON number or a numeric string.
func parsePrice(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

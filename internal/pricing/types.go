// Package pricing holds the resale-pricing domain: extracted item attributes,
// comparable listings, the statistics engine and the recommendation synthesizer.
package pricing

import "encoding/json"

// Condition is the item condition reported by the attribute extractor.
type Condition string

const (
	ConditionNew     Condition = "new"
	ConditionLikeNew Condition = "like_new"
	ConditionGood    Condition = "good"
	ConditionFair    Condition = "fair"
	ConditionParts   Condition = "parts"
)

// Valid reports whether c is one of the known conditions.
func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair, ConditionParts:
		return true
	}
	return false
}

// Attributes is the structured description of an item as seen in its photos.
// Empty strings mean the model could not tell.
type Attributes struct {
	ItemType  string
	Brand     string
	Model     string
	Condition Condition
	Keywords  []string
	Notes     string
}

// MarshalJSON encodes unknown optional fields as null, matching the
// extraction schema.
func (a Attributes) MarshalJSON() ([]byte, error) {
	keywords := a.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	return json.Marshal(struct {
		ItemType  string   `json:"item_type"`
		Brand     *string  `json:"brand"`
		Model     *string  `json:"model"`
		Condition *string  `json:"condition"`
		Keywords  []string `json:"keywords"`
		Notes     *string  `json:"notes"`
	}{
		ItemType:  a.ItemType,
		Brand:     nullable(a.Brand),
		Model:     nullable(a.Model),
		Condition: nullable(string(a.Condition)),
		Keywords:  keywords,
		Notes:     nullable(a.Notes),
	})
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Comp is a comparable marketplace listing used as pricing evidence.
// Every Comp handed to the pipeline has a positive price and a currency.
type Comp struct {
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Currency  string  `json:"currency"`
	Condition string  `json:"condition"`
	URL       string  `json:"url"`
	ID        string  `json:"id"`
}

// CompSample is the lightweight projection of a Comp attached to a
// recommendation.
type CompSample struct {
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	URL      string  `json:"url"`
}

// Sample projects c to its lightweight form.
func (c Comp) Sample() CompSample {
	return CompSample{
		Title:    c.Title,
		Price:    c.Price,
		Currency: c.Currency,
		URL:      c.URL,
	}
}

// PricesOf returns the prices of comps in order.
func PricesOf(comps []Comp) []float64 {
	prices := make([]float64, 0, len(comps))
	for _, c := range comps {
		prices = append(prices, c.Price)
	}
	return prices
}

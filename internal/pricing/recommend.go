package pricing

import "math"

// Confidence is a coarse label for how much evidence backs a recommendation.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
)

const (
	// MinCompsForEstimate is the smallest comp count that yields a priced
	// recommendation.
	MinCompsForEstimate = 3
	// MaxCompsSample is how many comps are attached as evidence.
	MaxCompsSample = 5
	// DefaultCurrency is used when no comp carries a currency.
	DefaultCurrency = "USD"
)

const (
	RationaleInsufficientComps = "Not enough comparable listings found on eBay to make a confident recommendation."
	RationaleMedianIQR         = "Based on the median and interquartile range of similar eBay listings (active listings)."
)

// Recommendation is the user-facing price suggestion. Price fields are nil
// when there were too few comps to estimate.
type Recommendation struct {
	Currency       string       `json:"currency"`
	SuggestedPrice *float64     `json:"suggested_price"`
	Low            *float64     `json:"low"`
	High           *float64     `json:"high"`
	Confidence     Confidence   `json:"confidence"`
	Rationale      string       `json:"rationale"`
	CompsSample    []CompSample `json:"comps_sample"`
}

// Recommend turns the statistics and the comps they were computed from into a
// recommendation.
func Recommend(stats Stats, comps []Comp) Recommendation {
	rec := Recommendation{
		Currency:    currencyOf(comps),
		CompsSample: sampleOf(comps),
	}

	if stats.Count < MinCompsForEstimate {
		rec.Confidence = ConfidenceLow
		rec.Rationale = RationaleInsufficientComps
		return rec
	}

	rec.SuggestedPrice = ptr(Round2(stats.P50))
	rec.Low = ptr(Round2(stats.P25))
	rec.High = ptr(Round2(stats.P75))
	rec.Confidence = ConfidenceMedium
	rec.Rationale = RationaleMedianIQR
	return rec
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func currencyOf(comps []Comp) string {
	for _, c := range comps {
		if c.Currency != "" {
			return c.Currency
		}
	}
	return DefaultCurrency
}

func sampleOf(comps []Comp) []CompSample {
	n := min(len(comps), MaxCompsSample)
	sample := make([]CompSample, 0, n)
	for _, c := range comps[:n] {
		sample = append(sample, c.Sample())
	}
	return sample
}

func ptr(v float64) *float64 {
	return &v
}

package pricing

import (
	"math"
	"sort"
)

// Spread correction thresholds. A band narrower than
// max(minAbsoluteSpread, minRelativeSpread*median) is replaced by
// median ± correctionBand.
const (
	minAbsoluteSpread = 2.0
	minRelativeSpread = 0.1
	correctionBand    = 0.1
)

// Stats summarizes the distribution of comparable prices. P25 and P75 hold
// the spread-corrected price band, so P25 <= P50 <= P75 always holds when
// Count > 0.
type Stats struct {
	Count int     `json:"count"`
	P25   float64 `json:"p25,omitempty"`
	P50   float64 `json:"p50,omitempty"`
	P75   float64 `json:"p75,omitempty"`
}

// ComputeStats summarizes prices. Non-positive and non-finite values are
// ignored; the input slice is not modified.
func ComputeStats(prices []float64) Stats {
	sorted := make([]float64, 0, len(prices))
	for _, p := range prices {
		if p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p) {
			sorted = append(sorted, p)
		}
	}
	if len(sorted) == 0 {
		return Stats{Count: 0}
	}
	sort.Float64s(sorted)

	p25 := Percentile(sorted, 0.25)
	p50 := Median(sorted)
	p75 := Percentile(sorted, 0.75)

	low := math.Max(0, p25)
	high := math.Max(low, p75)
	if high-low < math.Max(minAbsoluteSpread, minRelativeSpread*p50) {
		low = math.Max(0, p50*(1-correctionBand))
		high = p50 * (1 + correctionBand)
	}

	return Stats{
		Count: len(sorted),
		P25:   low,
		P50:   p50,
		P75:   high,
	}
}

// Percentile estimates the q-th percentile (0 <= q <= 1) of an ascending
// slice by linear interpolation between the closest ranks.
func Percentile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	k := float64(n-1) * q
	f := int(math.Floor(k))
	c := min(f+1, n-1)
	if f == c {
		return sorted[f]
	}
	return sorted[f]*(float64(c)-k) + sorted[c]*(k-float64(f))
}

// Median returns the middle value of an ascending slice, averaging the two
// middle values when the length is even.
func Median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

package llm

import (
	"context"
	"errors"
	"time"

	"github.com/raine/resale-pricer/internal/pricing"
)

const (
	// DefaultMaxTokens is the completion budget when AI_MAX_TOKENS is unset.
	DefaultMaxTokens = 250
	// maxExtractionTokens caps the attribute extraction budget.
	maxExtractionTokens = 350
	// MinDescribeTokens and MaxDescribeTokens bound the listing copy budget.
	MinDescribeTokens = 64
	MaxDescribeTokens = 800

	// callTimeout bounds a single provider call, image fetching included.
	callTimeout = 45 * time.Second
)

var (
	// ErrMissingAPIKey is returned before any network activity when the
	// provider has no API key configured.
	ErrMissingAPIKey = errors.New("llm: API key not set")
	// ErrEmptyResponse means the model returned no text.
	ErrEmptyResponse = errors.New("llm: empty response")
	// ErrNoJSONObject means the reply did not contain a JSON object.
	ErrNoJSONObject = errors.New("llm: no JSON object in response")
	// ErrIncompleteListing means the listing copy lacked a title or description.
	ErrIncompleteListing = errors.New("llm: response missing title or description")
)

// Usage contains token usage and cost information.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CostUSD      float64
}

// ExtractRequest describes the photos of one item.
type ExtractRequest struct {
	ImageURLs     []string
	TitleHint     string
	CategoryHints []string
	// MaxTokens is the configured completion budget. The extraction call
	// never uses more than 350 tokens regardless.
	MaxTokens int
}

// Extraction is the structured result of an attribute extraction call.
type Extraction struct {
	Attributes pricing.Attributes
	Usage      Usage
	Provider   string
	Model      string
}

// Extractor turns item photos into structured attributes.
type Extractor interface {
	ExtractAttributes(ctx context.Context, req ExtractRequest) (*Extraction, error)
}

// DescribeRequest asks for marketplace copy for the photographed item.
type DescribeRequest struct {
	ImageURLs     []string
	CategoryHints []string
	MaxTokens     int
}

// ListingCopy is a generated listing title and description.
type ListingCopy struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
}

// ListingWriter generates listing copy from photos.
type ListingWriter interface {
	DescribeListing(ctx context.Context, req DescribeRequest) (*ListingCopy, error)
}

// Analyzer is a vision provider able to do both.
type Analyzer interface {
	Extractor
	ListingWriter
	// Name is the provider name: anthropic, openai or gemini.
	Name() string
	// CheckCredentials reports ErrMissingAPIKey without touching the network.
	CheckCredentials() error
}

// ExtractionTokens returns the token budget used for attribute extraction.
func ExtractionTokens(maxTokens int) int {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return min(maxExtractionTokens, maxTokens)
}

// DescribeTokens clamps a listing copy budget into the supported range.
func DescribeTokens(maxTokens int) int {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return max(MinDescribeTokens, min(MaxDescribeTokens, maxTokens))
}

func calculateCost(inputTokens, outputTokens int64, inputPrice, outputPrice float64) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * inputPrice
	outputCost := float64(outputTokens) / 1_000_000 * outputPrice
	return inputCost + outputCost
}

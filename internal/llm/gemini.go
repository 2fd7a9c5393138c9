package llm

import (
	"context"
	"fmt"

	"github.com/raine/resale-pricer/internal/images"
	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini pricing (per million tokens)
const (
	geminiInputPricePerMillion  = 0.30
	geminiOutputPricePerMillion = 2.50
)

// GeminiAnalyzer uses Google's Gemini API. Photos are fetched and sent inline.
type GeminiAnalyzer struct {
	client *genai.Client
	model  string
	images *images.Downloader
}

// NewGeminiAnalyzer creates a new Gemini-based analyzer. An empty API key
// yields an analyzer whose calls fail with ErrMissingAPIKey.
func NewGeminiAnalyzer(ctx context.Context, apiKey, model string, downloader *images.Downloader, httpOptions ...genai.HTTPOptions) (*GeminiAnalyzer, error) {
	if model == "" {
		model = DefaultGeminiModel
	}
	g := &GeminiAnalyzer{model: model, images: downloader}
	if apiKey == "" {
		return g, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if len(httpOptions) > 0 {
		cfg.HTTPOptions = httpOptions[0]
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	g.client = client
	return g, nil
}

func (g *GeminiAnalyzer) Name() string  { return ProviderGemini }
func (g *GeminiAnalyzer) Model() string { return g.model }

func (g *GeminiAnalyzer) CheckCredentials() error {
	if g.client == nil {
		return fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingAPIKey)
	}
	return nil
}

// ExtractAttributes implements Extractor.
func (g *GeminiAnalyzer) ExtractAttributes(ctx context.Context, req ExtractRequest) (*Extraction, error) {
	return extractAttributes(ctx, g, req)
}

// DescribeListing implements ListingWriter.
func (g *GeminiAnalyzer) DescribeListing(ctx context.Context, req DescribeRequest) (*ListingCopy, error) {
	return describeListing(ctx, g, req)
}

func (g *GeminiAnalyzer) generate(ctx context.Context, prompt string, imageURLs []string, maxTokens int) (string, Usage, error) {
	imgs, err := g.images.DownloadAll(ctx, imageURLs)
	if err != nil {
		return "", Usage{}, fmt.Errorf("failed to fetch images: %w", err)
	}

	// Build parts: prompt first, then all images
	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
	}
	for _, img := range imgs {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{Data: img.Data, MIMEType: img.MIMEType},
		})
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		MaxOutputTokens:  int32(maxTokens),
		// Thinking tokens count against MaxOutputTokens
		ThinkingConfig: &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](0)},
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("gemini: generate content: %w", err)
	}

	usage := Usage{}
	if result.UsageMetadata != nil {
		usage.InputTokens = int64(result.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(result.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int64(result.UsageMetadata.TotalTokenCount)
		usage.CostUSD = calculateCost(usage.InputTokens, usage.OutputTokens, geminiInputPricePerMillion, geminiOutputPricePerMillion)
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", usage, nil
	}
	return result.Text(), usage, nil
}

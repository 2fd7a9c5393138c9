package llm

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/raine/resale-pricer/internal/images"
)

const DefaultAnthropicModel = "claude-sonnet-4-5"

// Claude Sonnet pricing (per million tokens)
const (
	anthropicInputPricePerMillion  = 3.00
	anthropicOutputPricePerMillion = 15.00
)

// AnthropicAnalyzer uses the Anthropic Messages API. Anthropic only accepts
// inline image data, so photos are fetched and sent base64-encoded.
type AnthropicAnalyzer struct {
	client sdk.Client
	apiKey string
	model  string
	images *images.Downloader
}

// NewAnthropicAnalyzer creates an Anthropic-backed analyzer. Extra request
// options are applied after the defaults.
func NewAnthropicAnalyzer(apiKey, model string, downloader *images.Downloader, opts ...option.RequestOption) *AnthropicAnalyzer {
	if model == "" {
		model = DefaultAnthropicModel
	}
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &AnthropicAnalyzer{
		client: sdk.NewClient(opts...),
		apiKey: apiKey,
		model:  model,
		images: downloader,
	}
}

func (a *AnthropicAnalyzer) Name() string  { return ProviderAnthropic }
func (a *AnthropicAnalyzer) Model() string { return a.model }

func (a *AnthropicAnalyzer) CheckCredentials() error {
	if a.apiKey == "" {
		return fmt.Errorf("%w: ANTHROPIC_API_KEY", ErrMissingAPIKey)
	}
	return nil
}

// ExtractAttributes implements Extractor.
func (a *AnthropicAnalyzer) ExtractAttributes(ctx context.Context, req ExtractRequest) (*Extraction, error) {
	return extractAttributes(ctx, a, req)
}

// DescribeListing implements ListingWriter.
func (a *AnthropicAnalyzer) DescribeListing(ctx context.Context, req DescribeRequest) (*ListingCopy, error) {
	return describeListing(ctx, a, req)
}

func (a *AnthropicAnalyzer) generate(ctx context.Context, prompt string, imageURLs []string, maxTokens int) (string, Usage, error) {
	imgs, err := a.images.DownloadAll(ctx, imageURLs)
	if err != nil {
		return "", Usage{}, fmt.Errorf("failed to fetch images: %w", err)
	}

	blocks := []sdk.ContentBlockParamUnion{sdk.NewTextBlock(prompt)}
	for _, img := range imgs {
		blocks = append(blocks, sdk.NewImageBlockBase64(img.MIMEType, img.Base64()))
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	msg, err := a.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(a.model),
		MaxTokens: int64(maxTokens),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(blocks...)},
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("anthropic: create message: %w", err)
	}

	var text strings.Builder
	for _, b := range msg.Content {
		if b.Type == "text" {
			text.WriteString(b.Text)
		}
	}

	usage := Usage{
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
		TotalTokens:  msg.Usage.InputTokens + msg.Usage.OutputTokens,
		CostUSD:      calculateCost(msg.Usage.InputTokens, msg.Usage.OutputTokens, anthropicInputPricePerMillion, anthropicOutputPricePerMillion),
	}
	return text.String(), usage, nil
}

package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/raine/resale-pricer/internal/images"
)

const DefaultOpenAIModel = "gpt-4o-mini"

// GPT-4o mini pricing (per million tokens)
const (
	openaiInputPricePerMillion  = 0.15
	openaiOutputPricePerMillion = 0.60
)

// OpenAIAnalyzer uses OpenAI chat completions. Photos are fetched locally and
// sent as data URLs; the source URLs may carry credentials.
type OpenAIAnalyzer struct {
	client openai.Client
	apiKey string
	model  string
	images *images.Downloader
}

// NewOpenAIAnalyzer creates an OpenAI-backed analyzer. Extra request options
// are applied after the defaults.
func NewOpenAIAnalyzer(apiKey, model string, downloader *images.Downloader, opts ...option.RequestOption) *OpenAIAnalyzer {
	if model == "" {
		model = DefaultOpenAIModel
	}
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &OpenAIAnalyzer{
		client: openai.NewClient(opts...),
		apiKey: apiKey,
		model:  model,
		images: downloader,
	}
}

func (o *OpenAIAnalyzer) Name() string  { return ProviderOpenAI }
func (o *OpenAIAnalyzer) Model() string { return o.model }

func (o *OpenAIAnalyzer) CheckCredentials() error {
	if o.apiKey == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingAPIKey)
	}
	return nil
}

// ExtractAttributes implements Extractor.
func (o *OpenAIAnalyzer) ExtractAttributes(ctx context.Context, req ExtractRequest) (*Extraction, error) {
	return extractAttributes(ctx, o, req)
}

// DescribeListing implements ListingWriter.
func (o *OpenAIAnalyzer) DescribeListing(ctx context.Context, req DescribeRequest) (*ListingCopy, error) {
	return describeListing(ctx, o, req)
}

func (o *OpenAIAnalyzer) generate(ctx context.Context, prompt string, imageURLs []string, maxTokens int) (string, Usage, error) {
	imgs, err := o.images.DownloadAll(ctx, imageURLs)
	if err != nil {
		return "", Usage{}, fmt.Errorf("failed to fetch images: %w", err)
	}

	parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(prompt)}
	for _, img := range imgs {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: img.DataURL(),
		}))
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(o.model),
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(parts),
		},
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("openai: create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", Usage{}, errors.New("openai: unexpected response without choices")
	}

	usage := Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		TotalTokens:  resp.Usage.TotalTokens,
		CostUSD:      calculateCost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, openaiInputPricePerMillion, openaiOutputPricePerMillion),
	}
	return resp.Choices[0].Message.Content, usage, nil
}

package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// visionModel is the provider-specific half of an analyzer: one multimodal
// call returning the concatenated reply text.
type visionModel interface {
	Name() string
	Model() string
	CheckCredentials() error
	generate(ctx context.Context, prompt string, imageURLs []string, maxTokens int) (string, Usage, error)
}

func extractAttributes(ctx context.Context, m visionModel, req ExtractRequest) (*Extraction, error) {
	if err := m.CheckCredentials(); err != nil {
		return nil, err
	}
	if len(req.ImageURLs) == 0 {
		return nil, errors.New("no images provided")
	}

	text, usage, err := m.generate(ctx, buildExtractPrompt(req.TitleHint, req.CategoryHints), req.ImageURLs, ExtractionTokens(req.MaxTokens))
	if err != nil {
		return nil, err
	}
	logCall(m, "attribute extraction llm call", len(req.ImageURLs), usage)

	attrs, err := parseAttributes(text)
	if err != nil {
		return nil, err
	}

	return &Extraction{
		Attributes: attrs,
		Usage:      usage,
		Provider:   m.Name(),
		Model:      m.Model(),
	}, nil
}

func describeListing(ctx context.Context, m visionModel, req DescribeRequest) (*ListingCopy, error) {
	if err := m.CheckCredentials(); err != nil {
		return nil, err
	}
	if len(req.ImageURLs) == 0 {
		return nil, errors.New("no images provided")
	}

	text, usage, err := m.generate(ctx, buildDescribePrompt(req.CategoryHints), req.ImageURLs, DescribeTokens(req.MaxTokens))
	if err != nil {
		return nil, err
	}
	logCall(m, "listing copy llm call", len(req.ImageURLs), usage)

	title, description, err := parseListingCopy(text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Name(), err)
	}

	return &ListingCopy{
		Title:       title,
		Description: description,
		Provider:    m.Name(),
		Model:       m.Model(),
	}, nil
}

func logCall(m visionModel, msg string, imageCount int, usage Usage) {
	log.Info().
		Str("provider", m.Name()).
		Str("model", m.Model()).
		Int("imageCount", imageCount).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Msg(msg)
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raine/resale-pricer/internal/images"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
)

// ErrUnknownProvider is returned for a provider name outside the supported set.
var ErrUnknownProvider = errors.New("llm: unknown provider")

// Config selects the default provider and carries credentials for all of them.
type Config struct {
	Provider        string
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIModel     string
	GeminiAPIKey    string
	GeminiModel     string
}

// Providers holds one analyzer per supported provider so callers can
// override the default per request.
type Providers struct {
	defaultName string
	byName      map[string]Analyzer
}

// NewProviders builds every provider. Missing keys are not an error here;
// the affected provider reports ErrMissingAPIKey when used.
func NewProviders(ctx context.Context, cfg Config, downloader *images.Downloader) (*Providers, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		name = ProviderAnthropic
	}

	gemini, err := NewGeminiAnalyzer(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, downloader)
	if err != nil {
		return nil, err
	}

	p := NewProvidersFrom(name,
		NewAnthropicAnalyzer(cfg.AnthropicAPIKey, cfg.AnthropicModel, downloader),
		NewOpenAIAnalyzer(cfg.OpenAIAPIKey, cfg.OpenAIModel, downloader),
		gemini,
	)
	if _, ok := p.byName[name]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	return p, nil
}

// NewProvidersFrom assembles a registry from ready analyzers.
func NewProvidersFrom(defaultName string, analyzers ...Analyzer) *Providers {
	p := &Providers{defaultName: defaultName, byName: make(map[string]Analyzer, len(analyzers))}
	for _, a := range analyzers {
		p.byName[a.Name()] = a
	}
	return p
}

// DefaultName returns the configured provider name.
func (p *Providers) DefaultName() string {
	return p.defaultName
}

// Default returns the configured provider.
func (p *Providers) Default() Analyzer {
	return p.byName[p.defaultName]
}

// Get returns the named provider, or the default when name is empty.
func (p *Providers) Get(name string) (Analyzer, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return p.Default(), nil
	}
	a, ok := p.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return a, nil
}

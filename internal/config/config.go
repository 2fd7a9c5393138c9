// Package config reads the service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/raine/resale-pricer/internal/ebay"
	"github.com/raine/resale-pricer/internal/llm"
	"github.com/rs/zerolog"
)

type Config struct {
	AIProvider  string
	AIMaxTokens int

	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIModel     string
	GeminiAPIKey    string
	GeminiModel     string

	EbayEnv           string
	EbayClientID      string
	EbayClientSecret  string
	EbayMarketplaceID string
	EbayRatePerSecond float64

	ServerAddr         string
	CORSAllowedOrigins []string

	DBPath   string
	TokenKey string

	BotToken        string
	AdminTelegramID int64

	LogLevel zerolog.Level
}

// Load reads the environment. Only malformed values are errors; absent
// credentials are reported later by the component that needs them.
func Load() (*Config, error) {
	cfg := &Config{
		AIProvider:        strings.ToLower(getEnv("AI_PROVIDER", llm.ProviderAnthropic)),
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:    getEnv("ANTHROPIC_MODEL", llm.DefaultAnthropicModel),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       getEnv("OPENAI_MODEL", llm.DefaultOpenAIModel),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       getEnv("GEMINI_MODEL", llm.DefaultGeminiModel),
		EbayEnv:           getEnv("EBAY_ENV", "production"),
		EbayClientID:      os.Getenv("EBAY_CLIENT_ID"),
		EbayClientSecret:  os.Getenv("EBAY_CLIENT_SECRET"),
		EbayMarketplaceID: getEnv("EBAY_MARKETPLACE_ID", ebay.DefaultMarketplaceID),
		ServerAddr:        getEnv("SERVER_ADDR", ":8000"),
		DBPath:            getEnv("PRICER_DB_PATH", "pricer.db"),
		TokenKey:          os.Getenv("TOKEN_KEY"),
		BotToken:          os.Getenv("BOT_TOKEN"),
	}

	var err error
	if cfg.AIMaxTokens, err = getEnvInt("AI_MAX_TOKENS", llm.DefaultMaxTokens); err != nil {
		return nil, err
	}
	if cfg.AIMaxTokens <= 0 {
		return nil, fmt.Errorf("AI_MAX_TOKENS must be positive, got %d", cfg.AIMaxTokens)
	}

	rps := getEnv("EBAY_RATE_PER_SECOND", "")
	cfg.EbayRatePerSecond = ebay.DefaultRatePerSecond
	if rps != "" {
		if cfg.EbayRatePerSecond, err = strconv.ParseFloat(rps, 64); err != nil || cfg.EbayRatePerSecond <= 0 {
			return nil, fmt.Errorf("invalid EBAY_RATE_PER_SECOND %q", rps)
		}
	}

	cfg.CORSAllowedOrigins = splitList(getEnv("CORS_ALLOWED_ORIGINS", "*"))

	if adminID := os.Getenv("ADMIN_TELEGRAM_ID"); adminID != "" {
		if cfg.AdminTelegramID, err = strconv.ParseInt(adminID, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID %q: %w", adminID, err)
		}
	}

	cfg.LogLevel = zerolog.InfoLevel
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		if cfg.LogLevel, err = zerolog.ParseLevel(strings.ToLower(lvl)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", lvl, err)
		}
	}

	return cfg, nil
}

// LLMConfig returns the provider settings.
func (c *Config) LLMConfig() llm.Config {
	return llm.Config{
		Provider:        c.AIProvider,
		AnthropicAPIKey: c.AnthropicAPIKey,
		AnthropicModel:  c.AnthropicModel,
		OpenAIAPIKey:    c.OpenAIAPIKey,
		OpenAIModel:     c.OpenAIModel,
		GeminiAPIKey:    c.GeminiAPIKey,
		GeminiModel:     c.GeminiModel,
	}
}

// EbayOpts returns the client options without a token store.
func (c *Config) EbayOpts() ebay.ClientOpts {
	return ebay.ClientOpts{
		Env:           c.EbayEnv,
		ClientID:      c.EbayClientID,
		ClientSecret:  c.EbayClientSecret,
		MarketplaceID: c.EbayMarketplaceID,
		RatePerSecond: c.EbayRatePerSecond,
	}
}

// BotEnabled reports whether the Telegram front end is configured.
func (c *Config) BotEnabled() bool {
	return c.BotToken != ""
}

// MissingForPricing lists the variables a pricing run needs but that are
// not set.
func (c *Config) MissingForPricing() []string {
	var missing []string
	switch c.AIProvider {
	case llm.ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			missing = append(missing, "ANTHROPIC_API_KEY")
		}
	case llm.ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	case llm.ProviderGemini:
		if c.GeminiAPIKey == "" {
			missing = append(missing, "GEMINI_API_KEY")
		}
	}
	if c.EbayClientID == "" {
		missing = append(missing, "EBAY_CLIENT_ID")
	}
	if c.EbayClientSecret == "" {
		missing = append(missing, "EBAY_CLIENT_SECRET")
	}
	return missing
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Package app wires the configured components together. The HTTP server,
// the Telegram bot and the CLI all start from an Env.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/raine/resale-pricer/internal/config"
	"github.com/raine/resale-pricer/internal/ebay"
	"github.com/raine/resale-pricer/internal/images"
	"github.com/raine/resale-pricer/internal/llm"
	"github.com/raine/resale-pricer/internal/pipeline"
	"github.com/raine/resale-pricer/internal/storage"
	"github.com/rs/zerolog/log"
)

type Env struct {
	Config     *config.Config
	Downloader *images.Downloader
	Providers  *llm.Providers
	Ebay       *ebay.Client
	Pipeline   *pipeline.Pipeline
	// Store is nil unless TOKEN_KEY is set.
	Store *storage.SQLiteStore
}

// Build creates every component from cfg. Missing credentials do not fail
// the build; pricing runs report them as configuration errors.
func Build(ctx context.Context, cfg *config.Config) (*Env, error) {
	env := &Env{
		Config:     cfg,
		Downloader: images.NewDownloader(),
	}

	providers, err := llm.NewProviders(ctx, cfg.LLMConfig(), env.Downloader)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm providers: %w", err)
	}
	env.Providers = providers

	ebayOpts := cfg.EbayOpts()
	if cfg.TokenKey != "" {
		store, err := openStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		env.Store = store
		ebayOpts.TokenStore = store
	}
	env.Ebay = ebay.NewClient(ebayOpts)

	env.Pipeline = pipeline.New(providers.Default(), env.Ebay, pipeline.Options{
		MaxTokens: cfg.AIMaxTokens,
		Currency:  currencyFor(cfg.EbayMarketplaceID),
	})

	if missing := cfg.MissingForPricing(); len(missing) > 0 {
		log.Warn().Strs("missing", missing).Msg("pricing credentials not configured")
	}
	log.Info().
		Str("provider", providers.DefaultName()).
		Str("ebayEnv", cfg.EbayEnv).
		Str("marketplace", cfg.EbayMarketplaceID).
		Bool("tokenStore", env.Store != nil).
		Msg("components initialized")

	return env, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*storage.SQLiteStore, error) {
	key, err := storage.DeriveKey(cfg.TokenKey)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	store, err := storage.NewSQLiteStore(cfg.DBPath, key)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if n, err := store.DeleteExpiredTokens(ctx, time.Now()); err != nil {
		log.Warn().Err(err).Msg("failed to delete expired tokens")
	} else if n > 0 {
		log.Info().Int64("count", n).Msg("deleted expired tokens")
	}
	return store, nil
}

// Close releases the database, if one was opened.
func (e *Env) Close() error {
	if e.Store != nil {
		return e.Store.Close()
	}
	return nil
}

var marketplaceCurrency = map[string]string{
	"EBAY_US": "USD",
	"EBAY_GB": "GBP",
	"EBAY_DE": "EUR",
	"EBAY_FR": "EUR",
	"EBAY_IT": "EUR",
	"EBAY_ES": "EUR",
	"EBAY_AU": "AUD",
	"EBAY_CA": "CAD",
}

// currencyFor returns the currency assumed for items priced without one.
func currencyFor(marketplaceID string) string {
	if c, ok := marketplaceCurrency[marketplaceID]; ok {
		return c
	}
	return ""
}

// Package pipeline runs the photo-to-price pipeline:
// extract attributes, fetch comps, summarize prices, recommend.
package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/raine/resale-pricer/internal/ebay"
	"github.com/raine/resale-pricer/internal/llm"
	"github.com/raine/resale-pricer/internal/pricing"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MaxImages is the most photos a single run accepts.
const MaxImages = 6

// CompSearcher retrieves comparable listings for a query.
type CompSearcher interface {
	SearchComps(ctx context.Context, query string, opts ebay.SearchOptions) ([]pricing.Comp, error)
}

// credentialChecker is implemented by collaborators that can tell up front
// whether they are configured.
type credentialChecker interface {
	CheckCredentials() error
}

// Request is one pricing request.
type Request struct {
	ImageURLs     []string `json:"image_urls" validate:"required,min=1,max=6,dive,required,httpurl"`
	TitleHint     string   `json:"title_hint,omitempty"`
	CategoryHints []string `json:"category_hints,omitempty"`
}

type Options struct {
	// MaxTokens is the configured completion budget (AI_MAX_TOKENS).
	MaxTokens int
	CompLimit int
	Currency  string
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		MaxTokens: llm.DefaultMaxTokens,
		CompLimit: ebay.DefaultLimit,
		Currency:  pricing.DefaultCurrency,
	}
}

type Pipeline struct {
	extractor llm.Extractor
	comps     CompSearcher
	opts      Options
	validate  *validator.Validate
}

func New(extractor llm.Extractor, comps CompSearcher, opts Options) *Pipeline {
	def := DefaultOptions()
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	if opts.CompLimit <= 0 {
		opts.CompLimit = def.CompLimit
	}
	if opts.Currency == "" {
		opts.Currency = def.Currency
	}
	return &Pipeline{
		extractor: extractor,
		comps:     comps,
		opts:      opts,
		validate:  NewValidator(),
	}
}

// NewValidator returns a validator that knows the httpurl tag.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("httpurl", func(fl validator.FieldLevel) bool {
		return IsHTTPURL(fl.Field().String())
	})
	return v
}

// IsHTTPURL reports whether s is an absolute http or https URL.
func IsHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Run executes every stage and returns the recommendation.
func (p *Pipeline) Run(ctx context.Context, req Request) (*pricing.Recommendation, error) {
	st, err := p.RunState(ctx, req)
	if err != nil {
		return nil, err
	}
	return st.Recommendation, nil
}

// RunState executes every stage and returns the full accumulated state.
// Any stage error ends the run; no partial result is returned.
func (p *Pipeline) RunState(ctx context.Context, req Request) (*State, error) {
	if err := p.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := p.preflight(); err != nil {
		return nil, err
	}

	st := newState(req)
	logger := log.With().Str("runId", st.RunID).Logger()
	logger.Info().Int("imageCount", len(st.ImageURLs)).Msg("pricing run started")

	for st.Stage != StageDone {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		started := time.Now()
		if err := p.step(ctx, st); err != nil {
			logger.Warn().Err(err).Str("stage", st.Stage.String()).Msg("pricing run failed")
			return nil, err
		}
		logger.Debug().
			Str("stage", st.Stage.String()).
			Dur("took", time.Since(started)).
			Msg("stage complete")
		st.Stage = st.Stage.Next()
	}

	logResult(logger, st)
	return st, nil
}

// preflight checks collaborator credentials before any stage runs.
func (p *Pipeline) preflight() error {
	for _, c := range []any{p.extractor, p.comps} {
		checker, ok := c.(credentialChecker)
		if !ok {
			continue
		}
		if err := checker.CheckCredentials(); err != nil {
			return &ConfigurationError{Err: err}
		}
	}
	return nil
}

func (p *Pipeline) step(ctx context.Context, st *State) error {
	switch st.Stage {
	case StageExtract:
		return p.extract(ctx, st)
	case StageFetchComps:
		return p.fetchComps(ctx, st)
	case StageStats:
		if st.Stats != nil {
			return errStageOutputPresent
		}
		stats := pricing.ComputeStats(pricing.PricesOf(st.Comps))
		st.Stats = &stats
		return nil
	case StageRecommend:
		if st.Recommendation != nil {
			return errStageOutputPresent
		}
		rec := pricing.Recommend(*st.Stats, st.Comps)
		st.Recommendation = &rec
		return nil
	}
	return fmt.Errorf("pipeline: unknown stage %s", st.Stage)
}

func (p *Pipeline) extract(ctx context.Context, st *State) error {
	if st.Extracted != nil || st.Query != "" {
		return errStageOutputPresent
	}

	ext, err := p.extractor.ExtractAttributes(ctx, llm.ExtractRequest{
		ImageURLs:     st.ImageURLs,
		TitleHint:     st.TitleHint,
		CategoryHints: st.CategoryHints,
		MaxTokens:     p.opts.MaxTokens,
	})
	if err != nil {
		if isCredentialError(err) {
			return &ConfigurationError{Err: err}
		}
		return &ExtractionError{Err: err}
	}

	attrs := ext.Attributes
	st.Extracted = &attrs
	st.Query = pricing.BuildQuery(attrs, st.TitleHint)
	return nil
}

func (p *Pipeline) fetchComps(ctx context.Context, st *State) error {
	if st.Comps != nil {
		return errStageOutputPresent
	}

	comps, err := p.comps.SearchComps(ctx, st.Query, ebay.SearchOptions{
		Limit:    p.opts.CompLimit,
		Currency: p.opts.Currency,
	})
	if err != nil {
		if isCredentialError(err) {
			return &ConfigurationError{Err: err}
		}
		return &RetrievalError{Err: err}
	}
	if comps == nil {
		comps = []pricing.Comp{}
	}
	st.Comps = comps
	return nil
}

func logResult(logger zerolog.Logger, st *State) {
	rec := st.Recommendation
	evt := logger.Info().
		Str("query", st.Query).
		Int("comps", len(st.Comps)).
		Str("confidence", string(rec.Confidence))
	if rec.SuggestedPrice != nil {
		evt = evt.Float64("suggestedPrice", *rec.SuggestedPrice)
	}
	evt.Str("currency", rec.Currency).Msg("pricing run complete")
}

// Package server exposes the pricing pipeline and listing copy generation
// over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/raine/resale-pricer/internal/llm"
	"github.com/raine/resale-pricer/internal/pipeline"
	"github.com/raine/resale-pricer/internal/pricing"
	"github.com/rs/zerolog/log"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// Pricer runs the pricing pipeline.
type Pricer interface {
	Run(ctx context.Context, req pipeline.Request) (*pricing.Recommendation, error)
}

// Providers looks up vision providers by name.
type Providers interface {
	DefaultName() string
	Get(name string) (llm.Analyzer, error)
}

type Options struct {
	Addr           string
	AllowedOrigins []string
	// MaxTokens is the default completion budget for listing copy.
	MaxTokens int
}

type Server struct {
	pricer    Pricer
	providers Providers
	opts      Options
	validate  *validator.Validate
}

func New(pricer Pricer, providers Providers, opts Options) *Server {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = llm.DefaultMaxTokens
	}
	return &Server{
		pricer:    pricer,
		providers: providers,
		opts:      opts,
		validate:  pipeline.NewValidator(),
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/ml", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/price-recommendation", s.handlePriceRecommendation)
		r.Post("/analyze-listing", s.handleAnalyzeListing)
	})
	return r
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.opts.Addr).Msg("starting http server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"provider": s.providers.DefaultName(),
	})
}

func (s *Server) handlePriceRecommendation(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	rec, err := s.pricer.Run(r.Context(), req)
	if err != nil {
		writeError(w, pricingStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// pricingStatus maps a pipeline error to an HTTP status.
func pricingStatus(err error) int {
	var (
		cfgErr *pipeline.ConfigurationError
		extErr *pipeline.ExtractionError
		retErr *pipeline.RetrievalError
	)
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.As(err, &cfgErr):
		return http.StatusInternalServerError
	case errors.As(err, &extErr), errors.As(err, &retErr):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

type analyzeListingRequest struct {
	ImageURLs     []string `json:"image_urls" validate:"required,min=1,max=6,dive,required,httpurl"`
	CategoryHints []string `json:"category_hints,omitempty"`
	MaxTokens     *int     `json:"max_tokens,omitempty" validate:"omitempty,min=64,max=800"`
	Provider      string   `json:"provider,omitempty"`
}

func (s *Server) handleAnalyzeListing(w http.ResponseWriter, r *http.Request) {
	var req analyzeListingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writer, err := s.providers.Get(req.Provider)
	if err != nil {
		writeError(w, http.StatusBadRequest, "provider must be anthropic, openai or gemini")
		return
	}
	if err := writer.CheckCredentials(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	maxTokens := s.opts.MaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	listing, err := writer.DescribeListing(r.Context(), llm.DescribeRequest{
		ImageURLs:     req.ImageURLs,
		CategoryHints: req.CategoryHints,
		MaxTokens:     maxTokens,
	})
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, llm.ErrMissingAPIKey) {
			status = http.StatusInternalServerError
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

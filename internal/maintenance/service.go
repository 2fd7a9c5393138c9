// Package maintenance runs the background jobs of the service: pruning
// expired tokens from the database and keeping the eBay token warm.
package maintenance

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// PruneInterval is how often expired tokens are deleted.
	PruneInterval = time.Hour

	// WarmInterval is how often the eBay token is checked. The token source
	// only refreshes when the cached token is about to expire.
	WarmInterval = 10 * time.Minute
)

// TokenPruner deletes stored tokens that expired before now.
type TokenPruner interface {
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// TokenWarmer is an eBay token source.
type TokenWarmer interface {
	CheckCredentials() error
	Token(ctx context.Context) (string, error)
}

// Service is the background maintenance loop. Either dependency may be nil.
type Service struct {
	pruner TokenPruner
	warmer TokenWarmer

	pruneInterval time.Duration
	warmInterval  time.Duration
	now           func() time.Time
}

// NewService creates a new maintenance service.
func NewService(pruner TokenPruner, warmer TokenWarmer) *Service {
	return &Service{
		pruner:        pruner,
		warmer:        warmer,
		pruneInterval: PruneInterval,
		warmInterval:  WarmInterval,
		now:           time.Now,
	}
}

// Run starts the loop. It blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	warm := s.warmer != nil && s.warmer.CheckCredentials() == nil
	log.Info().
		Bool("prune", s.pruner != nil).
		Bool("warm", warm).
		Msg("starting maintenance service")

	if warm {
		s.warmToken(ctx)
	}

	pruneTicker := time.NewTicker(s.pruneInterval)
	defer pruneTicker.Stop()

	warmTicker := time.NewTicker(s.warmInterval)
	defer warmTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("maintenance service stopped")
			return
		case <-pruneTicker.C:
			s.pruneTokens(ctx)
		case <-warmTicker.C:
			if warm {
				s.warmToken(ctx)
			}
		}
	}
}

func (s *Service) pruneTokens(ctx context.Context) {
	if s.pruner == nil {
		return
	}
	n, err := s.pruner.DeleteExpiredTokens(ctx, s.now())
	if err != nil {
		log.Error().Err(err).Msg("failed to prune expired tokens")
		return
	}
	if n > 0 {
		log.Info().Int64("count", n).Msg("pruned expired tokens")
	}
}

func (s *Service) warmToken(ctx context.Context) {
	if _, err := s.warmer.Token(ctx); err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Msg("failed to refresh ebay token")
	}
}

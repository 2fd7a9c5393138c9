package pipeline

import (
	"errors"
	"fmt"

	"github.com/raine/resale-pricer/internal/ebay"
	"github.com/raine/resale-pricer/internal/llm"
)

// ErrInvalidRequest is wrapped by every request validation failure.
var ErrInvalidRequest = errors.New("invalid request")

// ConfigurationError means a collaborator is missing credentials. No stage
// has run when it is returned from preflight.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ExtractionError means the attribute extractor failed or returned an
// unusable reply.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// RetrievalError means the comparable-listing search failed.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("comp retrieval failed: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// errStageOutputPresent guards the additive state: a stage never runs twice.
var errStageOutputPresent = errors.New("pipeline: stage output already populated")

func isCredentialError(err error) bool {
	return errors.Is(err, llm.ErrMissingAPIKey) || errors.Is(err, ebay.ErrMissingCredentials)
}

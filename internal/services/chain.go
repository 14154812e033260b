package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/planmyfest/weather-backend/internal/dataset"
)

var (
	// ErrAllProvidersFailed is returned when every provider in a chain has
	// been attempted without success.
	ErrAllProvidersFailed = errors.New("services: all providers failed")

	// ErrInvalidQuery marks requests that no provider could ever serve.
	ErrInvalidQuery = errors.New("services: invalid query")
)

// Provider is one source of point weather data.
type Provider interface {
	Label() string
	Fetch(ctx context.Context, q dataset.Query) (*dataset.Dataset, error)
}

// Chain tries providers in order and returns the first answer. Every
// provider gets exactly one attempt per request; the chain is the retry
// policy.
type Chain struct {
	providers []Provider
	logger    *zap.Logger
}

func NewChain(logger *zap.Logger, providers ...Provider) *Chain {
	return &Chain{providers: providers, logger: logger}
}

// Fetch walks the chain. The returned dataset's Meta.Source names the
// provider that answered. On terminal failure the error wraps
// ErrAllProvidersFailed together with every provider's failure.
func (c *Chain) Fetch(ctx context.Context, q dataset.Query) (*dataset.Dataset, error) {
	if len(c.providers) == 0 {
		return nil, ErrAllProvidersFailed
	}

	var errs error
	for _, p := range c.providers {
		ds, err := p.Fetch(ctx, q)
		if err == nil {
			c.logger.Info("Provider answered",
				zap.String("source", p.Label()),
				zap.Int("samples", len(ds.Times)))
			return ds, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("Provider failed, trying next",
			zap.String("source", p.Label()),
			zap.Error(err))
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", p.Label(), err))
	}
	return nil, fmt.Errorf("%w: %w", ErrAllProvidersFailed, errs)
}

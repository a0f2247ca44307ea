// Package quotesource fetches point-in-time quotes for batches of symbols
// from external market-data APIs.
package quotesource

import (
	"context"
	"fmt"
	"log/slog"

	"stockwatch/internal/domain"
)

//go:generate mockgen -source=source.go -destination=mocks/mock_source.go -package=mocks

// Source resolves quotes for a small set of symbols. Symbols the upstream
// cannot resolve are omitted from the result; a hard failure (network error,
// timeout, rate limiting) is returned as an error.
type Source interface {
	Name() string
	Fetch(ctx context.Context, symbols []string) ([]domain.Quote, error)
}

// ---------------------------------------------------------------------------
// Chain: first source with a non-empty answer wins.
// ---------------------------------------------------------------------------

// Chain tries each source in order and returns the first non-empty result.
type Chain struct {
	sources []Source
	log     *slog.Logger
}

// NewChain returns a Chain over the given sources.
func NewChain(sources ...Source) *Chain {
	return &Chain{sources: sources, log: slog.Default().With("source", "chain")}
}

// Name returns the chain identifier.
func (c *Chain) Name() string { return "chain" }

// Fetch asks each source in turn. An empty result from every source is not an
// error; it is returned as an empty slice.
func (c *Chain) Fetch(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	if len(c.sources) == 0 {
		return nil, fmt.Errorf("no quote sources configured")
	}

	var lastErr error
	failed := 0
	for _, s := range c.sources {
		quotes, err := s.Fetch(ctx, symbols)
		if err == nil && len(quotes) > 0 {
			return quotes, nil
		}
		if err != nil {
			c.log.Debug("source failed", "name", s.Name(), "err", err)
			lastErr = err
			failed++
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	if failed == len(c.sources) {
		return nil, fmt.Errorf("all quote sources failed: %w", lastErr)
	}
	return nil, nil
}

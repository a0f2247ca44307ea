package quotesource

import (
	"context"
	"time"

	"stockwatch/internal/domain"
	"stockwatch/internal/util"
)

// RateLimited gates calls to an underlying Source through a token bucket and
// bounds each call with a timeout.
type RateLimited struct {
	source  Source
	limiter *util.RateLimiter
	timeout time.Duration
}

// NewRateLimited wraps s. A nil limiter disables gating; a zero timeout
// disables the per-call deadline.
func NewRateLimited(s Source, limiter *util.RateLimiter, timeout time.Duration) *RateLimited {
	return &RateLimited{source: s, limiter: limiter, timeout: timeout}
}

// Name returns the wrapped source's name.
func (r *RateLimited) Name() string { return r.source.Name() }

// Fetch waits for a token and then calls the wrapped source.
func (r *RateLimited) Fetch(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.source.Fetch(ctx, symbols)
}

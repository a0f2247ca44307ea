package util

import (
	"context"
	"math/rand/v2"
	"time"
)

// BackoffKind selects how the delay grows between attempts.
type BackoffKind string

const (
	BackoffConstant    BackoffKind = "constant"
	BackoffLinear      BackoffKind = "linear"
	BackoffExponential BackoffKind = "exponential"
)

// Backoff describes the wait before each retry. Attempt numbers are 1-based:
// Delay(1) is the wait after the first failure.
type Backoff struct {
	Kind   BackoffKind
	Base   time.Duration
	Max    time.Duration // 0 means no cap
	Jitter float64       // fraction of the delay added at random, 0..1
}

// Delay returns the wait after the given failed attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 || attempt < 1 {
		return 0
	}

	d := b.Base
	switch b.Kind {
	case BackoffLinear:
		d = b.Base * time.Duration(attempt)
	case BackoffExponential:
		for i := 1; i < attempt; i++ {
			d *= 2
			if b.Max > 0 && d >= b.Max {
				break
			}
		}
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return AddJitter(d, b.Jitter)
}

// AddJitter extends d by a random amount in [0, frac*d).
func AddJitter(d time.Duration, frac float64) time.Duration {
	if frac <= 0 || d <= 0 {
		return d
	}
	if frac > 1 {
		frac = 1
	}
	return d + time.Duration(rand.Float64()*frac*float64(d))
}

// Retry calls fn up to maxAttempts times, waiting b.Delay(attempt) after
// each failure. fn receives the 1-based attempt number. It returns nil on
// the first success, the last error if every attempt fails, or the context
// error if ctx is cancelled while waiting.
func Retry(ctx context.Context, maxAttempts int, b Backoff, fn func(attempt int) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn(attempt)
		if err == nil {
			return nil
		}

		// Don't sleep after the last failed attempt.
		if attempt < maxAttempts {
			if serr := Sleep(ctx, b.Delay(attempt)); serr != nil {
				return serr
			}
		}
	}
	return err
}

// Sleep waits for d or until ctx is cancelled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package loader

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"stockwatch/internal/util"
)

// Config holds the static parameters of one loader. None of them adapt to
// observed server behaviour during a run.
type Config struct {
	// StoreKey names this loader's entry in the progress store.
	StoreKey string

	// BatchSize is the number of symbols per source call.
	BatchSize int
	// Concurrency is the number of batches allowed in flight at once. 1
	// processes batches strictly in sequence.
	Concurrency int
	// DelayBetweenBatches is waited before scheduling each batch after the
	// first, extended by Jitter.
	DelayBetweenBatches time.Duration
	// Jitter is the random fraction (0..1) added to every delay.
	Jitter float64

	// MaxRetries is the number of attempts per batch, including the first.
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	Backoff       util.BackoffKind

	// ConsecutiveFailureCeiling aborts the run after this many batches in a
	// row exhaust their retries.
	ConsecutiveFailureCeiling int

	// MaxAge is how long a checkpoint stays usable. Older checkpoints are
	// treated as absent.
	MaxAge time.Duration
	// SufficiencyThreshold is the fraction (0..1] of requested symbols the
	// checkpoint must already cover for Load to return it without fetching.
	SufficiencyThreshold float64
}

const (
	defaultMaxAge        = 12 * time.Hour
	defaultMaxRetryDelay = 30 * time.Second
	defaultJitter        = 0.2
)

// profiles are the named presets. Lookups return copies.
var profiles = map[string]Config{
	"conservative": {
		StoreKey:                  "quotes-conservative",
		BatchSize:                 1,
		Concurrency:               1,
		DelayBetweenBatches:       2 * time.Second,
		Jitter:                    defaultJitter,
		MaxRetries:                3,
		RetryDelay:                2 * time.Second,
		MaxRetryDelay:             defaultMaxRetryDelay,
		Backoff:                   util.BackoffLinear,
		ConsecutiveFailureCeiling: 10,
		MaxAge:                    24 * time.Hour,
		SufficiencyThreshold:      1,
	},
	"balanced": {
		StoreKey:                  "quotes-balanced",
		BatchSize:                 5,
		Concurrency:               1,
		DelayBetweenBatches:       time.Second,
		Jitter:                    defaultJitter,
		MaxRetries:                3,
		RetryDelay:                time.Second,
		MaxRetryDelay:             defaultMaxRetryDelay,
		Backoff:                   util.BackoffExponential,
		ConsecutiveFailureCeiling: 8,
		MaxAge:                    defaultMaxAge,
		SufficiencyThreshold:      1,
	},
	"aggressive": {
		StoreKey:                  "quotes-aggressive",
		BatchSize:                 10,
		Concurrency:               4,
		DelayBetweenBatches:       250 * time.Millisecond,
		Jitter:                    defaultJitter,
		MaxRetries:                2,
		RetryDelay:                500 * time.Millisecond,
		MaxRetryDelay:             10 * time.Second,
		Backoff:                   util.BackoffExponential,
		ConsecutiveFailureCeiling: 5,
		MaxAge:                    6 * time.Hour,
		SufficiencyThreshold:      1,
	},
}

// Profile returns the named preset.
func Profile(name string) (Config, error) {
	cfg, ok := profiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Config{}, fmt.Errorf("unknown loader profile %q (want one of %s)", name, strings.Join(ProfileNames(), ", "))
	}
	return cfg, nil
}

// ProfileNames lists the preset names in sorted order.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate reports the first parameter that would make a run misbehave.
func (c Config) Validate() error {
	switch {
	case c.StoreKey == "":
		return fmt.Errorf("loader: store key is empty")
	case c.BatchSize < 1:
		return fmt.Errorf("loader: batch size %d < 1", c.BatchSize)
	case c.Concurrency < 1:
		return fmt.Errorf("loader: concurrency %d < 1", c.Concurrency)
	case c.MaxRetries < 1:
		return fmt.Errorf("loader: max retries %d < 1", c.MaxRetries)
	case c.ConsecutiveFailureCeiling < 1:
		return fmt.Errorf("loader: consecutive failure ceiling %d < 1", c.ConsecutiveFailureCeiling)
	case c.DelayBetweenBatches < 0 || c.RetryDelay < 0:
		return fmt.Errorf("loader: negative delay")
	case c.Jitter < 0 || c.Jitter > 1:
		return fmt.Errorf("loader: jitter %v outside [0, 1]", c.Jitter)
	case c.MaxAge <= 0:
		return fmt.Errorf("loader: max age must be positive")
	case c.SufficiencyThreshold <= 0 || c.SufficiencyThreshold > 1:
		return fmt.Errorf("loader: sufficiency threshold %v outside (0, 1]", c.SufficiencyThreshold)
	}
	switch c.Backoff {
	case util.BackoffConstant, util.BackoffLinear, util.BackoffExponential:
	default:
		return fmt.Errorf("loader: unknown backoff %q", c.Backoff)
	}
	return nil
}

func (c Config) retryBackoff() util.Backoff {
	return util.Backoff{
		Kind:   c.Backoff,
		Base:   c.RetryDelay,
		Max:    c.MaxRetryDelay,
		Jitter: c.Jitter,
	}
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"stockwatch/internal/config"
	"stockwatch/internal/loader"
	"stockwatch/internal/quotesource"
	"stockwatch/internal/store"
	"stockwatch/internal/util"
)

// newLogger writes to stderr, and additionally to cfg.File when set. The
// returned close function releases the log file.
func newLogger(cfg config.Logging) (*slog.Logger, func() error, error) {
	var w io.Writer = os.Stderr
	closeFn := func() error { return nil }

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closeFn = f.Close
	}
	return util.NewLogger(w, cfg.Level, cfg.Format), closeFn, nil
}

// loaderConfig resolves the named profile and applies the overrides set in
// the config file.
func loaderConfig(lc config.LoaderConfig) (loader.Config, error) {
	name := lc.Profile
	if name == "" {
		name = "balanced"
	}
	cfg, err := loader.Profile(name)
	if err != nil {
		return loader.Config{}, err
	}

	if lc.StoreKey != "" {
		cfg.StoreKey = lc.StoreKey
	}
	if lc.BatchSize > 0 {
		cfg.BatchSize = lc.BatchSize
	}
	if lc.Concurrency > 0 {
		cfg.Concurrency = lc.Concurrency
	}
	if lc.DelayBetweenBatches > 0 {
		cfg.DelayBetweenBatches = lc.DelayBetweenBatches
	}
	if lc.Jitter != nil {
		cfg.Jitter = *lc.Jitter
	}
	if lc.MaxRetries > 0 {
		cfg.MaxRetries = lc.MaxRetries
	}
	if lc.RetryDelay > 0 {
		cfg.RetryDelay = lc.RetryDelay
	}
	if lc.Backoff != "" {
		cfg.Backoff = util.BackoffKind(strings.ToLower(lc.Backoff))
	}
	if lc.ConsecutiveFailureCeiling > 0 {
		cfg.ConsecutiveFailureCeiling = lc.ConsecutiveFailureCeiling
	}
	if lc.MaxAge > 0 {
		cfg.MaxAge = lc.MaxAge
	}
	if lc.SufficiencyThreshold != nil {
		cfg.SufficiencyThreshold = *lc.SufficiencyThreshold
	}

	if err := cfg.Validate(); err != nil {
		return loader.Config{}, err
	}
	return cfg, nil
}

// openStore builds the configured progress store. The returned close
// function releases its connection, if any.
func openStore(ctx context.Context, sc config.Storage, lc loader.Config) (store.ProgressStore, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(sc.Backend) {
	case "", "file":
		fs, err := store.NewFileStore(filepath.Join(sc.DataDir, "progress"))
		if err != nil {
			return nil, nil, err
		}
		return fs, noop, nil
	case "sqlite":
		ss, err := store.NewSQLiteStore(sc.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return ss, ss.Close, nil
	case "redis":
		rs, err := store.NewRedisStore(ctx, store.RedisOptions{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
			Prefix:   sc.Redis.Prefix,
			TTL:      lc.MaxAge,
		})
		if err != nil {
			return nil, nil, err
		}
		return rs, rs.Close, nil
	case "memory":
		return store.NewMemoryStore(), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", sc.Backend)
	}
}

// buildSource creates the configured quote source behind the rate limiter.
func buildSource(cfg *config.Config) (quotesource.Source, error) {
	hasAlpacaKeys := cfg.Alpaca.APIKey != "" && cfg.Alpaca.APISecret != ""
	alpaca := func() quotesource.Source {
		return quotesource.NewAlpacaSource(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, cfg.Alpaca.Feed)
	}

	var src quotesource.Source
	switch strings.ToLower(cfg.Source.Name) {
	case "alpaca":
		if !hasAlpacaKeys {
			return nil, fmt.Errorf("alpaca source needs ALPACA_API_KEY and ALPACA_API_SECRET")
		}
		src = alpaca()
	case "", "yahoo":
		src = quotesource.NewYahooSource()
	case "chain":
		var sources []quotesource.Source
		if hasAlpacaKeys {
			sources = append(sources, alpaca())
		}
		sources = append(sources, quotesource.NewYahooSource())
		src = quotesource.NewChain(sources...)
	default:
		return nil, fmt.Errorf("unknown quote source %q", cfg.Source.Name)
	}

	var limiter *util.RateLimiter
	if cfg.Source.RateLimitPerMin > 0 {
		limiter = util.NewRateLimiter(cfg.Source.RateLimitPerMin, cfg.Source.Burst)
	}
	return quotesource.NewRateLimited(src, limiter, cfg.Source.Timeout), nil
}

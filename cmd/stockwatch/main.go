package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"stockwatch/internal/config"
	"stockwatch/internal/domain"
	"stockwatch/internal/loader"
	"stockwatch/internal/store"
	"stockwatch/internal/universe"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: stockwatch <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  load       Fetch quotes for the symbol universe, resuming from the checkpoint\n")
	fmt.Fprintf(os.Stderr, "  info       Show the checkpoint for the configured profile\n")
	fmt.Fprintf(os.Stderr, "  clear      Delete the checkpoint for the configured profile\n")
	fmt.Fprintf(os.Stderr, "  export     Write checkpointed quotes to the daily Parquet file\n")
	fmt.Fprintf(os.Stderr, "  version    Print the version\n")
	fmt.Fprintf(os.Stderr, "\nConfig is read from config/stockwatch.yaml or $STOCKWATCH_CONFIG.\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	if cmd == "version" {
		fmt.Printf("stockwatch %s\n", version)
		return
	}

	cfgPath := "config/stockwatch.yaml"
	if p := os.Getenv("STOCKWATCH_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, closeLog, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}
	defer closeLog()
	slog.SetDefault(logger)

	switch cmd {
	case "load":
		err = runLoad(cfg, args)
	case "info":
		err = runInfo(cfg)
	case "clear":
		err = runClear(cfg)
	case "export":
		err = runExport(cfg, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
	if err != nil {
		slog.Error("command failed", "command", cmd, "error", err)
		closeLog()
		os.Exit(1)
	}
}

// app bundles what every command needs.
type app struct {
	loader   *loader.Loader
	closeAll func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	lc, err := loaderConfig(cfg.Loader)
	if err != nil {
		return nil, err
	}
	src, err := buildSource(cfg)
	if err != nil {
		return nil, err
	}
	ps, closeStore, err := openStore(ctx, cfg.Storage, lc)
	if err != nil {
		return nil, fmt.Errorf("opening progress store: %w", err)
	}
	ldr, err := loader.New(lc, src, ps, slog.Default())
	if err != nil {
		closeStore()
		return nil, err
	}
	return &app{
		loader: ldr,
		closeAll: func() {
			if err := closeStore(); err != nil {
				slog.Warn("closing progress store", "error", err)
			}
		},
	}, nil
}

func runLoad(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	symbolsFlag := fs.String("symbols", "", "comma-separated symbols, overrides the configured universe")
	export := fs.Bool("export", false, "write the completed set to the daily Parquet file")
	fresh := fs.Bool("clear", false, "discard the checkpoint before loading")
	fs.Parse(args)

	symbols, err := resolveSymbols(cfg, *symbolsFlag)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.closeAll()

	if *fresh {
		if err := a.loader.ClearCache(ctx); err != nil {
			return err
		}
	}

	// First signal stops scheduling new batches; a second one cancels the
	// batches in flight.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		slog.Info("stopping after in-flight batches, interrupt again to abort")
		a.loader.Stop()
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	var result []domain.Quote
	start := time.Now()
	lastPct := -1
	loadErr := a.loader.Load(ctx, symbols, loader.Callbacks{
		OnProgress: func(p loader.Progress) {
			if pct := p.Percent(); pct != lastPct || p.FromCache {
				lastPct = pct
				slog.Info("progress", "loaded", p.Loaded, "total", p.Total, "percent", pct, "fromCache", p.FromCache)
			}
		},
		OnComplete: func(quotes []domain.Quote) {
			result = quotes
		},
		OnError: func(err error) {
			slog.Warn("load ended with error", "error", err)
		},
	})

	if len(result) > 0 {
		day := time.Now().UTC()
		path, err := universe.WriteDaily(cfg.Storage.DataDir, day, symbolsOf(result))
		if err != nil {
			slog.Warn("recording daily universe", "error", err)
		} else {
			slog.Info("daily universe updated", "path", path, "symbols", len(result))
		}
		if *export {
			path, err := store.NewQuoteArchive(cfg.Storage.DataDir).Write(day, result)
			if err != nil {
				return errors.Join(loadErr, err)
			}
			slog.Info("exported quotes", "path", path, "count", len(result))
		}
		printQuotes(os.Stdout, result)
	}

	slog.Info("load done",
		"requested", len(symbols),
		"loaded", len(result),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return loadErr
}

func runInfo(cfg *config.Config) error {
	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.closeAll()

	info, err := a.loader.CacheInfo(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("profile:   %s\n", profileName(cfg))
	fmt.Printf("backend:   %s\n", cfg.Storage.Backend)
	if !info.Exists {
		fmt.Println("checkpoint: none")
		return nil
	}
	fmt.Printf("checkpoint: %d quotes, %d failed\n", info.Count, info.Failed)
	fmt.Printf("saved at:  %s (%d min ago)\n", info.SavedAt.Local().Format(time.RFC3339), info.AgeMinutes)
	fmt.Printf("expired:   %t\n", info.IsExpired)
	return nil
}

func runClear(cfg *config.Config) error {
	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.closeAll()

	if err := a.loader.ClearCache(ctx); err != nil {
		return err
	}
	fmt.Printf("cleared checkpoint for profile %s\n", profileName(cfg))
	return nil
}

func runExport(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	date := fs.String("date", "", "file date as YYYY-MM-DD (default today)")
	fs.Parse(args)

	day := time.Now().UTC()
	if *date != "" {
		d, err := time.Parse("2006-01-02", *date)
		if err != nil {
			return fmt.Errorf("parsing -date: %w", err)
		}
		day = d
	}

	symbols, err := resolveSymbols(cfg, "")
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.closeAll()

	quotes, err := a.loader.Cached(ctx, symbols)
	if err != nil {
		return err
	}
	if len(quotes) == 0 {
		return fmt.Errorf("no fresh checkpointed quotes to export")
	}
	path, err := store.NewQuoteArchive(cfg.Storage.DataDir).Write(day, quotes)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d quotes to %s\n", len(quotes), path)
	return nil
}

func resolveSymbols(cfg *config.Config, flagValue string) ([]string, error) {
	if flagValue != "" {
		return universe.Resolve("", strings.Split(flagValue, ","))
	}
	return universe.Resolve(cfg.Universe.CSVPath, cfg.Universe.Symbols)
}

func profileName(cfg *config.Config) string {
	if cfg.Loader.Profile == "" {
		return "balanced"
	}
	return cfg.Loader.Profile
}

func symbolsOf(quotes []domain.Quote) []string {
	out := make([]string, len(quotes))
	for i, q := range quotes {
		out[i] = q.Symbol
	}
	return out
}

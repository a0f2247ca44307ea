// Package loader fetches quotes for a large symbol universe in batches,
// retrying failed batches with backoff and checkpointing progress so a later
// run can resume where an earlier one stopped.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"stockwatch/internal/domain"
	"stockwatch/internal/quotesource"
	"stockwatch/internal/store"
	"stockwatch/internal/util"
)

// Progress is reported after the checkpoint is read and after every batch
// attempt. Loaded never decreases within a run.
type Progress struct {
	Loaded    int      // requested symbols with a quote so far
	Total     int      // requested symbols
	Batch     []string // symbols of the batch just attempted, nil for cache
	FromCache bool
}

// Percent returns Loaded/Total as a rounded percentage, capped at 100.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	pct := (p.Loaded*100 + p.Total/2) / p.Total
	return min(pct, 100)
}

// Callbacks receive the outcome of a run. Any of them may be nil. They are
// never called concurrently with each other.
type Callbacks struct {
	OnProgress func(Progress)
	OnComplete func([]domain.Quote)
	OnError    func(error)
}

// CacheInfo describes the checkpoint currently in the progress store.
type CacheInfo struct {
	Exists     bool
	Count      int
	Failed     int
	SavedAt    time.Time
	AgeMinutes int
	IsExpired  bool
}

// Loader is the batch symbol loader. A Loader runs one load at a time;
// concurrent calls to Load wait for each other.
type Loader struct {
	cfg    Config
	source quotesource.Source
	store  store.ProgressStore
	log    *slog.Logger
	now    func() time.Time

	runMu sync.Mutex

	// stopMu guards active, the stop flag of the run in progress, and
	// stopNext, a Stop that arrived while no run was in progress.
	stopMu   sync.Mutex
	active   *atomic.Bool
	stopNext bool

	// commitMu serializes the post-fetch phase (merge, checkpoint,
	// progress) so checkpoints and callbacks observe batches in one order.
	commitMu sync.Mutex

	mu    sync.Mutex
	state *session
}

// New creates a Loader. A nil progress store keeps state in memory only.
func New(cfg Config, source quotesource.Source, ps store.ProgressStore, log *slog.Logger) (*Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, fmt.Errorf("loader: nil quote source")
	}
	if ps == nil {
		ps = store.NewMemoryStore()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Loader{
		cfg:    cfg,
		source: source,
		store:  ps,
		log:    log.With("component", "loader", "key", cfg.StoreKey, "source", source.Name()),
		now:    time.Now,
		state:  newSession(),
	}, nil
}

// run is the per-call bookkeeping of one Load.
type run struct {
	cb        Callbacks
	stop      *atomic.Bool
	total     int
	loaded    int
	batches   int
	attempted int
	ceiling   bool
	lastErr   error
}

// Load fetches quotes for symbols and reports through cb. It blocks until
// the run ends and returns the error passed to OnError, or nil.
//
// Symbols are normalized with domain.NormalizeSymbol and must not contain
// duplicates after normalization. OnComplete is called at most once,
// with every requested symbol that has a quote. OnError is called when the
// consecutive failure ceiling is hit, or when the run ends with no data at
// all.
func (l *Loader) Load(ctx context.Context, symbols []string, cb Callbacks) error {
	return l.load(ctx, symbols, cb)
}

// Go runs Load in a new goroutine. The returned channel receives Load's
// result and is then closed.
func (l *Loader) Go(ctx context.Context, symbols []string, cb Callbacks) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- l.load(ctx, symbols, cb)
	}()
	return done
}

// Stop prevents further batches from being scheduled in the run in
// progress. Batches already in flight finish, and the run then completes with
// what it has. When no run is in progress, the next run starts stopped. Runs
// queued behind the current one are not affected.
func (l *Loader) Stop() {
	l.stopMu.Lock()
	defer l.stopMu.Unlock()
	if l.active != nil {
		l.active.Store(true)
		return
	}
	l.stopNext = true
}

// beginRun installs a fresh stop flag for the run about to start.
func (l *Loader) beginRun() *atomic.Bool {
	l.stopMu.Lock()
	defer l.stopMu.Unlock()
	stop := new(atomic.Bool)
	if l.stopNext {
		stop.Store(true)
		l.stopNext = false
	}
	l.active = stop
	return stop
}

func (l *Loader) endRun() {
	l.stopMu.Lock()
	defer l.stopMu.Unlock()
	l.active = nil
}

func (l *Loader) load(ctx context.Context, symbols []string, cb Callbacks) error {
	l.runMu.Lock()
	defer l.runMu.Unlock()
	stop := l.beginRun()
	defer l.endRun()

	symbols = normalizeSymbols(symbols)
	runStart := time.Now()
	r := &run{cb: cb, stop: stop, total: len(symbols)}

	if len(symbols) == 0 {
		r.complete(nil)
		return nil
	}

	l.hydrate(ctx)

	l.mu.Lock()
	remaining := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if _, ok := l.state.records[sym]; ok {
			r.loaded++
		}
		if _, done := l.state.attempted[sym]; !done {
			remaining = append(remaining, sym)
		}
	}
	l.state.consecutiveFailures = 0
	l.mu.Unlock()

	batches := chunk(remaining, l.cfg.BatchSize)
	r.batches = len(batches)

	l.log.Info("starting load",
		"total", r.total,
		"cached", r.loaded,
		"remaining", len(remaining),
		"batches", r.batches,
	)

	if r.loaded > 0 {
		r.progress(Progress{Loaded: r.loaded, Total: r.total, FromCache: true})
		if len(remaining) == 0 || float64(r.loaded)/float64(r.total) >= l.cfg.SufficiencyThreshold {
			l.log.Info("checkpoint sufficient, skipping fetch", "cached", r.loaded, "total", r.total)
			r.complete(l.collect(symbols))
			return nil
		}
	}

	if l.cfg.Concurrency <= 1 {
		for i, batch := range batches {
			if l.halted(ctx, r) {
				break
			}
			if i > 0 && util.Sleep(ctx, util.AddJitter(l.cfg.DelayBetweenBatches, l.cfg.Jitter)) != nil {
				break
			}
			l.runBatch(ctx, r, i, batch)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(l.cfg.Concurrency)
		for i, batch := range batches {
			if l.halted(ctx, r) {
				break
			}
			if i > 0 && util.Sleep(ctx, util.AddJitter(l.cfg.DelayBetweenBatches, l.cfg.Jitter)) != nil {
				break
			}
			g.Go(func() error {
				l.runBatch(ctx, r, i, batch)
				return nil
			})
		}
		_ = g.Wait()
	}

	// Persist final state, even if the run's context is gone.
	l.checkpoint(context.WithoutCancel(ctx))

	l.commitMu.Lock()
	ceiling, loaded, attempted, lastErr := r.ceiling, r.loaded, r.attempted, r.lastErr
	l.commitMu.Unlock()

	result := l.collect(symbols)
	stopped := r.stop.Load() || ctx.Err() != nil

	l.log.Info("load finished",
		"loaded", loaded,
		"total", r.total,
		"batchesAttempted", attempted,
		"ceilingHit", ceiling,
		"stopped", stopped,
		"elapsed", time.Since(runStart).Round(time.Millisecond),
	)

	switch {
	case ceiling:
		lerr := &LoadError{Reason: TooManyConsecutiveFailures, Err: lastErr}
		r.fail(lerr)
		if len(result) > 0 {
			r.complete(result)
		}
		return lerr
	case len(result) > 0:
		r.complete(result)
		return nil
	case stopped:
		err := ctx.Err()
		lerr := &LoadError{Reason: Aborted, Err: err}
		r.fail(lerr)
		return lerr
	default:
		lerr := &LoadError{Reason: NoDataFromSource, Err: lastErr}
		r.fail(lerr)
		return lerr
	}
}

// halted reports whether no further batches should be scheduled.
func (l *Loader) halted(ctx context.Context, r *run) bool {
	if r.stop.Load() || ctx.Err() != nil {
		return true
	}
	l.commitMu.Lock()
	defer l.commitMu.Unlock()
	return r.ceiling
}

// runBatch fetches one batch with retries and commits the outcome.
func (l *Loader) runBatch(ctx context.Context, r *run, idx int, batch []string) {
	want := make(map[string]struct{}, len(batch))
	for _, sym := range batch {
		want[sym] = struct{}{}
	}

	var (
		got      []domain.Quote
		attempts int
	)
	err := util.Retry(ctx, l.cfg.MaxRetries, l.cfg.retryBackoff(), func(attempt int) error {
		attempts = attempt
		quotes, err := l.source.Fetch(ctx, batch)
		if err != nil {
			l.log.Debug("transient fetch failure", "batch", idx+1, "attempt", attempt, "err", err)
			return err
		}
		var kept []domain.Quote
		for _, q := range quotes {
			q.Symbol = domain.NormalizeSymbol(q.Symbol)
			if _, ok := want[q.Symbol]; ok {
				kept = append(kept, q)
			}
		}
		if len(kept) == 0 {
			l.log.Debug("empty batch result", "batch", idx+1, "attempt", attempt)
			return errEmptyResult
		}
		got = kept
		return nil
	})

	// A cancelled run leaves the batch unattempted so the next run retries it.
	if err != nil && ctx.Err() != nil {
		return
	}

	l.commitMu.Lock()
	defer l.commitMu.Unlock()

	l.mu.Lock()
	l.state.markAttempted(batch)
	if err == nil {
		r.loaded += l.state.merge(got)
		l.state.markFailed(batch)
		l.state.consecutiveFailures = 0
	} else {
		l.state.markFailed(batch)
		l.state.consecutiveFailures++
		l.state.totalFailures++
		if l.state.consecutiveFailures >= l.cfg.ConsecutiveFailureCeiling {
			r.ceiling = true
		}
	}
	consecutive, total := l.state.consecutiveFailures, l.state.totalFailures
	l.mu.Unlock()

	r.attempted++
	if err == nil {
		l.log.Info("batch done",
			"batch", fmt.Sprintf("%d/%d", idx+1, r.batches),
			"hits", len(got),
			"empty", len(batch)-len(got),
			"attempts", attempts,
		)
		l.checkpoint(ctx)
	} else {
		r.lastErr = err
		l.log.Warn("batch exhausted retries",
			"batch", fmt.Sprintf("%d/%d", idx+1, r.batches),
			"symbols", batch,
			"attempts", attempts,
			"consecutiveFailures", consecutive,
			"totalFailures", total,
			"err", err,
		)
	}

	r.progress(Progress{Loaded: r.loaded, Total: r.total, Batch: batch})
}

// hydrate replaces the in-memory session with the stored checkpoint. When
// the store has nothing usable, the in-memory session is kept if it is still
// fresh, so a loader running without working persistence still resumes.
func (l *Loader) hydrate(ctx context.Context) {
	now := l.now()

	data, err := l.store.Get(ctx, l.cfg.StoreKey)
	var next *session
	switch {
	case err == nil:
		snap, derr := decodeSnapshot(data)
		if derr != nil {
			l.log.Warn("ignoring unreadable checkpoint", "err", derr)
			break
		}
		if expired(snap.SavedAt, now, l.cfg.MaxAge) {
			l.log.Info("checkpoint expired", "savedAt", snap.SavedAt, "maxAge", l.cfg.MaxAge)
			l.mu.Lock()
			l.state = newSession()
			l.mu.Unlock()
			return
		}
		next = sessionFromSnapshot(snap)
	case errors.Is(err, store.ErrNotFound):
	default:
		l.log.Warn("progress store unavailable, continuing in memory", "err", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if next != nil {
		l.state = next
		return
	}
	if expired(l.state.savedAt, now, l.cfg.MaxAge) {
		l.state = newSession()
		return
	}
	// Keep fresh in-memory records, but let earlier failures be retried.
	kept := newSession()
	kept.savedAt = l.state.savedAt
	kept.merge(l.collectAll())
	for sym := range kept.records {
		kept.attempted[sym] = struct{}{}
	}
	l.state = kept
}

// checkpoint writes the current session to the progress store. Failures are
// logged and the run continues in memory.
func (l *Loader) checkpoint(ctx context.Context) {
	now := l.now()
	l.mu.Lock()
	data, err := l.state.encode(now)
	if err == nil {
		l.state.savedAt = now
	}
	l.mu.Unlock()
	if err != nil {
		l.log.Error("encoding checkpoint", "err", err)
		return
	}
	if err := l.store.Set(ctx, l.cfg.StoreKey, data); err != nil {
		l.log.Warn("checkpoint failed, continuing in memory", "err", err)
	}
}

// collect returns the quotes for symbols, in input order, skipping symbols
// without a quote.
func (l *Loader) collect(symbols []string) []domain.Quote {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Quote, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		if q, ok := l.state.records[sym]; ok {
			out = append(out, q)
		}
	}
	return out
}

// collectAll returns every record in the session. l.mu must be held.
func (l *Loader) collectAll() []domain.Quote {
	out := make([]domain.Quote, 0, len(l.state.records))
	for _, q := range l.state.records {
		out = append(out, q)
	}
	return out
}

// ClearCache deletes the checkpoint and resets in-memory state.
func (l *Loader) ClearCache(ctx context.Context) error {
	l.mu.Lock()
	l.state = newSession()
	l.mu.Unlock()

	if err := l.store.Remove(ctx, l.cfg.StoreKey); err != nil {
		return fmt.Errorf("clearing checkpoint: %w", err)
	}
	l.log.Info("checkpoint cleared")
	return nil
}

// CacheInfo reads the checkpoint without modifying it.
func (l *Loader) CacheInfo(ctx context.Context) (CacheInfo, error) {
	data, err := l.store.Get(ctx, l.cfg.StoreKey)
	if errors.Is(err, store.ErrNotFound) {
		return CacheInfo{}, nil
	}
	if err != nil {
		return CacheInfo{}, fmt.Errorf("reading checkpoint: %w", err)
	}
	snap, err := decodeSnapshot(data)
	if err != nil {
		return CacheInfo{}, err
	}
	now := l.now()
	return CacheInfo{
		Exists:     true,
		Count:      len(snap.Records),
		Failed:     len(snap.Failed),
		SavedAt:    snap.SavedAt,
		AgeMinutes: int(now.Sub(snap.SavedAt).Minutes()),
		IsExpired:  expired(snap.SavedAt, now, l.cfg.MaxAge),
	}, nil
}

// Cached returns the non-expired checkpointed quotes for symbols without
// fetching anything.
func (l *Loader) Cached(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	data, err := l.store.Get(ctx, l.cfg.StoreKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	snap, err := decodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	if expired(snap.SavedAt, l.now(), l.cfg.MaxAge) {
		return nil, nil
	}
	bySym := make(map[string]domain.Quote, len(snap.Records))
	for _, q := range snap.Records {
		bySym[q.Symbol] = q
	}
	out := make([]domain.Quote, 0, len(symbols))
	for _, sym := range normalizeSymbols(symbols) {
		if q, ok := bySym[sym]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (r *run) progress(p Progress) {
	if r.cb.OnProgress != nil {
		r.cb.OnProgress(p)
	}
}

func (r *run) complete(quotes []domain.Quote) {
	if r.cb.OnComplete != nil {
		r.cb.OnComplete(quotes)
	}
}

func (r *run) fail(err error) {
	if r.cb.OnError != nil {
		r.cb.OnError(err)
	}
}

// normalizeSymbols returns symbols in canonical form, dropping blanks.
func normalizeSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if sym := domain.NormalizeSymbol(s); sym != "" {
			out = append(out, sym)
		}
	}
	return out
}

// chunk splits symbols into consecutive slices of at most size elements.
func chunk(symbols []string, size int) [][]string {
	var batches [][]string
	for i := 0; i < len(symbols); i += size {
		end := min(i+size, len(symbols))
		batches = append(batches, symbols[i:end])
	}
	return batches
}

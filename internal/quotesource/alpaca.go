package quotesource

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"stockwatch/internal/domain"
)

var _ Source = (*AlpacaSource)(nil)

// snapshotClient is the subset of the Alpaca market-data client used here.
type snapshotClient interface {
	GetSnapshots(symbols []string, req marketdata.GetSnapshotRequest) (map[string]*marketdata.Snapshot, error)
}

// AlpacaSource fetches quotes from Alpaca's multi-symbol snapshot endpoint.
// Alpaca reports no company name, sector or valuation data, so those fields
// are always left unknown.
type AlpacaSource struct {
	client snapshotClient
	feed   string
	now    func() time.Time
	log    *slog.Logger
}

// NewAlpacaSource creates an AlpacaSource with the given credentials. An
// empty dataURL uses the SDK default; an empty feed uses "iex".
func NewAlpacaSource(apiKey, apiSecret, dataURL, feed string) *AlpacaSource {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return newAlpacaSource(marketdata.NewClient(opts), feed)
}

func newAlpacaSource(client snapshotClient, feed string) *AlpacaSource {
	if feed == "" {
		feed = "iex"
	}
	return &AlpacaSource{
		client: client,
		feed:   feed,
		now:    time.Now,
		log:    slog.Default().With("source", "alpaca"),
	}
}

// Name returns the source identifier.
func (a *AlpacaSource) Name() string { return "alpaca" }

// Fetch requests snapshots for all symbols in a single API call.
func (a *AlpacaSource) Fetch(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	snaps, err := a.client.GetSnapshots(symbols, marketdata.GetSnapshotRequest{Feed: marketdata.Feed(a.feed)})
	if err != nil {
		return nil, fmt.Errorf("GetSnapshots: %w", err)
	}

	quotes := make([]domain.Quote, 0, len(snaps))
	for sym, snap := range snaps {
		in, ok := a.snapshotInput(sym, snap)
		if !ok {
			continue
		}
		q, err := domain.NewQuote(in)
		if err != nil {
			a.log.Debug("dropping snapshot", "symbol", sym, "err", err)
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

// snapshotInput extracts the usable fields from a snapshot. It reports false
// when the snapshot carries no price at all.
func (a *AlpacaSource) snapshotInput(sym string, snap *marketdata.Snapshot) (domain.QuoteInput, bool) {
	if snap == nil {
		return domain.QuoteInput{}, false
	}

	in := domain.QuoteInput{Symbol: sym, FetchedAt: a.now().UTC()}
	switch {
	case snap.LatestTrade != nil && snap.LatestTrade.Price > 0:
		in.Price = snap.LatestTrade.Price
		in.FetchedAt = snap.LatestTrade.Timestamp.UTC()
	case snap.DailyBar != nil && snap.DailyBar.Close > 0:
		in.Price = snap.DailyBar.Close
		in.FetchedAt = snap.DailyBar.Timestamp.UTC()
	default:
		return domain.QuoteInput{}, false
	}

	if snap.DailyBar != nil {
		in.Volume = int64(snap.DailyBar.Volume)
	}
	if snap.PrevDailyBar != nil && snap.PrevDailyBar.Close > 0 {
		in.PreviousClose = domain.Float(snap.PrevDailyBar.Close)
	}
	return in, true
}

package quotesource

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/piquette/finance-go"
	"github.com/piquette/finance-go/equity"

	"stockwatch/internal/domain"
)

var _ Source = (*YahooSource)(nil)

// equityLister fetches equity quotes for a list of symbols.
type equityLister func(symbols []string) ([]finance.Equity, error)

// listEquities calls the Yahoo Finance quote endpoint via finance-go.
func listEquities(symbols []string) ([]finance.Equity, error) {
	var out []finance.Equity
	iter := equity.List(symbols)
	for iter.Next() {
		out = append(out, *iter.Equity())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// YahooSource fetches quotes from Yahoo Finance. Yahoo reports a missing
// P/E, dividend yield or market cap as 0, which is mapped to unknown.
type YahooSource struct {
	list equityLister
	now  func() time.Time
	log  *slog.Logger
}

// NewYahooSource returns a YahooSource backed by finance-go.
func NewYahooSource() *YahooSource {
	return newYahooSource(listEquities)
}

func newYahooSource(list equityLister) *YahooSource {
	return &YahooSource{
		list: list,
		now:  time.Now,
		log:  slog.Default().With("source", "yahoo"),
	}
}

// Name returns the source identifier.
func (y *YahooSource) Name() string { return "yahoo" }

// Fetch requests quotes for all symbols in a single call. finance-go has no
// context support, so cancellation is only observed before the call.
func (y *YahooSource) Fetch(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	equities, err := y.list(symbols)
	if err != nil {
		return nil, fmt.Errorf("yahoo equity list: %w", err)
	}

	quotes := make([]domain.Quote, 0, len(equities))
	for _, e := range equities {
		if e.RegularMarketPrice <= 0 {
			continue
		}
		name := e.LongName
		if name == "" {
			name = e.ShortName
		}
		fetched := y.now().UTC()
		if e.RegularMarketTime > 0 {
			fetched = time.Unix(int64(e.RegularMarketTime), 0).UTC()
		}

		q, err := domain.NewQuote(domain.QuoteInput{
			Symbol:        e.Symbol,
			Name:          name,
			Price:         e.RegularMarketPrice,
			PreviousClose: domain.PositiveOrNil(e.RegularMarketPreviousClose),
			PERatio:       domain.PositiveOrNil(e.TrailingPE),
			DividendYield: domain.PositiveOrNil(e.TrailingAnnualDividendYield),
			MarketCap:     domain.PositiveOrNil(float64(e.MarketCap)),
			Volume:        int64(e.RegularMarketVolume),
			FetchedAt:     fetched,
		})
		if err != nil {
			y.log.Debug("dropping quote", "symbol", e.Symbol, "err", err)
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

// Package domain defines the core value types shared across stockwatch:
// quote records and the helpers that derive and validate their fields.
package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownSector is the sector classification used when the source does not
// report one.
const UnknownSector = "Unknown"

// Quote is one point-in-time snapshot of a traded instrument.
//
// PERatio, DividendYield and MarketCap are nil when the source did not report
// them. Consumers must carry nil through unchanged rather than substituting 0.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	Sector        string    `json:"sector"`
	Price         float64   `json:"price"`
	PreviousClose *float64  `json:"previous_close"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	PERatio       *float64  `json:"pe_ratio"`
	DividendYield *float64  `json:"dividend_yield"`
	MarketCap     *float64  `json:"market_cap"`
	Volume        int64     `json:"volume"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// QuoteInput carries the raw fields a source resolved for one symbol. It is
// turned into a Quote by NewQuote, which derives the change fields.
type QuoteInput struct {
	Symbol        string
	Name          string
	Sector        string
	Price         float64
	PreviousClose *float64
	PERatio       *float64
	DividendYield *float64
	MarketCap     *float64
	Volume        int64
	FetchedAt     time.Time
}

// NewQuote validates in and builds a Quote with derived change fields.
func NewQuote(in QuoteInput) (Quote, error) {
	sym := NormalizeSymbol(in.Symbol)
	if sym == "" {
		return Quote{}, fmt.Errorf("quote: empty symbol")
	}
	if in.Price < 0 || math.IsNaN(in.Price) || math.IsInf(in.Price, 0) {
		return Quote{}, fmt.Errorf("quote %s: invalid price %v", sym, in.Price)
	}
	if in.Volume < 0 {
		return Quote{}, fmt.Errorf("quote %s: negative volume %d", sym, in.Volume)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = sym
	}
	sector := strings.TrimSpace(in.Sector)
	if sector == "" {
		sector = UnknownSector
	}

	var prev float64
	if in.PreviousClose != nil {
		prev = *in.PreviousClose
	}
	change, pct := ComputeChange(in.Price, prev)

	return Quote{
		Symbol:        sym,
		Name:          name,
		Sector:        sector,
		Price:         in.Price,
		PreviousClose: finiteOrNil(in.PreviousClose),
		Change:        change,
		ChangePercent: pct,
		PERatio:       finiteOrNil(in.PERatio),
		DividendYield: finiteOrNil(in.DividendYield),
		MarketCap:     finiteOrNil(in.MarketCap),
		Volume:        in.Volume,
		FetchedAt:     in.FetchedAt,
	}, nil
}

// ComputeChange returns the absolute and percent change of price against
// prevClose. Both are 0 when prevClose is 0 or negative. Percent change is
// rounded to 4 decimal places, absolute change to 6.
func ComputeChange(price, prevClose float64) (change, percent float64) {
	if prevClose <= 0 || math.IsNaN(prevClose) || math.IsInf(prevClose, 0) {
		return 0, 0
	}
	p := decimal.NewFromFloat(price)
	pc := decimal.NewFromFloat(prevClose)
	diff := p.Sub(pc)

	change, _ = diff.Round(6).Float64()
	percent, _ = diff.Div(pc).Mul(decimal.NewFromInt(100)).Round(4).Float64()
	return change, percent
}

// NormalizeSymbol trims and upper-cases a ticker symbol.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Float returns a pointer to v. It is the only way a known optional value
// should be constructed.
func Float(v float64) *float64 {
	return &v
}

// PositiveOrNil returns a pointer to v when v > 0 and nil otherwise. Sources
// whose wire format reports a missing valuation figure as 0 use this to keep
// the absence visible.
func PositiveOrNil(v float64) *float64 {
	if v > 0 && !math.IsInf(v, 0) {
		return &v
	}
	return nil
}

// FormatOptional renders an optional number for display, using "n/a" for nil.
func FormatOptional(v *float64, prec int) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.*f", prec, *v)
}

func finiteOrNil(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	out := *v
	return &out
}

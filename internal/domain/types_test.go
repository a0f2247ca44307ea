package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewQuoteDerivesChange(t *testing.T) {
	q, err := NewQuote(QuoteInput{
		Symbol:        " aapl ",
		Price:         110,
		PreviousClose: Float(100),
		Volume:        1200,
		FetchedAt:     time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("NewQuote: %v", err)
	}
	if q.Symbol != "AAPL" {
		t.Errorf("Symbol = %q, want %q", q.Symbol, "AAPL")
	}
	if q.Name != "AAPL" {
		t.Errorf("Name = %q, want symbol fallback %q", q.Name, "AAPL")
	}
	if q.Sector != UnknownSector {
		t.Errorf("Sector = %q, want %q", q.Sector, UnknownSector)
	}
	if q.Change != 10 {
		t.Errorf("Change = %v, want 10", q.Change)
	}
	if q.ChangePercent != 10 {
		t.Errorf("ChangePercent = %v, want 10", q.ChangePercent)
	}
}

func TestNewQuoteZeroPreviousClose(t *testing.T) {
	q, err := NewQuote(QuoteInput{Symbol: "ZZZ", Price: 5})
	if err != nil {
		t.Fatalf("NewQuote: %v", err)
	}
	if q.Change != 0 || q.ChangePercent != 0 {
		t.Errorf("change = (%v, %v), want (0, 0) without previous close", q.Change, q.ChangePercent)
	}
	if q.PreviousClose != nil {
		t.Error("PreviousClose should stay nil")
	}

	q, err = NewQuote(QuoteInput{Symbol: "ZZZ", Price: 5, PreviousClose: Float(0)})
	if err != nil {
		t.Fatalf("NewQuote: %v", err)
	}
	if q.ChangePercent != 0 {
		t.Errorf("ChangePercent = %v, want 0 for zero previous close", q.ChangePercent)
	}
}

func TestNewQuoteRejectsInvalid(t *testing.T) {
	if _, err := NewQuote(QuoteInput{Symbol: "", Price: 1}); err == nil {
		t.Error("expected error for empty symbol")
	}
	if _, err := NewQuote(QuoteInput{Symbol: "NEG", Price: -1}); err == nil {
		t.Error("expected error for negative price")
	}
	if _, err := NewQuote(QuoteInput{Symbol: "VOL", Price: 1, Volume: -5}); err == nil {
		t.Error("expected error for negative volume")
	}
}

func TestOptionalValuationStaysAbsent(t *testing.T) {
	q, err := NewQuote(QuoteInput{Symbol: "MSFT", Price: 400, MarketCap: Float(3e12)})
	if err != nil {
		t.Fatalf("NewQuote: %v", err)
	}
	if q.PERatio != nil || q.DividendYield != nil {
		t.Error("unreported valuation fields must be nil")
	}
	if q.MarketCap == nil || *q.MarketCap != 3e12 {
		t.Errorf("MarketCap = %v, want 3e12", q.MarketCap)
	}

	data, err := json.Marshal(q)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"pe_ratio":null`) {
		t.Errorf("pe_ratio should encode as null, got %s", data)
	}

	var back Quote
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.PERatio != nil || back.DividendYield != nil {
		t.Error("nil valuation fields must survive a JSON round trip as nil")
	}
}

func TestPositiveOrNil(t *testing.T) {
	if PositiveOrNil(0) != nil {
		t.Error("PositiveOrNil(0) should be nil")
	}
	if PositiveOrNil(-3) != nil {
		t.Error("PositiveOrNil(-3) should be nil")
	}
	if v := PositiveOrNil(12.5); v == nil || *v != 12.5 {
		t.Errorf("PositiveOrNil(12.5) = %v", v)
	}
}

func TestFormatOptional(t *testing.T) {
	if got := FormatOptional(nil, 2); got != "n/a" {
		t.Errorf("FormatOptional(nil) = %q, want %q", got, "n/a")
	}
	if got := FormatOptional(Float(1.234), 2); got != "1.23" {
		t.Errorf("FormatOptional(1.234) = %q, want %q", got, "1.23")
	}
}

package main

import (
	"bytes"
	"strings"
	"testing"

	"stockwatch/internal/domain"
)

func TestFormatInt(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-45000, "-45,000"},
	}
	for _, tt := range tests {
		if got := formatInt(tt.n); got != tt.want {
			t.Errorf("formatInt(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFormatMarketCap(t *testing.T) {
	if got := formatMarketCap(nil); got != "n/a" {
		t.Errorf("formatMarketCap(nil) = %q", got)
	}
	if got := formatMarketCap(domain.Float(3.1e12)); got != "3.10T" {
		t.Errorf("formatMarketCap(3.1e12) = %q", got)
	}
	if got := formatMarketCap(domain.Float(45.6e9)); got != "45.6B" {
		t.Errorf("formatMarketCap(45.6e9) = %q", got)
	}
	if got := formatMarketCap(domain.Float(750e6)); got != "750.0M" {
		t.Errorf("formatMarketCap(750e6) = %q", got)
	}
}

func TestFormatChange(t *testing.T) {
	if got := formatChange(1.5); got != "+1.50%" {
		t.Errorf("formatChange(1.5) = %q", got)
	}
	if got := formatChange(-0.25); got != "-0.25%" {
		t.Errorf("formatChange(-0.25) = %q", got)
	}
	if got := formatChange(0); got != "0.00%" {
		t.Errorf("formatChange(0) = %q", got)
	}
}

func TestPrintQuotesShowsUnknownValuation(t *testing.T) {
	var buf bytes.Buffer
	printQuotes(&buf, []domain.Quote{
		{Symbol: "AAPL", Price: 190.5, ChangePercent: 1.2, PERatio: domain.Float(29.4), DividendYield: domain.Float(0.005), MarketCap: domain.Float(2.9e12), Volume: 51234000},
		{Symbol: "NEWCO", Price: 12},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], "0.50%") || !strings.Contains(lines[1], "51,234,000") {
		t.Errorf("AAPL row = %q", lines[1])
	}
	if strings.Count(lines[2], "n/a") != 3 {
		t.Errorf("NEWCO row should show n/a for P/E, yield and market cap: %q", lines[2])
	}
}

package main

import (
	"fmt"
	"io"
	"strings"

	"stockwatch/internal/domain"
)

// formatInt formats an integer with comma separators.
func formatInt(n int64) string {
	if n < 0 {
		return "-" + formatInt(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// formatMarketCap formats a market cap with T/B/M suffixes, or "n/a".
func formatMarketCap(v *float64) string {
	if v == nil {
		return "n/a"
	}
	switch c := *v; {
	case c >= 1e12:
		return fmt.Sprintf("%.2fT", c/1e12)
	case c >= 1e9:
		return fmt.Sprintf("%.1fB", c/1e9)
	case c >= 1e6:
		return fmt.Sprintf("%.1fM", c/1e6)
	default:
		return fmt.Sprintf("%.0f", c)
	}
}

// formatChange formats a percent change with an explicit sign.
func formatChange(pct float64) string {
	if pct > 0 {
		return fmt.Sprintf("+%.2f%%", pct)
	}
	return fmt.Sprintf("%.2f%%", pct)
}

// formatYield formats a dividend yield fraction as a percentage, or "n/a".
func formatYield(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", *v*100)
}

func printQuotes(w io.Writer, quotes []domain.Quote) {
	fmt.Fprintf(w, "%-8s %10s %9s %8s %9s %10s %14s\n", "SYMBOL", "PRICE", "CHANGE", "P/E", "YIELD", "MKT CAP", "VOLUME")
	for _, q := range quotes {
		fmt.Fprintf(w, "%-8s %10.2f %9s %8s %9s %10s %14s\n",
			q.Symbol,
			q.Price,
			formatChange(q.ChangePercent),
			domain.FormatOptional(q.PERatio, 1),
			formatYield(q.DividendYield),
			formatMarketCap(q.MarketCap),
			formatInt(q.Volume),
		)
	}
}

package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"stockwatch/internal/domain"
)

// QuoteArchive writes completed quote sets to Parquet files on disk, one
// file per UTC day:
//
//	<DataDir>/quotes/<YYYY-MM-DD>.parquet
type QuoteArchive struct {
	DataDir string
}

// NewQuoteArchive creates a QuoteArchive rooted at the given data directory.
func NewQuoteArchive(dataDir string) *QuoteArchive {
	return &QuoteArchive{DataDir: dataDir}
}

// QuoteRecord is the Parquet schema for one archived quote. Valuation
// columns are optional so that unknown values stay null on disk.
type QuoteRecord struct {
	Symbol        string   `parquet:"symbol"`
	Name          string   `parquet:"name"`
	Sector        string   `parquet:"sector"`
	Price         float64  `parquet:"price"`
	PreviousClose *float64 `parquet:"previous_close,optional"`
	Change        float64  `parquet:"change"`
	ChangePercent float64  `parquet:"change_percent"`
	PERatio       *float64 `parquet:"pe_ratio,optional"`
	DividendYield *float64 `parquet:"dividend_yield,optional"`
	MarketCap     *float64 `parquet:"market_cap,optional"`
	Volume        int64    `parquet:"volume"`
	FetchedAt     int64    `parquet:"fetched_at,timestamp(millisecond)"` // Unix ms
}

// Write merges quotes into the file for day, replacing existing rows for the
// same symbol. It returns the path written.
func (a *QuoteArchive) Write(day time.Time, quotes []domain.Quote) (string, error) {
	path := a.path(day)
	if len(quotes) == 0 {
		return path, nil
	}

	incoming := make([]QuoteRecord, 0, len(quotes))
	for _, q := range quotes {
		incoming = append(incoming, toRecord(q))
	}

	existing, err := readParquetFile[QuoteRecord](path)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	merged := mergeQuoteRecords(existing, incoming)

	if err := writeParquetFile(path, merged); err != nil {
		return "", fmt.Errorf("writing quotes for %s: %w", day.Format("2006-01-02"), err)
	}
	return path, nil
}

// Read returns the archived quotes for day, sorted by symbol. A day with no
// file yields no quotes and no error.
func (a *QuoteArchive) Read(day time.Time) ([]domain.Quote, error) {
	records, err := readParquetFile[QuoteRecord](a.path(day))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	quotes := make([]domain.Quote, 0, len(records))
	for _, r := range records {
		quotes = append(quotes, fromRecord(r))
	}
	return quotes, nil
}

// path returns the filesystem path for a day's archive.
func (a *QuoteArchive) path(day time.Time) string {
	return filepath.Join(a.DataDir, "quotes", day.UTC().Format("2006-01-02")+".parquet")
}

func toRecord(q domain.Quote) QuoteRecord {
	return QuoteRecord{
		Symbol:        q.Symbol,
		Name:          q.Name,
		Sector:        q.Sector,
		Price:         q.Price,
		PreviousClose: q.PreviousClose,
		Change:        q.Change,
		ChangePercent: q.ChangePercent,
		PERatio:       q.PERatio,
		DividendYield: q.DividendYield,
		MarketCap:     q.MarketCap,
		Volume:        q.Volume,
		FetchedAt:     q.FetchedAt.UnixMilli(),
	}
}

func fromRecord(r QuoteRecord) domain.Quote {
	return domain.Quote{
		Symbol:        r.Symbol,
		Name:          r.Name,
		Sector:        r.Sector,
		Price:         r.Price,
		PreviousClose: r.PreviousClose,
		Change:        r.Change,
		ChangePercent: r.ChangePercent,
		PERatio:       r.PERatio,
		DividendYield: r.DividendYield,
		MarketCap:     r.MarketCap,
		Volume:        r.Volume,
		FetchedAt:     time.UnixMilli(r.FetchedAt).UTC(),
	}
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return parquet.ReadFile[T](path)
}

// mergeQuoteRecords deduplicates by symbol, preferring incoming records over
// existing ones. Results are sorted by symbol.
func mergeQuoteRecords(existing, incoming []QuoteRecord) []QuoteRecord {
	seen := make(map[string]QuoteRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Symbol] = r
	}
	for _, r := range incoming {
		seen[r.Symbol] = r
	}

	merged := make([]QuoteRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Symbol < merged[j].Symbol
	})
	return merged
}

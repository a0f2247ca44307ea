// Package universe resolves the list of symbols a load runs over and keeps a
// daily record of the symbols that resolved.
package universe

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"stockwatch/internal/domain"
)

// LoadCSV reads the first column from a CSV file with a header row and
// returns the normalized symbols in file order.
func LoadCSV(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var symbols []string
	header := true
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV %s: %w", path, err)
		}
		if header {
			header = false
			continue
		}
		if len(row) == 0 {
			continue
		}
		if sym := domain.NormalizeSymbol(row[0]); sym != "" {
			symbols = append(symbols, sym)
		}
	}
	return symbols, nil
}

// Normalize upper-cases and trims symbols, dropping blanks and duplicates.
// The first occurrence keeps its position.
func Normalize(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		sym := domain.NormalizeSymbol(s)
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}

// Resolve combines the CSV file (if any) with the inline list, CSV first,
// and normalizes the result.
func Resolve(csvPath string, inline []string) ([]string, error) {
	var all []string
	if csvPath != "" {
		fromCSV, err := LoadCSV(csvPath)
		if err != nil {
			return nil, err
		}
		all = append(all, fromCSV...)
	}
	all = append(all, inline...)

	symbols := Normalize(all)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("symbol universe is empty")
	}
	return symbols, nil
}

// DailyPath returns <dataDir>/universe/<YYYY-MM-DD>.txt, dated in UTC like
// the Parquet archive.
func DailyPath(dataDir string, day time.Time) string {
	return filepath.Join(dataDir, "universe", day.UTC().Format("2006-01-02")+".txt")
}

// WriteDaily adds symbols to the day's universe file, keeping it sorted and
// free of duplicates.
func WriteDaily(dataDir string, day time.Time, symbols []string) (string, error) {
	path := DailyPath(dataDir, day)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating universe dir: %w", err)
	}

	existing, err := ReadDaily(dataDir, day)
	if err != nil {
		return "", err
	}
	lines := Normalize(append(existing, symbols...))
	sort.Strings(lines)

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("creating universe file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, sym := range lines {
		w.WriteString(sym + "\n")
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("writing universe file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("closing universe file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("renaming universe file: %w", err)
	}
	return path, nil
}

// ReadDaily returns the symbols recorded for day, or nil if there is no file.
func ReadDaily(dataDir string, day time.Time) ([]string, error) {
	data, err := os.ReadFile(DailyPath(dataDir, day))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading universe file: %w", err)
	}

	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"stockwatch/internal/domain"
)

// exerciseProgressStore runs the same contract checks against any backend.
func exerciseProgressStore(t *testing.T, s ProgressStore) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "loader:missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on missing key: err = %v, want ErrNotFound", err)
	}

	if err := s.Set(ctx, "loader:balanced", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "loader:balanced")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"v":1}` {
		t.Errorf("Get = %s, want %s", got, `{"v":1}`)
	}

	// Overwrite.
	if err := s.Set(ctx, "loader:balanced", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("Set (overwrite): %v", err)
	}
	got, err = s.Get(ctx, "loader:balanced")
	if err != nil {
		t.Fatalf("Get after overwrite: %v", err)
	}
	if string(got) != `{"v":2}` {
		t.Errorf("Get after overwrite = %s, want %s", got, `{"v":2}`)
	}

	if err := s.Remove(ctx, "loader:balanced"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Get(ctx, "loader:balanced"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Remove: err = %v, want ErrNotFound", err)
	}

	// Removing again is not an error.
	if err := s.Remove(ctx, "loader:balanced"); err != nil {
		t.Errorf("Remove on missing key: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseProgressStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "progress"))
	if err != nil {
		t.Fatal(err)
	}
	exerciseProgressStore(t, fs)
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	fs1, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := fs1.Set(ctx, "stock/cache v1", []byte("hello")); err != nil {
		t.Fatal(err)
	}

	// Unsafe characters are mapped into the file name.
	if _, err := os.Stat(filepath.Join(dir, "stock_cache_v1.json")); err != nil {
		t.Errorf("expected sanitized file name: %v", err)
	}

	fs2, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	got, err := fs2.Get(ctx, "stock/cache v1")
	if err != nil {
		t.Fatalf("Get from second instance: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Get = %q, want %q", got, "hello")
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1", len(entries))
	}
}

func TestSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "progress.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore(%q) returned error: %v", dbPath, err)
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			t.Errorf("Close() returned error: %v", cerr)
		}
	}()

	if err := s.db.Ping(); err != nil {
		t.Fatalf("db.Ping() returned error: %v", err)
	}
	exerciseProgressStore(t, s)
}

func TestSQLiteStoreReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "progress.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	got, err := s2.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("Get after reopen = %q, want %q", got, "v")
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	s, err := NewRedisStore(ctx, RedisOptions{Addr: addr, Prefix: "stockwatch-test:", TTL: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	exerciseProgressStore(t, s)
}

func newMiniRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), RedisOptions{Addr: mr.Addr(), Prefix: "stockwatch:", TTL: ttl})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRedisStoreInProcess(t *testing.T) {
	s, _ := newMiniRedisStore(t, time.Hour)
	exerciseProgressStore(t, s)
}

func TestRedisStorePrefixAndTTL(t *testing.T) {
	s, mr := newMiniRedisStore(t, 90*time.Minute)
	ctx := context.Background()

	if err := s.Set(ctx, "quotes-balanced", []byte("snap")); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("stockwatch:quotes-balanced") {
		t.Fatalf("key not stored under prefix, keys = %v", mr.Keys())
	}
	if mr.Exists("quotes-balanced") {
		t.Error("unprefixed key should not exist")
	}
	if ttl := mr.TTL("stockwatch:quotes-balanced"); ttl != 90*time.Minute {
		t.Errorf("TTL = %v, want %v", ttl, 90*time.Minute)
	}

	mr.FastForward(91 * time.Minute)
	if _, err := s.Get(ctx, "quotes-balanced"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after TTL: err = %v, want ErrNotFound", err)
	}
}

func TestRedisStoreNoTTL(t *testing.T) {
	s, mr := newMiniRedisStore(t, 0)
	if err := s.Set(context.Background(), "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("stockwatch:k"); ttl != 0 {
		t.Errorf("TTL = %v, want none", ttl)
	}
}

func TestNewRedisStoreUnreachable(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatal(err)
	}
	addr := mr.Addr()
	mr.Close()
	if _, err := NewRedisStore(context.Background(), RedisOptions{Addr: addr}); err == nil {
		t.Error("expected ping error for closed server")
	}
}

func TestQuoteArchivePath(t *testing.T) {
	a := NewQuoteArchive("/data")
	day := time.Date(2024, 6, 15, 22, 0, 0, 0, time.UTC)

	want := filepath.Join("/data", "quotes", "2024-06-15.parquet")
	if got := a.path(day); got != want {
		t.Errorf("path mismatch:\n  got  %s\n  want %s", got, want)
	}

	// Just after midnight in Tokyo is still the previous day in UTC.
	tokyo := time.FixedZone("JST", 9*3600)
	if got := a.path(time.Date(2024, 6, 16, 1, 0, 0, 0, tokyo)); got != want {
		t.Errorf("path for JST time = %s, want %s", got, want)
	}
}

func TestQuoteArchiveWriteRead(t *testing.T) {
	a := NewQuoteArchive(t.TempDir())
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	fetched := time.Date(2024, 1, 2, 15, 30, 0, 0, time.UTC)

	quotes := []domain.Quote{
		{Symbol: "MSFT", Name: "Microsoft", Sector: "Technology", Price: 400, PERatio: domain.Float(35.5), Volume: 100, FetchedAt: fetched},
		{Symbol: "AAPL", Name: "Apple", Sector: domain.UnknownSector, Price: 185.5, Volume: 200, FetchedAt: fetched},
	}
	if _, err := a.Write(day, quotes); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := a.Read(day)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Read returned %d quotes, want 2", len(got))
	}
	if got[0].Symbol != "AAPL" || got[1].Symbol != "MSFT" {
		t.Errorf("Read order = [%s %s], want [AAPL MSFT]", got[0].Symbol, got[1].Symbol)
	}
	if got[0].PERatio != nil {
		t.Errorf("AAPL PERatio = %v, want nil", *got[0].PERatio)
	}
	if got[1].PERatio == nil || *got[1].PERatio != 35.5 {
		t.Errorf("MSFT PERatio = %v, want 35.5", got[1].PERatio)
	}
	if !got[1].FetchedAt.Equal(fetched) {
		t.Errorf("FetchedAt = %v, want %v", got[1].FetchedAt, fetched)
	}
}

func TestQuoteArchiveMerge(t *testing.T) {
	a := NewQuoteArchive(t.TempDir())
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	if _, err := a.Write(day, []domain.Quote{{Symbol: "MSFT", Price: 400}}); err != nil {
		t.Fatalf("Write (first): %v", err)
	}
	if _, err := a.Write(day, []domain.Quote{{Symbol: "MSFT", Price: 408}, {Symbol: "GOOGL", Price: 140}}); err != nil {
		t.Fatalf("Write (second): %v", err)
	}

	got, err := a.Read(day)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Read returned %d quotes after merge, want 2", len(got))
	}
	if got[1].Symbol != "MSFT" || got[1].Price != 408 {
		t.Errorf("MSFT after merge = %+v, want price 408", got[1])
	}
}

func TestQuoteArchiveReadMissingDay(t *testing.T) {
	a := NewQuoteArchive(t.TempDir())
	got, err := a.Read(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Read missing day: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Read missing day returned %d quotes", len(got))
	}
}

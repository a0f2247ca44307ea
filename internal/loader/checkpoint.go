package loader

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"stockwatch/internal/domain"
)

const snapshotVersion = 1

// snapshot is the persisted form of a session.
type snapshot struct {
	Version int            `json:"version"`
	SavedAt time.Time      `json:"saved_at"`
	Records []domain.Quote `json:"records"`
	Failed  []string       `json:"failed,omitempty"`
}

// session is the loader's working memory.
type session struct {
	records   map[string]domain.Quote
	attempted map[string]struct{}
	failed    map[string]struct{}
	savedAt   time.Time

	consecutiveFailures int
	totalFailures       int
}

func newSession() *session {
	return &session{
		records:   make(map[string]domain.Quote),
		attempted: make(map[string]struct{}),
		failed:    make(map[string]struct{}),
	}
}

// merge stores quotes by symbol, last write wins. It returns how many
// symbols were not present before.
func (s *session) merge(quotes []domain.Quote) int {
	added := 0
	for _, q := range quotes {
		if _, ok := s.records[q.Symbol]; !ok {
			added++
		}
		s.records[q.Symbol] = q
		delete(s.failed, q.Symbol)
	}
	return added
}

func (s *session) markAttempted(symbols []string) {
	for _, sym := range symbols {
		s.attempted[sym] = struct{}{}
	}
}

func (s *session) markFailed(symbols []string) {
	for _, sym := range symbols {
		if _, ok := s.records[sym]; !ok {
			s.failed[sym] = struct{}{}
		}
	}
}

// encode serializes the session, stamping it with at.
func (s *session) encode(at time.Time) ([]byte, error) {
	snap := snapshot{
		Version: snapshotVersion,
		SavedAt: at.UTC(),
		Records: make([]domain.Quote, 0, len(s.records)),
		Failed:  make([]string, 0, len(s.failed)),
	}
	for _, q := range s.records {
		snap.Records = append(snap.Records, q)
	}
	sort.Slice(snap.Records, func(i, j int) bool { return snap.Records[i].Symbol < snap.Records[j].Symbol })
	for sym := range s.failed {
		snap.Failed = append(snap.Failed, sym)
	}
	sort.Strings(snap.Failed)
	return json.Marshal(snap)
}

func decodeSnapshot(data []byte) (*snapshot, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding checkpoint: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("checkpoint version %d not supported", snap.Version)
	}
	return &snap, nil
}

// sessionFromSnapshot rebuilds a session. Only successful records count as
// attempted; symbols that failed in an earlier run are tried again.
func sessionFromSnapshot(snap *snapshot) *session {
	s := newSession()
	s.savedAt = snap.SavedAt
	for _, q := range snap.Records {
		s.records[q.Symbol] = q
		s.attempted[q.Symbol] = struct{}{}
	}
	for _, sym := range snap.Failed {
		if _, ok := s.records[sym]; !ok {
			s.failed[sym] = struct{}{}
		}
	}
	return s
}

// expired reports whether a checkpoint saved at savedAt is too old at now.
func expired(savedAt, now time.Time, maxAge time.Duration) bool {
	return savedAt.IsZero() || now.Sub(savedAt) > maxAge
}

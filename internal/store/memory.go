package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"faultline/internal/fingerprint"
)

// MemoryStore has the same per-statement semantics as PostgresStore: each
// method is atomic on its own and nothing is held between calls, so the race
// between RecordOccurrence and FinalizeNew is reproduced faithfully.
type MemoryStore struct {
	mu      sync.Mutex
	records map[fingerprint.Fingerprint]*ErrorRecord
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[fingerprint.Fingerprint]*ErrorRecord),
		now:     time.Now,
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) RecordOccurrence(_ context.Context, fp fingerprint.Fingerprint) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[fp]
	if !ok {
		return Unseen(), nil
	}
	rec.Occurrences++
	rec.UpdatedAt = s.now()
	return Repeated(rec.NotificationRef, rec.Occurrences), nil
}

func (s *MemoryStore) FinalizeNew(_ context.Context, in NewRecord, candidateRef int64) (FinalizeOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if rec, ok := s.records[in.Fingerprint]; ok {
		rec.Occurrences++
		rec.UpdatedAt = now
		return finalizeOutcome(candidateRef, rec.NotificationRef, rec.Occurrences), nil
	}
	s.records[in.Fingerprint] = &ErrorRecord{
		Fingerprint:     in.Fingerprint,
		Payload:         in.Payload,
		Occurrences:     1,
		NotificationRef: candidateRef,
		Event:           in.Event,
		Headline:        in.Headline,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return Won(candidateRef, 1), nil
}

func (s *MemoryStore) FetchPayload(_ context.Context, notificationRef int64) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.NotificationRef == notificationRef {
			return rec.Payload, true, nil
		}
	}
	return "", false, nil
}

func (s *MemoryStore) GetRecord(_ context.Context, fp fingerprint.Fingerprint) (ErrorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[fp]
	if !ok {
		return ErrorRecord{}, ErrNotFound
	}
	return *rec, nil
}

func (s *MemoryStore) ListRecent(_ context.Context, limit int) ([]ErrorRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	items := make([]ErrorRecord, 0, len(s.records))
	for _, rec := range s.records {
		item := *rec
		item.Payload = ""
		items = append(items, item)
	}
	s.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Len reports how many distinct fingerprints are stored.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faultline/internal/fingerprint"
)

func newRecord(payload string) NewRecord {
	return NewRecord{
		Fingerprint: fingerprint.OfString(payload),
		Payload:     payload,
		Event:       "command",
		Headline:    payload,
	}
}

func TestMemoryStoreFirstOccurrenceIsNew(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec := newRecord("panic: X at line 10")

	outcome, err := s.RecordOccurrence(ctx, rec.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNew, outcome.Kind)
	assert.Equal(t, 0, s.Len(), "RecordOccurrence must not insert")

	final, err := s.FinalizeNew(ctx, rec, 1001)
	require.NoError(t, err)
	assert.Equal(t, Won(1001, 1), final)

	outcome, err = s.RecordOccurrence(ctx, rec.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, Repeated(1001, 2), outcome)
}

func TestMemoryStoreFinalizeConflictReturnsCanonical(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec := newRecord("boom")

	first, err := s.FinalizeNew(ctx, rec, 1)
	require.NoError(t, err)
	second, err := s.FinalizeNew(ctx, rec, 2)
	require.NoError(t, err)

	assert.Equal(t, FinalizeWon, first.Kind)
	assert.Equal(t, FinalizeLost, second.Kind)
	assert.Equal(t, int64(1), second.CanonicalRef)
	assert.Equal(t, int64(2), second.Occurrences)

	got, err := s.GetRecord(ctx, rec.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.NotificationRef)
	assert.Equal(t, "boom", got.Payload)
}

func TestMemoryStoreConcurrentFinalizeHasOneWinner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec := newRecord("race")

	const producers = 32
	results := make([]FinalizeOutcome, producers)
	var wg sync.WaitGroup
	for i := range producers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := s.FinalizeNew(ctx, rec, int64(i+1))
			assert.NoError(t, err)
			results[i] = out
		}(i)
	}
	wg.Wait()

	winners := 0
	var winnerRef int64
	for _, out := range results {
		if out.Kind == FinalizeWon {
			winners++
			winnerRef = out.CanonicalRef
		}
	}
	require.Equal(t, 1, winners)
	for _, out := range results {
		assert.Equal(t, winnerRef, out.CanonicalRef)
	}

	got, err := s.GetRecord(ctx, rec.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, int64(producers), got.Occurrences)
	assert.Equal(t, winnerRef, got.NotificationRef)
}

func TestMemoryStoreFetchPayload(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, err := s.FinalizeNew(ctx, newRecord("full traceback"), 77)
	require.NoError(t, err)

	payload, found, err := s.FetchPayload(ctx, 77)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "full traceback", payload)

	_, found, err = s.FetchPayload(ctx, 78)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStoreGetRecordNotFound(t *testing.T) {
	_, err := NewMemoryStore().GetRecord(context.Background(), fingerprint.OfString("nope"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreListRecentOmitsPayload(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i, payload := range []string{"a", "b", "c"} {
		_, err := s.FinalizeNew(ctx, newRecord(payload), int64(i+1))
		require.NoError(t, err)
	}

	items, err := s.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.Empty(t, item.Payload)
		assert.NotZero(t, item.NotificationRef)
	}
}

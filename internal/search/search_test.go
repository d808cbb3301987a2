package search

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawHit(t *testing.T, fields map[string]any) meili.Hit {
	t.Helper()
	hit := meili.Hit{}
	for k, v := range fields {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		hit[k] = raw
	}
	return hit
}

func TestHitToResultPrefersFormattedFields(t *testing.T) {
	hit := rawHit(t, map[string]any{
		"id":              "abc",
		"headline":        "panic: boom",
		"event":           "Ready",
		"payload":         "panic: boom\ngoroutine 1",
		"notificationRef": "1180000000000000001",
		"occurrences":     7,
		"updatedAt":       1700000000,
		"_formatted": map[string]any{
			"headline": "<mark>panic</mark>: boom",
			"payload":  "…<mark>panic</mark>: boom…",
		},
	})

	r := hitToResult(hit)
	assert.Equal(t, "abc", r.Fingerprint)
	assert.Equal(t, "<mark>panic</mark>: boom", r.Headline)
	assert.Equal(t, "…<mark>panic</mark>: boom…", r.Snippet)
	assert.Equal(t, "Ready", r.Event)
	assert.Equal(t, "1180000000000000001", r.NotificationRef)
	assert.EqualValues(t, 7, r.Occurrences)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), r.UpdatedAt)
}

func TestHitToResultFallsBackToRawFields(t *testing.T) {
	r := hitToResult(rawHit(t, map[string]any{"id": "abc", "headline": "boom", "payload": "short"}))
	assert.Equal(t, "boom", r.Headline)
	assert.Equal(t, "short", r.Snippet)
	assert.True(t, r.UpdatedAt.IsZero())
}

func TestTruncateSnippet(t *testing.T) {
	assert.Equal(t, "short", TruncateSnippet("short"))
	long := TruncateSnippet(strings.Repeat("x", 1000))
	assert.True(t, strings.HasSuffix(long, "…"))
	assert.Len(t, long, 240+len("…"))
}

func TestServiceWithoutBackends(t *testing.T) {
	svc := NewService(nil, nil, nil)
	resp := svc.Search(context.Background(), Query{Text: "boom"})
	assert.Equal(t, "none", resp.Backend)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestPgFTSEmptyQuery(t *testing.T) {
	results, total, err := NewPgFTS(nil).Search(context.Background(), Query{Text: "   "})
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Zero(t, total)
}

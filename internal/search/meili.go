package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

const idxErrors = "faultline_errors"

// Meili implements Searcher over a Meilisearch index of error records.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
	logger  *zap.Logger
}

// NewMeili creates a Meilisearch client and configures the index. An
// unreachable server is not an error; the health loop picks it up later.
func NewMeili(logger *zap.Logger, url, apiKey string) *Meili {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
		logger: logger.Named("search.meili"),
	}

	if _, err := client.Health(); err != nil {
		m.logger.Warn("Meilisearch unavailable", zap.String("url", url), zap.Error(err))
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxErrors,
		PrimaryKey: "id",
	}); err != nil {
		m.logger.Debug("Create index (may already exist)", zap.String("index", idxErrors), zap.Error(err))
	}

	index := m.client.Index(idxErrors)
	filterable := []interface{}{"event"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn("Update filterable attributes", zap.String("index", idxErrors), zap.Error(err))
	}
	searchable := []string{"headline", "event", "payload"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("Update searchable attributes", zap.String("index", idxErrors), zap.Error(err))
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info("Meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(_ context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}
	sr := &meili.SearchRequest{
		IndexUID:              idxErrors,
		Query:                 q.Text,
		Limit:                 limit,
		Offset:                int64(q.Offset),
		AttributesToHighlight: []string{"headline"},
		AttributesToCrop:      []string{"payload"},
		CropLength:            30,
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if q.FilterEvent != "" {
		sr.Filter = []string{fmt.Sprintf("event = %q", q.FilterEvent)}
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{sr},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	var results []Result
	total := 0
	for _, r := range resp.Results {
		total += int(r.EstimatedTotalHits)
		for _, hit := range r.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

func hitToResult(hit meili.Hit) Result {
	r := Result{
		Fingerprint:     decodeString(hit, "id"),
		Event:           decodeString(hit, "event"),
		NotificationRef: decodeString(hit, "notificationRef"),
		Occurrences:     decodeInt(hit, "occurrences"),
	}
	r.Headline = firstNonBlank(decodeFormattedString(hit, "headline"), decodeString(hit, "headline"))
	r.Snippet = firstNonBlank(decodeFormattedString(hit, "payload"), TruncateSnippet(decodeString(hit, "payload")))
	if ts := decodeInt(hit, "updatedAt"); ts > 0 {
		r.UpdatedAt = time.Unix(ts, 0).UTC()
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeInt(hit meili.Hit, key string) int64 {
	raw, ok := hit[key]
	if !ok {
		return 0
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	return 0
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(formatted[key], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexError adds or replaces one error record in the index.
func (m *Meili) IndexError(doc ErrorDocument) error {
	_, err := m.client.Index(idxErrors).AddDocuments([]ErrorDocument{doc}, nil)
	return err
}

// IndexErrors bulk-indexes error records.
func (m *Meili) IndexErrors(docs []ErrorDocument) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := m.client.Index(idxErrors).AddDocuments(docs, nil)
	return err
}

package search

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"faultline/internal/notifier"
	"faultline/internal/pipeline"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili  *Meili
	pgfts  *PgFTS
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a search service. Either backend may be nil.
func NewService(logger *zap.Logger, meili *Meili, pgfts *PgFTS) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{meili: meili, pgfts: pgfts, logger: logger.Named("search"), now: time.Now}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "meilisearch"}
		}
		s.logger.Warn("Meilisearch error, falling back to pgfts", zap.Error(err))
	}

	if s.pgfts == nil {
		return Response{Results: []Result{}, Query: q.Text, Backend: "none"}
	}
	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		s.logger.Error("pgfts error", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Backend: "pgfts"}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "pgfts"}
}

// Recorded indexes the record behind a processed report (fire-and-forget to
// Meilisearch).
func (s *Service) Recorded(rec pipeline.Recorded) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	doc := ErrorDocument{
		ID:              rec.Fingerprint.String(),
		Headline:        notifier.TruncateHeadline(rec.Headline, notifier.HeadlineLimit),
		Event:           rec.Event,
		Payload:         notifier.TruncateHeadline(rec.Payload, maxIndexedPayload),
		NotificationRef: strconv.FormatUint(uint64(rec.NotificationRef), 10),
		Occurrences:     rec.Occurrences,
		UpdatedAt:       s.now().Unix(),
	}
	go func() {
		if err := s.meili.IndexError(doc); err != nil {
			s.logger.Warn("Index error record", zap.String("fingerprint", doc.ID), zap.Error(err))
		}
	}()
}

// ReindexAllFromPG pushes every error record from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	docs, err := s.pgfts.LoadAll(ctx)
	if err != nil {
		s.logger.Error("Reindex load failed", zap.Error(err))
		return
	}
	if err := s.meili.IndexErrors(docs); err != nil {
		s.logger.Error("Reindex failed", zap.Int("records", len(docs)), zap.Error(err))
		return
	}
	s.logger.Info("Reindexed error records", zap.Int("records", len(docs)))
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

// TruncateSnippet shortens a raw payload for display in results.
func TruncateSnippet(payload string) string {
	const snippetLimit = 240
	if len(payload) <= snippetLimit {
		return payload
	}
	return notifier.TruncateHeadline(payload, snippetLimit) + "…"
}

package search

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"faultline/internal/fingerprint"
)

// PgFTS implements Searcher with the generated tsvector on the errors table.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search ranks error records with plainto_tsquery and ts_rank, using
// ts_headline over the payload for snippets.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "e.fts @@ plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	if q.FilterEvent != "" {
		where += " AND e.event = $2"
		args = append(args, q.FilterEvent)
	}

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM errors e WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT e.fingerprint, e.headline, e.event,
			ts_headline('simple', left(e.payload, 100000), plainto_tsquery('simple', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			e.notification_ref, e.occurrences, e.updated_at
		FROM errors e
		WHERE %s
		ORDER BY ts_rank(e.fts, plainto_tsquery('simple', $1)) DESC, e.updated_at DESC
		LIMIT %d OFFSET %d`, where, limit, offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r   Result
			raw []byte
			ref int64
		)
		if err := rows.Scan(&raw, &r.Headline, &r.Event, &r.Snippet, &ref, &r.Occurrences, &r.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		fp, err := fingerprint.FromBytes(raw)
		if err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Fingerprint = fp.String()
		r.NotificationRef = strconv.FormatInt(ref, 10)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAll returns every error record for full reindexing.
func (p *PgFTS) LoadAll(ctx context.Context) ([]ErrorDocument, error) {
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT fingerprint, headline, event, left(payload, %d), notification_ref, occurrences, updated_at
		FROM errors
	`, maxIndexedPayload))
	if err != nil {
		return nil, fmt.Errorf("load error records: %w", err)
	}
	defer rows.Close()

	docs := make([]ErrorDocument, 0)
	for rows.Next() {
		var (
			d         ErrorDocument
			raw       []byte
			ref       int64
			updatedAt time.Time
		)
		if err := rows.Scan(&raw, &d.Headline, &d.Event, &d.Payload, &ref, &d.Occurrences, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan error record: %w", err)
		}
		fp, err := fingerprint.FromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("scan error record: %w", err)
		}
		d.ID = fp.String()
		d.NotificationRef = strconv.FormatInt(ref, 10)
		d.UpdatedAt = updatedAt.Unix()
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate error records: %w", err)
	}
	return docs, nil
}

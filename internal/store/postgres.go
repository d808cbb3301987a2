package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"faultline/internal/fingerprint"
)

// PostgresStore is the dedup store backed by the errors table. Every write is a
// single statement so concurrent producers are arbitrated by Postgres alone.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RecordOccurrence increments the counter of an existing record in place.
// When no record exists it returns OutcomeNew without writing anything.
func (s *PostgresStore) RecordOccurrence(ctx context.Context, fp fingerprint.Fingerprint) (Outcome, error) {
	const query = `
		UPDATE errors
		SET occurrences = occurrences + 1, updated_at = NOW()
		WHERE fingerprint = $1
		RETURNING notification_ref, occurrences
	`
	var ref, occurrences int64
	err := s.db.QueryRowContext(ctx, query, fp.Bytes()).Scan(&ref, &occurrences)
	if errors.Is(err, sql.ErrNoRows) {
		return Unseen(), nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("record occurrence: %w", err)
	}
	return Repeated(ref, occurrences), nil
}

// FinalizeNew inserts the record pointing at candidateRef. If a concurrent
// producer inserted first, the existing row's counter is incremented instead
// and its notification_ref comes back as the canonical one.
func (s *PostgresStore) FinalizeNew(ctx context.Context, rec NewRecord, candidateRef int64) (FinalizeOutcome, error) {
	const query = `
		INSERT INTO errors (fingerprint, payload, occurrences, notification_ref, event, headline)
		VALUES ($1, $2, 1, $3, $4, $5)
		ON CONFLICT (fingerprint)
		DO UPDATE SET occurrences = errors.occurrences + 1, updated_at = NOW()
		RETURNING errors.notification_ref, errors.occurrences
	`
	var persistedRef, occurrences int64
	err := s.db.QueryRowContext(ctx, query,
		rec.Fingerprint.Bytes(),
		rec.Payload,
		candidateRef,
		rec.Event,
		rec.Headline,
	).Scan(&persistedRef, &occurrences)
	if err != nil {
		return FinalizeOutcome{}, fmt.Errorf("finalize error record: %w", err)
	}
	return finalizeOutcome(candidateRef, persistedRef, occurrences), nil
}

// FetchPayload looks a record up by the notification it is correlated with.
func (s *PostgresStore) FetchPayload(ctx context.Context, notificationRef int64) (string, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM errors WHERE notification_ref = $1 LIMIT 1
	`, notificationRef).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("fetch payload: %w", err)
	}
	return payload, true, nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, fp fingerprint.Fingerprint) (ErrorRecord, error) {
	var (
		item ErrorRecord
		raw  []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT fingerprint, payload, occurrences, notification_ref, event, headline, created_at, updated_at
		FROM errors
		WHERE fingerprint = $1
	`, fp.Bytes()).Scan(
		&raw,
		&item.Payload,
		&item.Occurrences,
		&item.NotificationRef,
		&item.Event,
		&item.Headline,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrorRecord{}, ErrNotFound
	}
	if err != nil {
		return ErrorRecord{}, fmt.Errorf("get error record: %w", err)
	}
	if item.Fingerprint, err = fingerprint.FromBytes(raw); err != nil {
		return ErrorRecord{}, fmt.Errorf("get error record: %w", err)
	}
	return item, nil
}

// ListRecent returns the most recently seen records without their payloads.
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]ErrorRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, occurrences, notification_ref, event, headline, created_at, updated_at
		FROM errors
		ORDER BY updated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list error records: %w", err)
	}
	defer rows.Close()

	items := make([]ErrorRecord, 0)
	for rows.Next() {
		var (
			item ErrorRecord
			raw  []byte
		)
		if err := rows.Scan(&raw, &item.Occurrences, &item.NotificationRef, &item.Event, &item.Headline, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan error record: %w", err)
		}
		if item.Fingerprint, err = fingerprint.FromBytes(raw); err != nil {
			return nil, fmt.Errorf("scan error record: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate error records: %w", err)
	}
	return items, nil
}

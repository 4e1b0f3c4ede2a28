package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/flashmart/coupon-service/internal/core/domain"
)

type MySQLOutboxStore struct {
	db *sql.DB
}

func NewMySQLOutboxStore(db *sql.DB) *MySQLOutboxStore {
	return &MySQLOutboxStore{db: db}
}

// Insert joins the caller's transaction: the event row exists exactly once
// if the transaction commits and not at all if it rolls back.
func (s *MySQLOutboxStore) Insert(ctx context.Context, tx *sql.Tx, event *domain.OutboxEvent) error {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO order_outbox_events
			(aggregate_type, aggregate_id, event_type, payload, occurred_at, status, created_at, retry_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		event.AggregateType, event.AggregateID, event.EventType,
		event.Payload, event.OccurredAt, event.Status, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("outbox event id: %w", err)
	}
	event.ID = id
	return nil
}

// FetchPending reads pending events oldest first; the (status, created_at)
// index keeps the poll cheap.
func (s *MySQLOutboxStore) FetchPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, occurred_at,
		       status, created_at, published_at, last_error, retry_count
		FROM order_outbox_events
		WHERE status = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?`,
		domain.OutboxStatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending events: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		var (
			ev          domain.OutboxEvent
			publishedAt sql.NullTime
			lastError   sql.NullString
		)
		err := rows.Scan(&ev.ID, &ev.AggregateType, &ev.AggregateID, &ev.EventType,
			&ev.Payload, &ev.OccurredAt, &ev.Status, &ev.CreatedAt,
			&publishedAt, &lastError, &ev.RetryCount)
		if err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		if publishedAt.Valid {
			ev.PublishedAt = &publishedAt.Time
		}
		ev.LastError = lastError.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *MySQLOutboxStore) MarkPublished(ctx context.Context, eventID int64, publishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE order_outbox_events
		SET status = ?, published_at = ?
		WHERE id = ?`,
		domain.OutboxStatusPublished, publishedAt, eventID,
	)
	if err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

func (s *MySQLOutboxStore) RecordFailure(ctx context.Context, eventID int64, lastError string, terminal bool) error {
	status := domain.OutboxStatusPending
	if terminal {
		status = domain.OutboxStatusFailed
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE order_outbox_events
		SET retry_count = retry_count + 1, last_error = ?, status = ?
		WHERE id = ?`,
		lastError, status, eventID,
	)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

package port

import (
	"context"
	"database/sql"
	"time"

	"github.com/flashmart/coupon-service/internal/core/domain"
)

type OutboxStore interface {
	// Insert writes the event row inside the caller's transaction, so the
	// event exists iff the triggering business mutation commits.
	Insert(ctx context.Context, tx *sql.Tx, event *domain.OutboxEvent) error

	// FetchPending returns pending events oldest first.
	FetchPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)

	MarkPublished(ctx context.Context, eventID int64, publishedAt time.Time) error

	// RecordFailure increments the retry count and records the error; with
	// terminal set the event moves to the failed state and is never retried
	// automatically.
	RecordFailure(ctx context.Context, eventID int64, lastError string, terminal bool) error
}

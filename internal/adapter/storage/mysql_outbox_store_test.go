package storage

import (
	"context"
	"testing"
	"time"

	"github.com/flashmart/coupon-service/internal/core/domain"
)

func newOutboxEvent(orderID string) *domain.OutboxEvent {
	return &domain.OutboxEvent{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   orderID,
		EventType:     domain.EventTypeOrderPaid,
		Payload:       []byte(`{"order_id":1}`),
		OccurredAt:    time.Now(),
		Status:        domain.OutboxStatusPending,
		CreatedAt:     time.Now(),
	}
}

func TestOutboxInsert_CommitsWithTransaction(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewMySQLOutboxStore(db)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx failed: %v", err)
	}

	event := newOutboxEvent("test-commit-1")
	if err := store.Insert(ctx, tx, event); err != nil {
		tx.Rollback()
		t.Fatalf("Insert failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	t.Cleanup(func() {
		db.ExecContext(ctx, `DELETE FROM order_outbox_events WHERE id = ?`, event.ID)
	})

	if event.ID == 0 {
		t.Error("expected event id assigned on insert")
	}

	var count int
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM order_outbox_events WHERE id = ?`, event.ID).Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 row after commit, got %d", count)
	}
}

func TestOutboxInsert_RollsBackWithTransaction(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewMySQLOutboxStore(db)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx failed: %v", err)
	}

	event := newOutboxEvent("test-rollback-1")
	if err := store.Insert(ctx, tx, event); err != nil {
		tx.Rollback()
		t.Fatalf("Insert failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}

	// A rolled-back business transaction leaves no event behind.
	var count int
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM order_outbox_events WHERE id = ?`, event.ID).Scan(&count)
	if count != 0 {
		t.Errorf("expected 0 rows after rollback, got %d", count)
	}
}

func TestFetchPending_OldestFirst(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewMySQLOutboxStore(db)

	db.ExecContext(ctx, `DELETE FROM order_outbox_events WHERE aggregate_id LIKE 'test-fetch-%'`)

	var ids []int64
	for i, orderID := range []string{"test-fetch-1", "test-fetch-2"} {
		tx, _ := db.BeginTx(ctx, nil)
		event := newOutboxEvent(orderID)
		event.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
		if err := store.Insert(ctx, tx, event); err != nil {
			tx.Rollback()
			t.Fatalf("Insert failed: %v", err)
		}
		tx.Commit()
		ids = append(ids, event.ID)
	}
	t.Cleanup(func() {
		db.ExecContext(ctx, `DELETE FROM order_outbox_events WHERE aggregate_id LIKE 'test-fetch-%'`)
	})

	events, err := store.FetchPending(ctx, 100)
	if err != nil {
		t.Fatalf("FetchPending failed: %v", err)
	}

	// Both test events come back, older first.
	var seen []int64
	for _, event := range events {
		if event.AggregateID == "test-fetch-1" || event.AggregateID == "test-fetch-2" {
			seen = append(seen, event.ID)
		}
	}
	if len(seen) != 2 {
		t.Fatalf("expected 2 test events, got %d", len(seen))
	}
	if seen[0] != ids[0] || seen[1] != ids[1] {
		t.Errorf("expected order %v, got %v", ids, seen)
	}
}

func TestMarkPublished_RemovesFromPending(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewMySQLOutboxStore(db)

	tx, _ := db.BeginTx(ctx, nil)
	event := newOutboxEvent("test-publish-1")
	if err := store.Insert(ctx, tx, event); err != nil {
		tx.Rollback()
		t.Fatalf("Insert failed: %v", err)
	}
	tx.Commit()
	t.Cleanup(func() {
		db.ExecContext(ctx, `DELETE FROM order_outbox_events WHERE id = ?`, event.ID)
	})

	if err := store.MarkPublished(ctx, event.ID, time.Now()); err != nil {
		t.Fatalf("MarkPublished failed: %v", err)
	}

	var status string
	var publishedAt time.Time
	db.QueryRowContext(ctx,
		`SELECT status, published_at FROM order_outbox_events WHERE id = ?`, event.ID,
	).Scan(&status, &publishedAt)
	if status != string(domain.OutboxStatusPublished) {
		t.Errorf("expected published, got %s", status)
	}
	if publishedAt.IsZero() {
		t.Error("expected published_at set")
	}
}

func TestRecordFailure_TerminalMovesToFailed(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewMySQLOutboxStore(db)

	tx, _ := db.BeginTx(ctx, nil)
	event := newOutboxEvent("test-failure-1")
	if err := store.Insert(ctx, tx, event); err != nil {
		tx.Rollback()
		t.Fatalf("Insert failed: %v", err)
	}
	tx.Commit()
	t.Cleanup(func() {
		db.ExecContext(ctx, `DELETE FROM order_outbox_events WHERE id = ?`, event.ID)
	})

	// Non-terminal failure keeps the event pending.
	if err := store.RecordFailure(ctx, event.ID, "broker unavailable", false); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	var status, lastError string
	var retries int
	db.QueryRowContext(ctx,
		`SELECT status, last_error, retry_count FROM order_outbox_events WHERE id = ?`, event.ID,
	).Scan(&status, &lastError, &retries)
	if status != string(domain.OutboxStatusPending) {
		t.Errorf("expected pending after retryable failure, got %s", status)
	}
	if retries != 1 || lastError != "broker unavailable" {
		t.Errorf("expected retry 1 with error recorded, got %d %q", retries, lastError)
	}

	// Terminal failure parks the event.
	if err := store.RecordFailure(ctx, event.ID, "broker unavailable", true); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	db.QueryRowContext(ctx,
		`SELECT status, retry_count FROM order_outbox_events WHERE id = ?`, event.ID,
	).Scan(&status, &retries)
	if status != string(domain.OutboxStatusFailed) {
		t.Errorf("expected failed after terminal failure, got %s", status)
	}
	if retries != 2 {
		t.Errorf("expected retry count 2, got %d", retries)
	}
}

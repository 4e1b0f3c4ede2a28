package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/flashmart/coupon-service/internal/core/domain"
	"github.com/flashmart/coupon-service/internal/port"
)

// OutboxService serializes business events into outbox rows. The caller
// passes its own transaction, so the event commits or rolls back with the
// mutation that produced it; no second commit boundary exists.
type OutboxService struct {
	store port.OutboxStore
}

func NewOutboxService(store port.OutboxStore) *OutboxService {
	return &OutboxService{store: store}
}

func (s *OutboxService) EnqueueOrderPaid(ctx context.Context, tx *sql.Tx, event domain.OrderPaidEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order paid event: %w", err)
	}

	return s.store.Insert(ctx, tx, &domain.OutboxEvent{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   strconv.FormatInt(event.OrderID, 10),
		EventType:     domain.EventTypeOrderPaid,
		Payload:       payload,
		OccurredAt:    event.PaidAt,
		Status:        domain.OutboxStatusPending,
		CreatedAt:     time.Now(),
	})
}

package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/flashmart/coupon-service/internal/core/domain"
	"github.com/flashmart/coupon-service/internal/port"
)

type OutboxWorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int
}

// OutboxWorker drains pending outbox rows to the broker, fully decoupled
// from the request path: a broker outage never touches the originating
// transaction. Delivery is at-least-once; a crash between publish and the
// status update causes redelivery, which consumers deduplicate.
type OutboxWorker struct {
	store     port.OutboxStore
	publisher port.EventPublisher
	cfg       OutboxWorkerConfig
	logger    zerolog.Logger
}

func NewOutboxWorker(store port.OutboxStore, publisher port.EventPublisher, cfg OutboxWorkerConfig, logger zerolog.Logger) *OutboxWorker {
	return &OutboxWorker{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With().Str("component", "outbox_worker").Logger(),
	}
}

func (w *OutboxWorker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.drainOnce(ctx)
		}
	}
}

func (w *OutboxWorker) drainOnce(ctx context.Context) {
	events, err := w.store.FetchPending(ctx, w.cfg.BatchSize)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to fetch pending outbox events")
		return
	}

	for _, event := range events {
		if err := w.publisher.Publish(ctx, event.AggregateID, event.Payload); err != nil {
			w.recordFailure(ctx, event, err)
			continue
		}

		if err := w.store.MarkPublished(ctx, event.ID, time.Now()); err != nil {
			// The publish went out; on redelivery consumers dedupe by
			// aggregate id.
			w.logger.Error().Err(err).Int64("event_id", event.ID).Msg("failed to mark event published")
		}
	}
}

func (w *OutboxWorker) recordFailure(ctx context.Context, event domain.OutboxEvent, publishErr error) {
	terminal := event.RetryCount+1 >= w.cfg.MaxRetries

	if err := w.store.RecordFailure(ctx, event.ID, publishErr.Error(), terminal); err != nil {
		w.logger.Error().Err(err).Int64("event_id", event.ID).Msg("failed to record publish failure")
		return
	}

	if terminal {
		// Terminal failures are an operational signal, not a retry loop.
		w.logger.Error().Err(publishErr).
			Int64("event_id", event.ID).
			Str("aggregate_id", event.AggregateID).
			Int("retry_count", event.RetryCount+1).
			Msg("outbox event exhausted retries, marked failed")
	} else {
		w.logger.Warn().Err(publishErr).
			Int64("event_id", event.ID).
			Int("retry_count", event.RetryCount+1).
			Msg("outbox publish failed, will retry")
	}
}

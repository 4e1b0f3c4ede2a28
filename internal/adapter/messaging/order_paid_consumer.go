package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/flashmart/coupon-service/internal/core/domain"
	"github.com/flashmart/coupon-service/internal/core/service"
)

// OrderPaidConsumer drives the coupon usage flow from paid-order events.
// The topic is at-least-once; the usage service deduplicates by orderId.
type OrderPaidConsumer struct {
	reader *kafka.Reader
	usage  *service.UsageService
	logger zerolog.Logger
}

func NewOrderPaidConsumer(brokers []string, topic, groupID string, usage *service.UsageService, logger zerolog.Logger) *OrderPaidConsumer {
	return &OrderPaidConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		}),
		usage:  usage,
		logger: logger.With().Str("component", "order_paid_consumer").Logger(),
	}
}

func (c *OrderPaidConsumer) Start(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error().Err(err).Msg("failed to fetch order paid message")
			time.Sleep(time.Second)
			continue
		}

		var event domain.OrderPaidEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.Error().Err(err).Msg("malformed order paid event, skipping")
			c.commit(ctx, msg)
			continue
		}

		if err := c.usage.HandleOrderPaid(ctx, event); err != nil {
			// Infra failure: keep the offset so the event is redelivered.
			c.logger.Error().Err(err).Int64("order_id", event.OrderID).Msg("failed to process order paid event")
			time.Sleep(time.Second)
			continue
		}

		c.commit(ctx, msg)
	}
}

func (c *OrderPaidConsumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error().Err(err).Msg("failed to commit order paid offset")
	}
}

func (c *OrderPaidConsumer) Close() error {
	return c.reader.Close()
}

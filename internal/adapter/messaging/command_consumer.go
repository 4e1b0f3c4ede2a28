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

// CommandConsumer serves the cross-service coupon command contract: it
// reads CouponCommand messages, dispatches them to the command service and
// writes the result to the reply topic keyed by requestId.
type CommandConsumer struct {
	reader   *kafka.Reader
	replies  *kafka.Writer
	commands *service.CommandService
	logger   zerolog.Logger
}

func NewCommandConsumer(brokers []string, topic, replyTopic, groupID string, commands *service.CommandService, logger zerolog.Logger) *CommandConsumer {
	return &CommandConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		}),
		replies: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        replyTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		commands: commands,
		logger:   logger.With().Str("component", "command_consumer").Logger(),
	}
}

func (c *CommandConsumer) Start(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error().Err(err).Msg("failed to fetch command message")
			time.Sleep(time.Second)
			continue
		}

		var cmd domain.CouponCommand
		if err := json.Unmarshal(msg.Value, &cmd); err != nil {
			// Malformed commands cannot be replied to; skip past them.
			c.logger.Error().Err(err).Msg("malformed coupon command, skipping")
			c.commit(ctx, msg)
			continue
		}

		result := c.commands.Handle(ctx, cmd)

		payload, err := json.Marshal(result)
		if err != nil {
			c.logger.Error().Err(err).Str("request_id", cmd.RequestID).Msg("failed to marshal command result")
			c.commit(ctx, msg)
			continue
		}
		err = c.replies.WriteMessages(ctx, kafka.Message{
			Key:   []byte(cmd.RequestID),
			Value: payload,
		})
		if err != nil {
			// Leave the offset uncommitted so the command is redelivered;
			// handling is idempotent, the retry is safe.
			c.logger.Error().Err(err).Str("request_id", cmd.RequestID).Msg("failed to write command reply")
			continue
		}

		c.commit(ctx, msg)
	}
}

func (c *CommandConsumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error().Err(err).Msg("failed to commit command offset")
	}
}

func (c *CommandConsumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return err
	}
	return c.replies.Close()
}

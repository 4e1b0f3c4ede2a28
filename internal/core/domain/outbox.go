package domain

import "time"

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

const (
	AggregateTypeOrder = "order"

	EventTypeOrderPaid = "order-paid"
)

// OutboxEvent is written in the same local transaction as the business
// mutation that produced it, and drained asynchronously by the publisher
// worker. Delivery is at-least-once; consumers deduplicate by aggregate id.
type OutboxEvent struct {
	ID            int64
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	OccurredAt    time.Time
	Status        OutboxStatus
	CreatedAt     time.Time
	PublishedAt   *time.Time
	LastError     string
	RetryCount    int
}

package port

import "context"

// EventPublisher delivers a serialized event to the message broker. The key
// is the partition/routing key; events sharing a key keep their order.
type EventPublisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
}

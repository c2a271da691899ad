package producers

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// MessagePublisher writes one keyed JSON message to a topic. Settlement tasks
// key on the transaction ID so every task for a transaction lands on the same
// partition and is consumed in order.
type MessagePublisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
	Close() error
}

// DeadLetterPublisher parks messages that exhausted processing retries,
// keeping the original bytes alongside the failure reason.
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error
	Close() error
}

// KafkaWriter is the subset of kafka.Writer the producers depend on.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

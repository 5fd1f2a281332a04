package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/lightning-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Notifier publishes refresh events after a feed's table is replaced.
// It implements pipeline.Notifier.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the given brokers and topic.
func NewNotifier(brokers []string, topic string, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Notifier{writer: w, logger: logger}
}

// Notify publishes one refresh event keyed by feed name, so events for the
// same feed stay ordered within a partition.
func (n *Notifier) Notify(ctx context.Context, event domain.RefreshEvent) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish refresh event: %w", err)
	}
	n.logger.Debug("refresh event published", "feed", event.Feed, "topic", n.writer.Topic)
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals a RefreshEvent into a Kafka message.
func serializeToMessage(event domain.RefreshEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize refresh event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.Feed),
		Value: data,
		Time:  event.LoadedAt,
		Headers: []kafkago.Header{
			{Key: "table", Value: []byte(event.Table)},
			{Key: "loaded_at", Value: []byte(event.LoadedAt.Format(time.RFC3339))},
		},
	}, nil
}

package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/example/print-storefront/internal/infrastructure/store"
)

// EventHandler processes one stored event read from the topic.
type EventHandler func(ctx context.Context, event store.Event) error

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	reader messageReader
	logger *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return newConsumer(reader, logger)
}

func newConsumer(reader messageReader, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{reader: reader, logger: logger.Named("kafka")}
}

// Consume reads until ctx is cancelled. Undecodable messages and handler
// errors are logged and skipped so one bad event cannot stall the group.
func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Error("Error reading message", zap.Error(err))
				continue
			}

			event, err := DecodeEvent(msg.Value)
			if err != nil {
				c.logger.Error("Skipping undecodable message",
					zap.ByteString("key", msg.Key),
					zap.Int64("offset", msg.Offset),
					zap.Error(err))
				continue
			}

			if err := handler(ctx, event); err != nil {
				c.logger.Error("Error handling event",
					zap.String("event_type", event.EventType),
					zap.String("aggregate_id", event.AggregateID),
					zap.Error(err))
			}
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeEvent parses a message value written by Producer.
func DecodeEvent(value []byte) (store.Event, error) {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return store.Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if event.EventType == "" || event.AggregateID == "" {
		return store.Event{}, fmt.Errorf("event is missing type or aggregate id")
	}
	return event, nil
}

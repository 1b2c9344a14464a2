package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"paper-trade-go/internal/config"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events as JSON to a Kafka topic, keyed by user id so one
// user's events stay ordered within a partition.
type KafkaSink struct {
	writer messageWriter
	logger *zap.Logger
}

var _ Sink = (*KafkaSink)(nil)

// NewKafkaSink creates a sink writing to cfg.Topic. Writes are asynchronous;
// delivery failures are reported through the logger.
func NewKafkaSink(cfg config.Kafka, logger *zap.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka sink needs at least one broker")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka sink needs a topic")
	}

	log := logger.Named("kafka")
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		Async:                  true,
		AllowAutoTopicCreation: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Error("Failed to deliver events", zap.Int("count", len(messages)), zap.Error(err))
			}
		},
	}
	log.Info("Kafka event sink configured", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.Topic))

	return &KafkaSink{writer: writer, logger: log}, nil
}

func (s *KafkaSink) Write(ctx context.Context, e Event) error {
	msg, err := eventMessage(e)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, msg)
}

// Close flushes pending messages.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

func eventMessage(e Event) (kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode event %s: %w", e.Type, err)
	}
	return kafka.Message{
		Key:   []byte(e.UserID.String()),
		Value: value,
		Time:  e.At,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}, nil
}

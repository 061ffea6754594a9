package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/CDeX-Labs/CDeX-Balloon-Service/pkg/events"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Producer publishes delivered events for downstream printers and
// scoreboards. Messages are keyed by pair key so one pair stays ordered.
type Producer struct {
	writer *kafka.Writer
	topic  string
	logger zerolog.Logger
}

func NewProducer(brokers []string, topic string, logger zerolog.Logger) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		topic:  topic,
		logger: logger.With().Str("component", "kafka-producer").Logger(),
	}
}

func (p *Producer) Name() string { return "kafka" }

func (p *Producer) Send(ctx context.Context, event events.DeliveredEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal delivered event: %w", err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Key),
		Value: data,
	}); err != nil {
		return fmt.Errorf("failed to write to %s: %w", p.topic, err)
	}

	p.logger.Debug().Str("topic", p.topic).Str("key", event.Key).Msg("Delivered event published")
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

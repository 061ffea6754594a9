package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/CDeX-Labs/CDeX-Balloon-Service/pkg/events"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Notifier surfaces a message to the runners' boards.
type Notifier func(message string)

type Handlers struct {
	notify Notifier
	logger zerolog.Logger
}

func NewHandlers(notify Notifier, logger zerolog.Logger) *Handlers {
	return &Handlers{
		notify: notify,
		logger: logger.With().Str("component", "kafka-handlers").Logger(),
	}
}

func (h *Handlers) HandlePrintResult(ctx context.Context, msg kafka.Message) error {
	var event events.PrintResultEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error().Err(err).Msg("Failed to unmarshal print result event")
		return err
	}

	switch event.Status {
	case events.PrintStatusPrinted:
		h.logger.Debug().
			Str("deliveryId", event.DeliveryID).
			Msg("Balloon ticket printed")
	case events.PrintStatusFailed:
		h.logger.Error().
			Str("deliveryId", event.DeliveryID).
			Str("message", event.Message).
			Msg("Balloon ticket print failed")
		if h.notify != nil {
			h.notify(fmt.Sprintf("Printing failed for %s: %s", event.DeliveryID, event.Message))
		}
	default:
		return fmt.Errorf("unknown print status %q", event.Status)
	}
	return nil
}

func (h *Handlers) RegisterAll(consumer *Consumer, printResultTopic string) {
	consumer.RegisterHandler(printResultTopic, h.HandlePrintResult)
}

package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/CDeX-Labs/CDeX-Balloon-Service/pkg/events"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const ChannelDelivered = "balloons:events:delivered"

// Envelope kinds. An empty kind is read as KindDelivered.
const (
	KindDelivered = "delivered"
	KindCleared   = "cleared"
)

// Envelope carries a change of the delivered set between service instances
// sharing it: one delivered event, or the whole set being cleared.
type Envelope struct {
	SourceInstance string                 `json:"sourceInstance"`
	Kind           string                 `json:"kind,omitempty"`
	Event          *events.DeliveredEvent `json:"event,omitempty"`
}

func (e *Envelope) Cleared() bool {
	return e.Kind == KindCleared
}

type MessageHandler func(envelope *Envelope)

// PubSub announces deliveries to peer instances and receives theirs. Messages
// published by this instance are ignored on receipt.
type PubSub struct {
	client     *Client
	pubsub     *redis.PubSub
	instanceID string
	handler    MessageHandler
	logger     zerolog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewPubSub(client *Client, handler MessageHandler, logger zerolog.Logger) *PubSub {
	ctx, cancel := context.WithCancel(context.Background())
	return &PubSub{
		client:     client,
		instanceID: uuid.New().String()[:8],
		handler:    handler,
		logger:     logger.With().Str("component", "pubsub").Logger(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (p *PubSub) Start() error {
	p.pubsub = p.client.Subscribe(p.ctx, ChannelDelivered)

	if _, err := p.pubsub.Receive(p.ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go p.listen()

	p.logger.Info().
		Str("instanceId", p.instanceID).
		Str("channel", ChannelDelivered).
		Msg("PubSub started")

	return nil
}

func (p *PubSub) Stop() error {
	p.cancel()
	if p.pubsub != nil {
		return p.pubsub.Close()
	}
	return nil
}

func (p *PubSub) InstanceID() string {
	return p.instanceID
}

func (p *PubSub) listen() {
	ch := p.pubsub.Channel()
	for {
		select {
		case <-p.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			p.handleMessage(msg.Payload)
		}
	}
}

func (p *PubSub) handleMessage(payload string) {
	var envelope Envelope
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		p.logger.Error().Err(err).Msg("Failed to unmarshal pubsub message")
		return
	}

	if envelope.SourceInstance == p.instanceID {
		return
	}

	switch {
	case envelope.Cleared():
		p.logger.Info().
			Str("sourceInstance", envelope.SourceInstance).
			Msg("Received clear from peer")
	case envelope.Event == nil:
		return
	default:
		p.logger.Debug().
			Str("sourceInstance", envelope.SourceInstance).
			Str("key", envelope.Event.Key).
			Msg("Received delivery from peer")
	}

	if p.handler != nil {
		p.handler(&envelope)
	}
}

func (p *PubSub) Name() string {
	return "redis"
}

// Send publishes a delivered event to peers.
func (p *PubSub) Send(ctx context.Context, event events.DeliveredEvent) error {
	return p.publish(ctx, Envelope{Kind: KindDelivered, Event: &event})
}

// PublishCleared tells peers the shared delivered set was emptied.
func (p *PubSub) PublishCleared(ctx context.Context) error {
	return p.publish(ctx, Envelope{Kind: KindCleared})
}

func (p *PubSub) publish(ctx context.Context, envelope Envelope) error {
	data, err := p.encode(envelope)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, ChannelDelivered, data)
}

func (p *PubSub) encode(envelope Envelope) ([]byte, error) {
	envelope.SourceInstance = p.instanceID
	return json.Marshal(envelope)
}

package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/CDeX-Labs/CDeX-Balloon-Service/pkg/protocol"
	"github.com/rs/zerolog"
)

// Commands are the mutations a board may request over its socket.
type Commands interface {
	MarkDelivered(ctx context.Context, id string) (interface{}, bool, error)
}

type Stats interface {
	IncConnections()
	DecConnections()
	IncMessagesSent()
}

// Hub keeps the connected boards and pushes updates to all of them.
type Hub struct {
	clients    map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
	commands   Commands
	stats      Stats
	onLeave    func(*Client)
	done       chan struct{}
	logger     zerolog.Logger
}

func NewHub(commands Commands, stats Stats, logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		commands:   commands,
		stats:      stats,
		done:       make(chan struct{}),
		logger:     logger.With().Str("component", "hub").Logger(),
	}
}

// OnLeave registers fn to run after a client was unregistered.
func (h *Hub) OnLeave(fn func(*Client)) {
	h.onLeave = fn
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.Register:
			h.registerClient(client)
		case client := <-h.Unregister:
			h.unregisterClient(client)
		}
	}
}

// Join hands client to Run. It reports false once the hub has stopped.
func (h *Hub) Join(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	if client.Greet != nil {
		for _, msg := range client.Greet() {
			if msg == nil {
				continue
			}
			data, err := msg.ToBytes()
			if err != nil {
				h.logger.Error().Err(err).Msg("Failed to serialize greeting")
				continue
			}
			h.push(client, data)
		}
	}
	h.mu.Unlock()

	if h.stats != nil {
		h.stats.IncConnections()
	}

	h.logger.Info().
		Str("clientId", client.ID).
		Str("userId", client.UserID).
		Int("totalClients", total).
		Msg("Client registered")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.Send)
	total := len(h.clients)
	h.mu.Unlock()

	if h.stats != nil {
		h.stats.DecConnections()
	}
	if h.onLeave != nil {
		h.onLeave(client)
	}

	h.logger.Info().
		Str("clientId", client.ID).
		Str("userId", client.UserID).
		Int("totalClients", total).
		Msg("Client unregistered")
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.Send)
	}
}

func (h *Hub) ProcessMessage(client *Client, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.logger.Error().Err(err).Str("clientId", client.ID).Msg("Failed to parse message")
		h.sendError(client, "PARSE_ERROR", "Invalid message format", "")
		return
	}

	h.logger.Debug().
		Str("clientId", client.ID).
		Str("type", string(msg.Type)).
		Msg("Processing message")

	switch msg.Type {
	case protocol.MsgMarkDelivered:
		h.handleMarkDelivered(client, msg)
	case protocol.MsgPing:
		response, _ := protocol.NewMessageWithRequestID(protocol.MsgPong, nil, msg.RequestID)
		h.SendToClient(client, response)
	default:
		h.sendError(client, "UNKNOWN_TYPE", "Unknown message type", msg.RequestID)
	}
}

func (h *Hub) handleMarkDelivered(client *Client, msg *protocol.Message) {
	var payload protocol.MarkDeliveredPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.ID == "" {
		h.sendError(client, "INVALID_PAYLOAD", "Delivery id is required", msg.RequestID)
		return
	}

	if h.commands == nil {
		h.sendError(client, "UNAVAILABLE", "Deliveries cannot be changed here", msg.RequestID)
		return
	}

	record, found, err := h.commands.MarkDelivered(context.Background(), payload.ID)
	switch {
	case err != nil:
		h.logger.Error().Err(err).Str("deliveryId", payload.ID).Msg("Mark delivered failed")
		h.sendError(client, "PERSIST_FAILED", "Could not record delivery", msg.RequestID)
	case !found:
		h.sendError(client, "NOT_FOUND", "Delivery not found", msg.RequestID)
	default:
		h.logger.Info().
			Str("clientId", client.ID).
			Str("userId", client.UserID).
			Str("deliveryId", payload.ID).
			Msg("Delivery marked from board")
		response, _ := protocol.NewMessageWithRequestID(protocol.MsgDelivered, record, msg.RequestID)
		h.SendToClient(client, response)
	}
}

func (h *Hub) SendToClient(client *Client, msg *protocol.Message) {
	data, err := msg.ToBytes()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to serialize message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[client] {
		return
	}
	h.push(client, data)
}

// Broadcast sends msg to every connected board. Slow boards miss the
// message rather than holding up the others.
func (h *Hub) Broadcast(msg *protocol.Message) {
	data, err := msg.ToBytes()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to serialize message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		h.push(client, data)
	}
}

// BroadcastType wraps payload in a message of type t and broadcasts it.
func (h *Hub) BroadcastType(t protocol.MessageType, payload interface{}) {
	msg, err := protocol.NewMessage(t, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(t)).Msg("Failed to build message")
		return
	}
	h.Broadcast(msg)
}

// Notify broadcasts a transient notification.
func (h *Hub) Notify(level, message string) {
	h.BroadcastType(protocol.MsgNotification, protocol.NotificationPayload{
		Level:   level,
		Message: message,
	})
}

func (h *Hub) push(client *Client, data []byte) {
	select {
	case client.Send <- data:
		if h.stats != nil {
			h.stats.IncMessagesSent()
		}
	default:
		h.logger.Warn().Str("clientId", client.ID).Msg("Client send buffer full, dropping message")
	}
}

func (h *Hub) sendError(client *Client, code, message, requestID string) {
	errMsg, _ := protocol.NewErrorMessage(code, message, requestID)
	h.SendToClient(client, errMsg)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CommandsFunc adapts a function to Commands.
type CommandsFunc func(ctx context.Context, id string) (interface{}, bool, error)

func (f CommandsFunc) MarkDelivered(ctx context.Context, id string) (interface{}, bool, error) {
	return f(ctx, id)
}

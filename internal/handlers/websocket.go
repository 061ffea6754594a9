package handlers

import (
	"context"
	"net/http"

	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/auth"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/delivery"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/hub"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/pkg/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Presence interface {
	SetOnline(ctx context.Context, userID string) error
}

type WebSocketHandler struct {
	hub      *hub.Hub
	board    func() delivery.Board
	presence Presence
	logger   zerolog.Logger
}

func NewWebSocketHandler(h *hub.Hub, board func() delivery.Board, p Presence, logger zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      h,
		board:    board,
		presence: p,
		logger:   logger.With().Str("component", "ws-handler").Logger(),
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID := uuid.New().String()
	userID := claims.GetUserID()
	client := hub.NewClient(clientID, userID, conn, h.hub, h.logger)

	client.Greet = func() []*protocol.Message {
		return h.greeting(client.ID, userID)
	}
	if !h.hub.Join(client) {
		conn.Close()
		return
	}

	if h.presence != nil {
		if err := h.presence.SetOnline(r.Context(), userID); err != nil {
			h.logger.Warn().Err(err).Str("userId", userID).Msg("Failed to set presence")
		}
	}

	h.logger.Info().
		Str("clientId", clientID).
		Str("userId", userID).
		Str("remoteAddr", r.RemoteAddr).
		Msg("WebSocket connection established")

	go client.WritePump()
	go client.ReadPump()
}

// greeting is the connected message followed by the current board. The hub
// builds it while registering the client, so no board change slips between
// the two.
func (h *WebSocketHandler) greeting(clientID, userID string) []*protocol.Message {
	connected, _ := protocol.NewMessage(protocol.MsgConnected, protocol.ConnectedPayload{
		UserID:   userID,
		ClientID: clientID,
	})
	board, err := protocol.NewMessage(protocol.MsgBoard, h.board())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode board")
		return []*protocol.Message{connected}
	}
	return []*protocol.Message{connected, board}
}

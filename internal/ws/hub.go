package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dm-service/internal/models"
	"dm-service/internal/observability"
)

const (
	wsKind       = "conversation"
	wsRoutingKey = "ws_events.conversations"
	writeTimeout = 5 * time.Second
)

// Conn is the part of *websocket.Conn the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type client struct {
	conn Conn
	info ConnInfo
	mu   sync.Mutex
}

func (cl *client) write(payload []byte) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	_ = cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return cl.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub maintains one websocket room per conversation.
type Hub struct {
	rooms  map[int]map[Conn]*client
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:  make(map[int]map[Conn]*client),
		logger: logger,
	}
}

// AddClient registers a websocket connection to a conversation room.
func (h *Hub) AddClient(conversationID int, conn Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[Conn]*client)
	}
	h.rooms[conversationID][conn] = &client{conn: conn, info: info}
}

// RemoveClient removes a websocket connection.
func (h *Hub) RemoveClient(conversationID int, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.rooms[conversationID]; ok {
		delete(clients, conn)
		if len(clients) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}

// RoomSize returns the number of connections in a room.
func (h *Hub) RoomSize(conversationID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// BroadcastMessages sends newly stored messages to the room.
func (h *Hub) BroadcastMessages(conversationID int, msgs []models.Message) {
	for i := range msgs {
		h.broadcast(conversationID, models.ConversationEvent{Type: "message", Message: &msgs[i]})
	}
}

// BroadcastDeletion notifies clients that a message became a tombstone.
func (h *Hub) BroadcastDeletion(conversationID int, messageID int) {
	h.broadcast(conversationID, models.ConversationEvent{Type: "deleted", MessageID: messageID})
}

// BroadcastReaction notifies clients of a reaction toggle.
func (h *Hub) BroadcastReaction(conversationID int, reaction models.Reaction, added bool) {
	h.broadcast(conversationID, models.ConversationEvent{
		Type:      "reaction",
		MessageID: reaction.MessageID,
		Reaction:  &reaction,
		Added:     &added,
	})
}

// BroadcastTyping notifies clients that a participant is typing.
func (h *Hub) BroadcastTyping(conversationID int, userID int, expiresAt time.Time) {
	h.broadcast(conversationID, models.ConversationEvent{Type: "typing", UserID: userID, ExpiresAt: &expiresAt})
}

func (h *Hub) broadcast(conversationID int, event models.ConversationEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("websocket encode failed", "type", event.Type, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.rooms[conversationID]))
	for _, cl := range h.rooms[conversationID] {
		clients = append(clients, cl)
	}
	h.mu.RUnlock()

	for _, cl := range clients {
		// Typing events are not echoed to the typist.
		if event.Type == "typing" && cl.info.UserID == event.UserID {
			continue
		}
		if err := cl.write(payload); err != nil {
			h.logger.Warn("websocket write error", "conversation_id", conversationID, "conn_id", cl.info.ConnID, "error", err)
			cl.conn.Close()
			h.RemoveClient(conversationID, cl.conn)
			publishWSEvent(context.Background(), "ws_error", cl.info, err.Error())
		}
	}
	observability.IncWSEvent(wsKind, event.Type)
}

func publishWSEvent(ctx context.Context, event string, info ConnInfo, reason string) {
	now := time.Now()
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType:  "ws_events",
		EventName:  event,
		OccurredAt: now.UTC().Format(time.RFC3339Nano),
		RequestID:  info.RequestID,
		TraceID:    info.TraceID,
		Payload:    info.payload(event, reason, now),
	})
	observability.IncWSEvent(wsKind, event)
}

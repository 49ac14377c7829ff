package ws

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"dm-service/internal/middleware"
	"dm-service/internal/models"
	"dm-service/internal/observability"
)

// ConversationLookup loads a conversation with its participants.
type ConversationLookup interface {
	GetConversation(ctx context.Context, conversationID int) (models.Conversation, error)
}

// ConversationWebSocketHandler handles conversation websocket connections.
type ConversationWebSocketHandler struct {
	hub           *Hub
	conversations ConversationLookup
	tokens        middleware.TokenVerifier
}

// NewConversationWebSocketHandler constructs a ConversationWebSocketHandler.
func NewConversationWebSocketHandler(hub *Hub, conversations ConversationLookup, tokens middleware.TokenVerifier) *ConversationWebSocketHandler {
	return &ConversationWebSocketHandler{hub: hub, conversations: conversations, tokens: tokens}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates the caller, checks participation, upgrades the
// connection and registers the client in the conversation room.
func (h *ConversationWebSocketHandler) Handle(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	ctx, span := otel.Tracer("dm-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token, ok := middleware.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		token = c.Query("token")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	userID, err := h.tokens.Verify(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conv, err := h.conversations.GetConversation(ctx, conversationID)
	if err != nil || !conv.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for conversation"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := ConnInfo{
		ConnID:         newConnID(),
		ConversationID: conversationID,
		UserID:         userID,
		IP:             observability.IPFromRequest(c.Request),
		UserAgent:      c.Request.UserAgent(),
		RequestID:      observability.RequestIDFromRequest(c.Request),
		TraceID:        span.SpanContext().TraceID().String(),
		ConnectedAt:    time.Now(),
	}
	h.hub.AddClient(conversationID, conn, info)

	observability.IncWSActive(wsKind)
	publishWSEvent(ctx, "ws_connect", info, "")

	// Keep connection alive and clean on close
	go func() {
		var closeReason string
		defer func() {
			h.hub.RemoveClient(conversationID, conn)
			observability.DecWSActive(wsKind)
			publishWSEvent(context.Background(), "ws_disconnect", info, closeReason)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					publishWSEvent(context.Background(), "ws_error", info, closeReason)
				}
				return
			}
		}
	}()
}

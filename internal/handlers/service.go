package handlers

import (
	"context"
	"time"

	"dm-service/internal/auth"
	"dm-service/internal/chat"
	"dm-service/internal/models"
)

// ChatService is the chat core as seen by the HTTP layer.
type ChatService interface {
	OpenDirect(ctx context.Context, userID int, targetID int) (models.Conversation, error)
	CreateGroup(ctx context.Context, creatorID int, name string, memberIDs []int) (models.Conversation, error)
	HideConversation(ctx context.Context, userID int, conversationID int) error
	ListConversations(ctx context.Context, userID int) ([]models.ConversationSummary, error)
	SendMessage(ctx context.Context, userID int, conversationID int, in chat.SendInput) ([]models.Message, error)
	ListMessages(ctx context.Context, userID int, conversationID int, cursor string, limit int) (models.MessagePage, error)
	DeleteMessage(ctx context.Context, userID int, messageID int) error
	HideMessage(ctx context.Context, userID int, messageID int) error
	UnhideMessage(ctx context.Context, userID int, messageID int) error
	ToggleReaction(ctx context.Context, userID int, messageID int, emoji string) (bool, error)
	PingTyping(ctx context.Context, userID int, conversationID int) (time.Time, error)
	ListTyping(ctx context.Context, userID int, conversationID int) ([]int, error)
	Profile(ctx context.Context, userID int) (models.User, error)
}

// AccountService registers users and manages sessions.
type AccountService interface {
	Register(ctx context.Context, username, password string) (models.User, error)
	Login(ctx context.Context, username, password string) (auth.Session, error)
	Logout(ctx context.Context, token string) error
}

// Auditor records destructive user actions.
type Auditor interface {
	Emit(ctx context.Context, level, text, requestID string, userID *string)
}

var (
	_ ChatService    = (*chat.Service)(nil)
	_ AccountService = (*auth.Accounts)(nil)
)

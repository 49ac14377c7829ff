package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"dm-service/internal/auth"
	"dm-service/internal/chat"
	"dm-service/internal/models"
)

type ChatServiceMock struct {
	mock.Mock
}

func (m *ChatServiceMock) OpenDirect(ctx context.Context, userID int, targetID int) (models.Conversation, error) {
	args := m.Called(ctx, userID, targetID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ChatServiceMock) CreateGroup(ctx context.Context, creatorID int, name string, memberIDs []int) (models.Conversation, error) {
	args := m.Called(ctx, creatorID, name, memberIDs)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ChatServiceMock) HideConversation(ctx context.Context, userID int, conversationID int) error {
	args := m.Called(ctx, userID, conversationID)
	return args.Error(0)
}

func (m *ChatServiceMock) ListConversations(ctx context.Context, userID int) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ConversationSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationSummary)
	}
	return list, args.Error(1)
}

func (m *ChatServiceMock) SendMessage(ctx context.Context, userID int, conversationID int, in chat.SendInput) ([]models.Message, error) {
	args := m.Called(ctx, userID, conversationID, in)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *ChatServiceMock) ListMessages(ctx context.Context, userID int, conversationID int, cursor string, limit int) (models.MessagePage, error) {
	args := m.Called(ctx, userID, conversationID, cursor, limit)
	var page models.MessagePage
	if val := args.Get(0); val != nil {
		page = val.(models.MessagePage)
	}
	return page, args.Error(1)
}

func (m *ChatServiceMock) DeleteMessage(ctx context.Context, userID int, messageID int) error {
	args := m.Called(ctx, userID, messageID)
	return args.Error(0)
}

func (m *ChatServiceMock) HideMessage(ctx context.Context, userID int, messageID int) error {
	args := m.Called(ctx, userID, messageID)
	return args.Error(0)
}

func (m *ChatServiceMock) UnhideMessage(ctx context.Context, userID int, messageID int) error {
	args := m.Called(ctx, userID, messageID)
	return args.Error(0)
}

func (m *ChatServiceMock) ToggleReaction(ctx context.Context, userID int, messageID int, emoji string) (bool, error) {
	args := m.Called(ctx, userID, messageID, emoji)
	return args.Bool(0), args.Error(1)
}

func (m *ChatServiceMock) PingTyping(ctx context.Context, userID int, conversationID int) (time.Time, error) {
	args := m.Called(ctx, userID, conversationID)
	var expiresAt time.Time
	if val := args.Get(0); val != nil {
		expiresAt = val.(time.Time)
	}
	return expiresAt, args.Error(1)
}

func (m *ChatServiceMock) ListTyping(ctx context.Context, userID int, conversationID int) ([]int, error) {
	args := m.Called(ctx, userID, conversationID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *ChatServiceMock) Profile(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var u models.User
	if val := args.Get(0); val != nil {
		u = val.(models.User)
	}
	return u, args.Error(1)
}

func (m *ChatServiceMock) TouchPresence(ctx context.Context, userID int) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type AccountServiceMock struct {
	mock.Mock
}

func (m *AccountServiceMock) Register(ctx context.Context, username, password string) (models.User, error) {
	args := m.Called(ctx, username, password)
	var u models.User
	if val := args.Get(0); val != nil {
		u = val.(models.User)
	}
	return u, args.Error(1)
}

func (m *AccountServiceMock) Login(ctx context.Context, username, password string) (auth.Session, error) {
	args := m.Called(ctx, username, password)
	var s auth.Session
	if val := args.Get(0); val != nil {
		s = val.(auth.Session)
	}
	return s, args.Error(1)
}

func (m *AccountServiceMock) Logout(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

type AuditorMock struct {
	mock.Mock
}

func (m *AuditorMock) Emit(ctx context.Context, level, text, requestID string, userID *string) {
	m.Called(ctx, level, text, requestID, userID)
}

type TokenVerifierMock struct {
	mock.Mock
}

func (m *TokenVerifierMock) Verify(ctx context.Context, token string) (int, error) {
	args := m.Called(ctx, token)
	return args.Int(0), args.Error(1)
}

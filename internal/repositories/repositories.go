package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"dm-service/internal/apperrors"
	"dm-service/internal/models"
	"dm-service/internal/visibility"
)

var (
	ErrConversationNotFound = fmt.Errorf("conversation %w", apperrors.ErrNotFound)
	ErrMessageNotFound      = fmt.Errorf("message %w", apperrors.ErrNotFound)
	ErrUserNotFound         = fmt.Errorf("user %w", apperrors.ErrNotFound)
)

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	CreateDirect(ctx context.Context, userID int, peerID int, createdAt time.Time) (models.Conversation, error)
	FindDirect(ctx context.Context, userID int, peerID int) (models.Conversation, error)
	CreateGroup(ctx context.Context, creatorID int, name string, memberIDs []int, createdAt time.Time) (models.Conversation, error)
	GetConversation(ctx context.Context, conversationID int) (models.Conversation, error)
	// ListForUser returns every conversation of the user that is not fully hidden,
	// with the latest visible non-deleted message and the unread count.
	ListForUser(ctx context.Context, userID int) ([]models.ConversationSummary, error)
}

// VisibilityRepository persists conversation and message hide records.
type VisibilityRepository interface {
	GetHide(ctx context.Context, conversationID int, userID int) (*models.ConversationHide, error)
	HideConversation(ctx context.Context, conversationID int, userID int, at time.Time) error
	// RestartConversation sets visible_from on an existing hide record and reports
	// whether one existed.
	RestartConversation(ctx context.Context, conversationID int, userID int, from time.Time) (bool, error)
	HideMessage(ctx context.Context, messageID int, userID int, at time.Time) error
	UnhideMessage(ctx context.Context, messageID int, userID int) error
}

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	// AppendMessages stores messages of one conversation and, in the same
	// transaction, opens the window of every participant whose hide record has
	// no window yet. It returns the stored rows and the number of windows opened.
	AppendMessages(ctx context.Context, msgs []models.Message) ([]models.Message, int64, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	// ListPage returns up to q.Limit visible messages older than q.Before, newest first.
	ListPage(ctx context.Context, q PageQuery) ([]models.Message, error)
	// MarkRead inserts read receipts, ignoring ones that already exist.
	MarkRead(ctx context.Context, userID int, messageIDs []int, at time.Time) (int64, error)
	ReadersOf(ctx context.Context, messageIDs []int) (map[int][]int, error)
	ReactionsOf(ctx context.Context, messageIDs []int) (map[int][]models.Reaction, error)
	SoftDelete(ctx context.Context, messageID int, at time.Time) error
	// ToggleReaction removes the reaction if present, otherwise adds it, and
	// reports whether it was added.
	ToggleReaction(ctx context.Context, messageID int, userID int, emoji string, at time.Time) (bool, error)
}

// PresenceRepository stores typing signals and last-seen timestamps.
type PresenceRepository interface {
	UpsertTyping(ctx context.Context, conversationID int, userID int, expiresAt time.Time, now time.Time) error
	ListTyping(ctx context.Context, conversationID int, now time.Time) ([]int, error)
	TouchLastSeen(ctx context.Context, userID int, at time.Time) error
}

// UserRepository stores accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, username string, passwordHash string) (models.User, error)
	GetUser(ctx context.Context, userID int) (models.User, error)
	GetByUsername(ctx context.Context, username string) (models.User, error)
}

// PageQuery selects one page of a conversation for a reader.
type PageQuery struct {
	ConversationID int
	Filter         visibility.Filter
	Before         *models.Message
	Limit          int
}

const uniqueViolation = "23505"

// translate maps driver errors onto the domain error kinds.
func translate(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", pqErr.Constraint, apperrors.ErrConflict)
	}
	return err
}

func messageColumns(alias string) string {
	cols := []string{"id", "conversation_id", "sender_id", "kind", "content", "file_url", "file_name", "file_size", "mime_type", "group_id", "created_at", "deleted_at"}
	if alias == "" {
		return strings.Join(cols, ", ")
	}
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

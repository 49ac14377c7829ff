package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"dm-service/internal/models"
)

// VisibilityRepo is a sqlx implementation of VisibilityRepository.
type VisibilityRepo struct {
	db *sqlx.DB
}

// NewVisibilityRepo constructs a VisibilityRepo.
func NewVisibilityRepo(db *sqlx.DB) *VisibilityRepo {
	return &VisibilityRepo{db: db}
}

// GetHide returns the user's hide record, or nil when the conversation is fully visible.
func (r *VisibilityRepo) GetHide(ctx context.Context, conversationID int, userID int) (*models.ConversationHide, error) {
	var h models.ConversationHide
	err := r.db.GetContext(ctx, &h, `SELECT conversation_id, user_id, hidden_at, visible_from FROM conversation_hides
        WHERE conversation_id=$1 AND user_id=$2`, conversationID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// HideConversation fully hides the conversation, clearing any existing window.
func (r *VisibilityRepo) HideConversation(ctx context.Context, conversationID int, userID int, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO conversation_hides (conversation_id, user_id, hidden_at, visible_from) VALUES ($1, $2, $3, NULL)
        ON CONFLICT (conversation_id, user_id) DO UPDATE SET hidden_at = EXCLUDED.hidden_at, visible_from = NULL`, conversationID, userID, at)
	return err
}

// RestartConversation narrows an existing hide record to messages from `from` on.
func (r *VisibilityRepo) RestartConversation(ctx context.Context, conversationID int, userID int, from time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE conversation_hides SET visible_from = $3 WHERE conversation_id=$1 AND user_id=$2`, conversationID, userID, from)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// HideMessage hides one message for the user; repeating it is a no-op.
func (r *VisibilityRepo) HideMessage(ctx context.Context, messageID int, userID int, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO message_hides (message_id, user_id, hidden_at) VALUES ($1, $2, $3)
        ON CONFLICT (message_id, user_id) DO NOTHING`, messageID, userID, at)
	return err
}

// UnhideMessage removes the per-message hide.
func (r *VisibilityRepo) UnhideMessage(ctx context.Context, messageID int, userID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM message_hides WHERE message_id=$1 AND user_id=$2`, messageID, userID)
	return err
}

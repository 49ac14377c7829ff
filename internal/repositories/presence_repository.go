package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// PresenceRepo is a sqlx implementation of PresenceRepository.
type PresenceRepo struct {
	db *sqlx.DB
}

// NewPresenceRepo constructs a PresenceRepo.
func NewPresenceRepo(db *sqlx.DB) *PresenceRepo {
	return &PresenceRepo{db: db}
}

// UpsertTyping overwrites the user's typing row and reaps expired rows of the conversation.
func (r *PresenceRepo) UpsertTyping(ctx context.Context, conversationID int, userID int, expiresAt time.Time, now time.Time) error {
	if _, err := r.db.ExecContext(ctx, `INSERT INTO typing_status (conversation_id, user_id, expires_at) VALUES ($1, $2, $3)
        ON CONFLICT (conversation_id, user_id) DO UPDATE SET expires_at = EXCLUDED.expires_at`, conversationID, userID, expiresAt); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM typing_status WHERE conversation_id=$1 AND expires_at <= $2`, conversationID, now)
	return err
}

// ListTyping returns users whose typing signal has not expired.
func (r *PresenceRepo) ListTyping(ctx context.Context, conversationID int, now time.Time) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM typing_status WHERE conversation_id=$1 AND expires_at > $2 ORDER BY user_id`, conversationID, now)
	return ids, err
}

// TouchLastSeen records the user's latest activity.
func (r *PresenceRepo) TouchLastSeen(ctx context.Context, userID int, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_seen_at = $2 WHERE id=$1`, userID, at)
	return err
}

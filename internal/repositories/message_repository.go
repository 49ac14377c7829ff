package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"dm-service/internal/models"
	"dm-service/internal/visibility"
)

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// AppendMessages inserts the messages and opens pending windows atomically.
// The window update only touches rows whose visible_from is still NULL, so of two
// racing sends the first to commit wins and the other leaves it untouched.
func (r *MessageRepo) AppendMessages(ctx context.Context, msgs []models.Message) ([]models.Message, int64, error) {
	if len(msgs) == 0 {
		return nil, 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stored := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		var out models.Message
		if err = tx.QueryRowxContext(ctx, `INSERT INTO messages (conversation_id, sender_id, kind, content, file_url, file_name, file_size, mime_type, group_id, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING `+messageColumns(""),
			m.ConversationID, m.SenderID, m.Kind, m.Content, m.FileURL, m.FileName, m.FileSize, m.MimeType, m.GroupID, m.CreatedAt).
			StructScan(&out); err != nil {
			return nil, 0, err
		}
		stored = append(stored, out)
	}

	res, err := tx.ExecContext(ctx, `UPDATE conversation_hides SET visible_from = $2
        WHERE conversation_id = $1 AND visible_from IS NULL`, msgs[0].ConversationID, stored[0].CreatedAt)
	if err != nil {
		return nil, 0, err
	}
	restored, err := res.RowsAffected()
	if err != nil {
		return nil, 0, err
	}

	if err = tx.Commit(); err != nil {
		return nil, 0, err
	}
	return stored, restored, nil
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns("")+` FROM messages WHERE id=$1`, messageID)
	if err != nil {
		return models.Message{}, translate(err, ErrMessageNotFound)
	}
	return msg, nil
}

// ListPage returns messages newest first, applying the reader's visibility filter.
func (r *MessageRepo) ListPage(ctx context.Context, q PageQuery) ([]models.Message, error) {
	query := `SELECT ` + messageColumns("m") + ` FROM messages m
        WHERE m.conversation_id = $1 AND ` + visibility.Predicate("m", "$2", "$3::timestamptz")
	args := []any{q.ConversationID, q.Filter.ReaderID, q.Filter.From}
	if q.Before != nil {
		query += ` AND (m.created_at, m.id) < ($4::timestamptz, $5::int)`
		args = append(args, q.Before.CreatedAt, q.Before.ID)
	}
	query += fmt.Sprintf(` ORDER BY m.created_at DESC, m.id DESC LIMIT $%d`, len(args)+1)
	args = append(args, q.Limit)

	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, query, args...); err != nil {
		return nil, err
	}
	return msgs, nil
}

// MarkRead stores read receipts; existing receipts are left untouched.
func (r *MessageRepo) MarkRead(ctx context.Context, userID int, messageIDs []int, at time.Time) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO message_reads (message_id, user_id, read_at)
        SELECT id, $2, $3 FROM unnest($1::int[]) AS id
        ON CONFLICT (message_id, user_id) DO NOTHING`, pq.Array(messageIDs), userID, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReadersOf returns the readers of each message in read order.
func (r *MessageRepo) ReadersOf(ctx context.Context, messageIDs []int) (map[int][]int, error) {
	out := make(map[int][]int)
	if len(messageIDs) == 0 {
		return out, nil
	}
	var reads []models.MessageRead
	if err := r.db.SelectContext(ctx, &reads, `SELECT message_id, user_id, read_at FROM message_reads
        WHERE message_id = ANY($1) ORDER BY read_at, user_id`, pq.Array(messageIDs)); err != nil {
		return nil, err
	}
	for _, rd := range reads {
		out[rd.MessageID] = append(out[rd.MessageID], rd.UserID)
	}
	return out, nil
}

// ReactionsOf groups the reactions of the given messages by message id.
func (r *MessageRepo) ReactionsOf(ctx context.Context, messageIDs []int) (map[int][]models.Reaction, error) {
	out := make(map[int][]models.Reaction)
	if len(messageIDs) == 0 {
		return out, nil
	}
	var reactions []models.Reaction
	if err := r.db.SelectContext(ctx, &reactions, `SELECT message_id, user_id, emoji, created_at FROM message_reactions
        WHERE message_id = ANY($1) ORDER BY created_at, user_id, emoji`, pq.Array(messageIDs)); err != nil {
		return nil, err
	}
	for _, rc := range reactions {
		out[rc.MessageID] = append(out[rc.MessageID], rc)
	}
	return out, nil
}

// SoftDelete stamps deleted_at once; the row is never removed.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID int, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE messages SET deleted_at = $2 WHERE id=$1 AND deleted_at IS NULL`, messageID, at)
	return err
}

// ToggleReaction flips the (message, user, emoji) row.
func (r *MessageRepo) ToggleReaction(ctx context.Context, messageID int, userID int, emoji string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM message_reactions WHERE message_id=$1 AND user_id=$2 AND emoji=$3`, messageID, userID, emoji)
	if err != nil {
		return false, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if removed > 0 {
		return false, nil
	}
	res, err = r.db.ExecContext(ctx, `INSERT INTO message_reactions (message_id, user_id, emoji, created_at) VALUES ($1, $2, $3, $4)
        ON CONFLICT (message_id, user_id, emoji) DO NOTHING`, messageID, userID, emoji, at)
	if err != nil {
		return false, err
	}
	added, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if added == 0 {
		// A concurrent toggle inserted the row first; this toggle removes it.
		if _, err := r.db.ExecContext(ctx, `DELETE FROM message_reactions WHERE message_id=$1 AND user_id=$2 AND emoji=$3`, messageID, userID, emoji); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

package repositories

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"dm-service/internal/models"
	"dm-service/internal/visibility"
)

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

const conversationColumns = `c.id, c.is_group, c.name, c.creator_id, c.created_at`

// CreateDirect creates a direct conversation between two users. A concurrent
// creation of the same pair fails with a conflict on direct_pairs.
func (r *ConversationRepo) CreateDirect(ctx context.Context, userID int, peerID int, createdAt time.Time) (models.Conversation, error) {
	low, high := userID, peerID
	if low > high {
		low, high = high, low
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var conv models.Conversation
	if err = tx.QueryRowxContext(ctx, `INSERT INTO conversations (is_group, creator_id, created_at) VALUES (FALSE, $1, $2)
        RETURNING id, is_group, name, creator_id, created_at`, userID, createdAt).StructScan(&conv); err != nil {
		return models.Conversation{}, err
	}
	for _, id := range []int{low, high} {
		if _, err = tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)`, conv.ID, id); err != nil {
			return models.Conversation{}, err
		}
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO direct_pairs (user_low, user_high, conversation_id) VALUES ($1, $2, $3)`, low, high, conv.ID); err != nil {
		return models.Conversation{}, translate(err, ErrConversationNotFound)
	}
	if err = tx.Commit(); err != nil {
		return models.Conversation{}, err
	}

	conv.Participants = []int{low, high}
	return conv, nil
}

// FindDirect returns the direct conversation between two users.
func (r *ConversationRepo) FindDirect(ctx context.Context, userID int, peerID int) (models.Conversation, error) {
	low, high := userID, peerID
	if low > high {
		low, high = high, low
	}

	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM direct_pairs d
        JOIN conversations c ON c.id = d.conversation_id
        WHERE d.user_low=$1 AND d.user_high=$2`, low, high)
	if err != nil {
		return models.Conversation{}, translate(err, ErrConversationNotFound)
	}
	conv.Participants = []int{low, high}
	return conv, nil
}

// CreateGroup creates a group conversation and its participants atomically.
func (r *ConversationRepo) CreateGroup(ctx context.Context, creatorID int, name string, memberIDs []int, createdAt time.Time) (models.Conversation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var conv models.Conversation
	if err = tx.QueryRowxContext(ctx, `INSERT INTO conversations (is_group, name, creator_id, created_at) VALUES (TRUE, $1, $2, $3)
        RETURNING id, is_group, name, creator_id, created_at`, name, creatorID, createdAt).StructScan(&conv); err != nil {
		return models.Conversation{}, err
	}

	ids := participantSet(creatorID, memberIDs)
	for _, id := range ids {
		if _, err = tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)`, conv.ID, id); err != nil {
			return models.Conversation{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	conv.Participants = ids
	return conv, nil
}

// GetConversation fetches a conversation with its participants.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID int) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations c WHERE c.id=$1`, conversationID)
	if err != nil {
		return models.Conversation{}, translate(err, ErrConversationNotFound)
	}
	if err := r.db.SelectContext(ctx, &conv.Participants, `SELECT user_id FROM conversation_participants WHERE conversation_id=$1 ORDER BY user_id`, conversationID); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

type summaryRow struct {
	models.Conversation
	VisibleFrom *time.Time `db:"visible_from"`
}

type unreadRow struct {
	ConversationID int `db:"conversation_id"`
	Unread         int `db:"unread"`
}

// ListForUser returns the user's listed conversations. The three reads share a
// repeatable-read snapshot so previews and unread counts agree.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID int) ([]models.ConversationSummary, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var rows []summaryRow
	if err := tx.SelectContext(ctx, &rows, `SELECT `+conversationColumns+`, ch.visible_from FROM conversations c
        JOIN conversation_participants p ON p.conversation_id = c.id AND p.user_id = $1
        LEFT JOIN conversation_hides ch ON ch.conversation_id = c.id AND ch.user_id = $1
        WHERE ch.conversation_id IS NULL OR ch.visible_from IS NOT NULL`, userID); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []models.ConversationSummary{}, nil
	}

	ids := make([]int, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	var previews []models.Message
	if err := tx.SelectContext(ctx, &previews, `SELECT `+messageColumns("m")+` FROM conversation_participants p
        LEFT JOIN conversation_hides ch ON ch.conversation_id = p.conversation_id AND ch.user_id = p.user_id
        JOIN LATERAL (
            SELECT * FROM messages m
            WHERE m.conversation_id = p.conversation_id AND m.deleted_at IS NULL
            AND `+visibility.Predicate("m", "p.user_id", "ch.visible_from")+`
            ORDER BY m.created_at DESC, m.id DESC
            LIMIT 1
        ) m ON TRUE
        WHERE p.user_id = $1 AND p.conversation_id = ANY($2)`, userID, pq.Array(ids)); err != nil {
		return nil, err
	}

	var unread []unreadRow
	if err := tx.SelectContext(ctx, &unread, `SELECT m.conversation_id, COUNT(*) AS unread FROM messages m
        LEFT JOIN conversation_hides ch ON ch.conversation_id = m.conversation_id AND ch.user_id = $1
        WHERE m.conversation_id = ANY($2) AND m.sender_id <> $1 AND m.deleted_at IS NULL
        AND `+visibility.Predicate("m", "$1", "ch.visible_from")+`
        AND NOT EXISTS (SELECT 1 FROM message_reads mr WHERE mr.message_id = m.id AND mr.user_id = $1)
        GROUP BY m.conversation_id`, userID, pq.Array(ids)); err != nil {
		return nil, err
	}

	var members []models.Participant
	if err := tx.SelectContext(ctx, &members, `SELECT conversation_id, user_id FROM conversation_participants
        WHERE conversation_id = ANY($1) ORDER BY conversation_id, user_id`, pq.Array(ids)); err != nil {
		return nil, err
	}

	previewByConv := make(map[int]models.Message, len(previews))
	for _, m := range previews {
		previewByConv[m.ConversationID] = m
	}
	unreadByConv := make(map[int]int, len(unread))
	for _, u := range unread {
		unreadByConv[u.ConversationID] = u.Unread
	}
	membersByConv := make(map[int][]int, len(rows))
	for _, p := range members {
		membersByConv[p.ConversationID] = append(membersByConv[p.ConversationID], p.UserID)
	}

	result := make([]models.ConversationSummary, 0, len(rows))
	for _, row := range rows {
		summary := models.ConversationSummary{
			Conversation: row.Conversation,
			VisibleFrom:  row.VisibleFrom,
			UnreadCount:  unreadByConv[row.ID],
		}
		summary.Participants = membersByConv[row.ID]
		if m, ok := previewByConv[row.ID]; ok {
			summary.LastMessage = &m
		}
		result = append(result, summary)
	}
	return result, nil
}

// participantSet dedupes members, always includes the creator and sorts ids.
func participantSet(creatorID int, memberIDs []int) []int {
	set := map[int]struct{}{creatorID: {}}
	for _, id := range memberIDs {
		set[id] = struct{}{}
	}
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

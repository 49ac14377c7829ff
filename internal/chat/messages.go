package chat

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"dm-service/internal/apperrors"
	"dm-service/internal/models"
	"dm-service/internal/observability"
	"dm-service/internal/repositories"
	"dm-service/internal/visibility"
)

// Upload is a file attached to a send.
type Upload struct {
	Filename string
	MimeType string
	Data     []byte
}

// SendInput is the payload of a send: a caption, files, or both.
type SendInput struct {
	Content string
	Files   []Upload
}

// SendMessage appends the messages of one send. Every file becomes its own
// FILE or IMAGE message and the caption a TEXT message; when a send yields more
// than one message they share a group id. Participants whose conversation is
// fully hidden see it again, windowed to this send.
func (s *Service) SendMessage(ctx context.Context, userID int, conversationID int, in SendInput) ([]models.Message, error) {
	const op = "send message"
	ctx, span := s.tracer.Start(ctx, "chat.SendMessage")
	defer span.End()

	if _, err := s.participantOf(ctx, op, conversationID, userID); err != nil {
		return nil, err
	}
	content := strings.TrimSpace(in.Content)
	if content == "" && len(in.Files) == 0 {
		return nil, fmt.Errorf("%s: content or files required: %w", op, apperrors.ErrInvalidOperation)
	}

	if len(in.Files) > 0 && s.blobs == nil {
		return nil, fmt.Errorf("%s: file uploads are disabled: %w", op, apperrors.ErrInvalidOperation)
	}

	now := s.clock()
	msgs := make([]models.Message, 0, len(in.Files)+1)
	for _, f := range in.Files {
		if len(f.Data) == 0 || f.Filename == "" {
			return nil, fmt.Errorf("%s: empty file: %w", op, apperrors.ErrInvalidOperation)
		}
		kind := models.KindFile
		if strings.HasPrefix(f.MimeType, "image/") {
			kind = models.KindImage
		}
		url, err := s.blobs.Store(ctx, f.Data, folderFor(kind), path.Base(f.Filename))
		if err != nil {
			return nil, s.fail(ctx, op, err)
		}
		name, size, mime := path.Base(f.Filename), int64(len(f.Data)), f.MimeType
		msgs = append(msgs, models.Message{
			ConversationID: conversationID,
			SenderID:       userID,
			Kind:           kind,
			FileURL:        &url,
			FileName:       &name,
			FileSize:       &size,
			MimeType:       &mime,
			CreatedAt:      now,
		})
	}
	if content != "" {
		msgs = append(msgs, models.Message{
			ConversationID: conversationID,
			SenderID:       userID,
			Kind:           models.KindText,
			Content:        &content,
			CreatedAt:      now,
		})
	}
	if len(msgs) > 1 {
		groupID := uuid.NewString()
		for i := range msgs {
			msgs[i].GroupID = &groupID
		}
	}

	stored, restored, err := s.messages.AppendMessages(ctx, msgs)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	for _, m := range stored {
		observability.IncMessageSent(string(m.Kind))
	}
	if restored > 0 {
		observability.AddWindowRestarts("message", restored)
	}

	s.notifier.BroadcastMessages(conversationID, stored)
	s.publish(ctx, "message.sent", map[string]any{
		"conversation_id": conversationID,
		"sender_id":       userID,
		"message_ids":     messageIDs(stored),
	})
	return stored, nil
}

// ListMessages returns one page of the conversation as the caller sees it, in
// ascending order, and marks the returned messages of other senders as read.
func (s *Service) ListMessages(ctx context.Context, userID int, conversationID int, cursor string, limit int) (models.MessagePage, error) {
	const op = "list messages"
	ctx, span := s.tracer.Start(ctx, "chat.ListMessages")
	defer span.End()

	if _, err := s.participantOf(ctx, op, conversationID, userID); err != nil {
		return models.MessagePage{}, err
	}
	if limit <= 0 {
		limit = s.pageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	hide, err := s.visibility.GetHide(ctx, conversationID, userID)
	if err != nil {
		return models.MessagePage{}, s.fail(ctx, op, err)
	}
	q := repositories.PageQuery{
		ConversationID: conversationID,
		Filter:         visibility.ForReader(userID, hide),
		Limit:          limit + 1,
	}
	if cursor != "" {
		before, err := s.resolveCursor(ctx, conversationID, cursor)
		if err != nil {
			return models.MessagePage{}, err
		}
		q.Before = &before
	}

	rows, err := s.messages.ListPage(ctx, q)
	if err != nil {
		return models.MessagePage{}, s.fail(ctx, op, err)
	}

	page := models.MessagePage{Messages: []models.Message{}}
	if len(rows) > limit {
		rows = rows[:limit]
		next := encodeCursor(rows[len(rows)-1].ID)
		page.NextCursor = &next
	}
	for i := len(rows) - 1; i >= 0; i-- {
		page.Messages = append(page.Messages, rows[i])
	}

	if err := s.decorate(ctx, userID, page.Messages); err != nil {
		return models.MessagePage{}, s.fail(ctx, op, err)
	}

	var unread []int
	for _, m := range page.Messages {
		if m.SenderID != userID {
			unread = append(unread, m.ID)
		}
	}
	inserted, err := s.messages.MarkRead(ctx, userID, unread, s.clock())
	if err != nil {
		return models.MessagePage{}, s.fail(ctx, op, err)
	}
	observability.AddReadReceipts(inserted)

	return page, nil
}

// decorate tombstones deleted messages and attaches reactions and, on the
// reader's own messages, the readers.
func (s *Service) decorate(ctx context.Context, userID int, msgs []models.Message) error {
	live := make([]int, 0, len(msgs))
	own := make([]int, 0, len(msgs))
	for i := range msgs {
		if msgs[i].IsDeleted() {
			msgs[i] = msgs[i].Tombstone()
			continue
		}
		live = append(live, msgs[i].ID)
		if msgs[i].SenderID == userID {
			own = append(own, msgs[i].ID)
		}
	}

	reactions, err := s.messages.ReactionsOf(ctx, live)
	if err != nil {
		return err
	}
	readers, err := s.messages.ReadersOf(ctx, own)
	if err != nil {
		return err
	}
	for i := range msgs {
		if msgs[i].IsDeleted() {
			continue
		}
		msgs[i].Reactions = reactions[msgs[i].ID]
		if msgs[i].SenderID == userID {
			msgs[i].ReadBy = readers[msgs[i].ID]
		}
	}
	return nil
}

func (s *Service) resolveCursor(ctx context.Context, conversationID int, cursor string) (models.Message, error) {
	id, err := decodeCursor(cursor)
	if err != nil {
		return models.Message{}, err
	}
	msg, err := s.messages.GetMessage(ctx, id)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			return models.Message{}, fmt.Errorf("unknown cursor: %w", apperrors.ErrInvalidOperation)
		}
		return models.Message{}, s.fail(ctx, "list messages", err)
	}
	if msg.ConversationID != conversationID {
		return models.Message{}, fmt.Errorf("cursor from another conversation: %w", apperrors.ErrInvalidOperation)
	}
	return msg, nil
}

// DeleteMessage soft-deletes a message. Only the sender may delete.
func (s *Service) DeleteMessage(ctx context.Context, userID int, messageID int) error {
	const op = "delete message"
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return s.fail(ctx, op, err)
	}
	if msg.SenderID != userID {
		return fmt.Errorf("%s: only the sender can delete: %w", op, apperrors.ErrNotAuthorized)
	}
	if msg.IsDeleted() {
		return nil
	}
	if err := s.messages.SoftDelete(ctx, messageID, s.clock()); err != nil {
		return s.fail(ctx, op, err)
	}

	s.notifier.BroadcastDeletion(msg.ConversationID, messageID)
	s.publish(ctx, "message.deleted", map[string]any{
		"conversation_id": msg.ConversationID,
		"message_id":      messageID,
		"sender_id":       userID,
	})
	return nil
}

// HideMessage hides someone else's message for the caller only.
func (s *Service) HideMessage(ctx context.Context, userID int, messageID int) error {
	const op = "hide message"
	msg, err := s.messageFor(ctx, op, messageID, userID)
	if err != nil {
		return err
	}
	if msg.SenderID == userID {
		return fmt.Errorf("%s: delete your own message instead: %w", op, apperrors.ErrInvalidOperation)
	}
	if msg.IsDeleted() {
		return fmt.Errorf("%s: message was deleted: %w", op, apperrors.ErrInvalidOperation)
	}
	if err := s.visibility.HideMessage(ctx, messageID, userID, s.clock()); err != nil {
		return s.fail(ctx, op, err)
	}
	return nil
}

// UnhideMessage reverts HideMessage.
func (s *Service) UnhideMessage(ctx context.Context, userID int, messageID int) error {
	const op = "unhide message"
	if _, err := s.messageFor(ctx, op, messageID, userID); err != nil {
		return err
	}
	if err := s.visibility.UnhideMessage(ctx, messageID, userID); err != nil {
		return s.fail(ctx, op, err)
	}
	return nil
}

// ToggleReaction adds the emoji reaction, or removes it if the caller already
// reacted with it. It reports whether the reaction was added.
func (s *Service) ToggleReaction(ctx context.Context, userID int, messageID int, emoji string) (bool, error) {
	const op = "toggle reaction"
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return false, fmt.Errorf("%s: emoji is required: %w", op, apperrors.ErrInvalidOperation)
	}
	msg, err := s.messageFor(ctx, op, messageID, userID)
	if err != nil {
		return false, err
	}
	if msg.IsDeleted() {
		return false, fmt.Errorf("%s: message was deleted: %w", op, apperrors.ErrInvalidOperation)
	}

	now := s.clock()
	added, err := s.messages.ToggleReaction(ctx, messageID, userID, emoji, now)
	if err != nil {
		return false, s.fail(ctx, op, err)
	}

	reaction := models.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji, CreatedAt: now}
	s.notifier.BroadcastReaction(msg.ConversationID, reaction, added)
	s.publish(ctx, "reaction.toggled", map[string]any{
		"conversation_id": msg.ConversationID,
		"reaction":        reaction,
		"added":           added,
	})
	return added, nil
}

func folderFor(kind models.MessageKind) string {
	if kind == models.KindImage {
		return "images"
	}
	return "files"
}

func messageIDs(msgs []models.Message) []int {
	ids := make([]int, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return ids
}

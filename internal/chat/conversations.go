package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"dm-service/internal/apperrors"
	"dm-service/internal/models"
	"dm-service/internal/observability"
	"dm-service/internal/visibility"
)

// OpenDirect returns the direct conversation between userID and targetID,
// creating it if needed. Reopening a conversation the caller has hidden, in any
// hidden state, narrows the caller's window to "from now on".
func (s *Service) OpenDirect(ctx context.Context, userID int, targetID int) (models.Conversation, error) {
	const op = "open direct"
	if userID == targetID {
		return models.Conversation{}, fmt.Errorf("%s: cannot chat with yourself: %w", op, apperrors.ErrInvalidOperation)
	}
	if _, err := s.users.GetUser(ctx, targetID); err != nil {
		return models.Conversation{}, s.fail(ctx, op, err)
	}

	conv, err := s.conversations.FindDirect(ctx, userID, targetID)
	if errors.Is(err, apperrors.ErrNotFound) {
		conv, err = s.conversations.CreateDirect(ctx, userID, targetID, s.clock())
		if err != nil {
			return models.Conversation{}, s.fail(ctx, op, err)
		}
		return conv, nil
	}
	if err != nil {
		return models.Conversation{}, s.fail(ctx, op, err)
	}

	hide, err := s.visibility.GetHide(ctx, conv.ID, userID)
	if err != nil {
		return models.Conversation{}, s.fail(ctx, op, err)
	}
	if visibility.StateOf(hide) != visibility.VisibleFull {
		if _, err := s.visibility.RestartConversation(ctx, conv.ID, userID, s.clock()); err != nil {
			return models.Conversation{}, s.fail(ctx, op, err)
		}
		observability.IncWindowRestart("reopen")
	}
	return conv, nil
}

// CreateGroup creates a group conversation owned by creatorID.
func (s *Service) CreateGroup(ctx context.Context, creatorID int, name string, memberIDs []int) (models.Conversation, error) {
	const op = "create group"
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Conversation{}, fmt.Errorf("%s: name is required: %w", op, apperrors.ErrInvalidOperation)
	}

	others := 0
	seen := map[int]bool{creatorID: true}
	for _, id := range memberIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		others++
		if _, err := s.users.GetUser(ctx, id); err != nil {
			return models.Conversation{}, s.fail(ctx, op, err)
		}
	}
	if others == 0 {
		return models.Conversation{}, fmt.Errorf("%s: at least one other member is required: %w", op, apperrors.ErrInvalidOperation)
	}

	conv, err := s.conversations.CreateGroup(ctx, creatorID, name, memberIDs, s.clock())
	if err != nil {
		return models.Conversation{}, s.fail(ctx, op, err)
	}
	return conv, nil
}

// HideConversation fully hides the conversation for userID, even if it was
// windowed before.
func (s *Service) HideConversation(ctx context.Context, userID int, conversationID int) error {
	const op = "hide conversation"
	if _, err := s.participantOf(ctx, op, conversationID, userID); err != nil {
		return err
	}
	if err := s.visibility.HideConversation(ctx, conversationID, userID, s.clock()); err != nil {
		return s.fail(ctx, op, err)
	}
	s.publish(ctx, "conversation.hidden", map[string]any{
		"conversation_id": conversationID,
		"user_id":         userID,
	})
	return nil
}

// ListConversations returns the caller's conversation list, newest activity first.
func (s *Service) ListConversations(ctx context.Context, userID int) ([]models.ConversationSummary, error) {
	const op = "list conversations"
	ctx, span := s.tracer.Start(ctx, "chat.ListConversations")
	defer span.End()

	summaries, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}

	for i := range summaries {
		sm := &summaries[i]
		if sm.LastMessage == nil {
			continue
		}
		if sm.VisibleFrom != nil && sm.LastMessage.CreatedAt.Before(*sm.VisibleFrom) {
			sm.LastMessage = nil
		}
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		ti, tj := summaries[i].SortTime(), summaries[j].SortTime()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return summaries[i].ID > summaries[j].ID
	})
	return summaries, nil
}

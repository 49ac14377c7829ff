package chat

import (
	"context"
	"time"

	"dm-service/internal/models"
)

// PingTyping marks the caller as typing until now + typing TTL.
func (s *Service) PingTyping(ctx context.Context, userID int, conversationID int) (time.Time, error) {
	const op = "ping typing"
	if _, err := s.participantOf(ctx, op, conversationID, userID); err != nil {
		return time.Time{}, err
	}
	now := s.clock()
	expiresAt := now.Add(s.typingTTL)
	if err := s.presence.UpsertTyping(ctx, conversationID, userID, expiresAt, now); err != nil {
		return time.Time{}, s.fail(ctx, op, err)
	}
	s.notifier.BroadcastTyping(conversationID, userID, expiresAt)
	return expiresAt, nil
}

// ListTyping returns the other participants currently typing. Expiry is
// evaluated here; no sweeper runs.
func (s *Service) ListTyping(ctx context.Context, userID int, conversationID int) ([]int, error) {
	const op = "list typing"
	if _, err := s.participantOf(ctx, op, conversationID, userID); err != nil {
		return nil, err
	}
	ids, err := s.presence.ListTyping(ctx, conversationID, s.clock())
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	others := make([]int, 0, len(ids))
	for _, id := range ids {
		if id != userID {
			others = append(others, id)
		}
	}
	return others, nil
}

// TouchPresence updates the caller's last-seen timestamp.
func (s *Service) TouchPresence(ctx context.Context, userID int) error {
	if err := s.presence.TouchLastSeen(ctx, userID, s.clock()); err != nil {
		return s.fail(ctx, "touch presence", err)
	}
	return nil
}

// Profile returns a user's public profile including last-seen.
func (s *Service) Profile(ctx context.Context, userID int) (models.User, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return models.User{}, s.fail(ctx, "profile", err)
	}
	return u, nil
}

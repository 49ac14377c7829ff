// Package chat implements conversation and message visibility: hiding and
// restarting conversations, paginated history with read receipts, the
// conversation list, reactions, message hides and typing presence.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"dm-service/internal/apperrors"
	"dm-service/internal/models"
	"dm-service/internal/repositories"
)

const (
	DefaultPageSize  = 30
	MaxPageSize      = 100
	DefaultTypingTTL = 5 * time.Second
)

// BlobStore stores uploaded bytes and returns a reference URL.
type BlobStore interface {
	Store(ctx context.Context, data []byte, folder string, filename string) (string, error)
}

// Notifier pushes realtime updates to connected participants.
type Notifier interface {
	BroadcastMessages(conversationID int, msgs []models.Message)
	BroadcastDeletion(conversationID int, messageID int)
	BroadcastReaction(conversationID int, reaction models.Reaction, added bool)
	BroadcastTyping(conversationID int, userID int, expiresAt time.Time)
}

// EventPublisher publishes domain events to the message broker.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Conversations repositories.ConversationRepository
	Messages      repositories.MessageRepository
	Visibility    repositories.VisibilityRepository
	Presence      repositories.PresenceRepository
	Users         repositories.UserRepository
	Blobs         BlobStore
	Notifier      Notifier
	Events        EventPublisher
	Logger        *slog.Logger
	Now           func() time.Time
	PageSize      int
	TypingTTL     time.Duration
}

// Service is the chat core. It is stateless between calls.
type Service struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	visibility    repositories.VisibilityRepository
	presence      repositories.PresenceRepository
	users         repositories.UserRepository
	blobs         BlobStore
	notifier      Notifier
	events        EventPublisher
	logger        *slog.Logger
	now           func() time.Time
	pageSize      int
	typingTTL     time.Duration
	tracer        trace.Tracer
}

// NewService builds a Service, filling defaults for optional collaborators.
func NewService(d Deps) *Service {
	s := &Service{
		conversations: d.Conversations,
		messages:      d.Messages,
		visibility:    d.Visibility,
		presence:      d.Presence,
		users:         d.Users,
		blobs:         d.Blobs,
		notifier:      d.Notifier,
		events:        d.Events,
		logger:        d.Logger,
		now:           d.Now,
		pageSize:      d.PageSize,
		typingTTL:     d.TypingTTL,
		tracer:        otel.Tracer("dm-service/chat"),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.pageSize <= 0 || s.pageSize > MaxPageSize {
		s.pageSize = DefaultPageSize
	}
	if s.typingTTL <= 0 {
		s.typingTTL = DefaultTypingTTL
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	return s
}

// clock returns the current time at database precision.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// fail passes domain errors through and turns anything else into an opaque
// internal error after logging it.
func (s *Service) fail(ctx context.Context, op string, err error) error {
	if apperrors.IsDomain(err) {
		return err
	}
	s.logger.ErrorContext(ctx, "persistence failure", "op", op, "error", err)
	return fmt.Errorf("%s: %w", op, apperrors.ErrInternal)
}

// participantOf loads the conversation and checks membership.
func (s *Service) participantOf(ctx context.Context, op string, conversationID int, userID int) (models.Conversation, error) {
	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, s.fail(ctx, op, err)
	}
	if !conv.HasParticipant(userID) {
		return models.Conversation{}, fmt.Errorf("%s: not a participant: %w", op, apperrors.ErrNotAuthorized)
	}
	return conv, nil
}

// messageFor loads a message and checks that userID participates in its conversation.
func (s *Service) messageFor(ctx context.Context, op string, messageID int, userID int) (models.Message, error) {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, s.fail(ctx, op, err)
	}
	if _, err := s.participantOf(ctx, op, msg.ConversationID, userID); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// publish is best-effort; broker failures never fail the request.
func (s *Service) publish(ctx context.Context, routingKey string, event any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, routingKey, event); err != nil {
		s.logger.WarnContext(ctx, "event publish failed", "routing_key", routingKey, "error", err)
	}
}

type nopNotifier struct{}

func (nopNotifier) BroadcastMessages(int, []models.Message) {}
func (nopNotifier) BroadcastDeletion(int, int) {}
func (nopNotifier) BroadcastReaction(int, models.Reaction, bool) {}
func (nopNotifier) BroadcastTyping(int, int, time.Time) {}

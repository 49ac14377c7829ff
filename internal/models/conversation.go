package models

import "time"

// Conversation is either a direct chat between exactly two users or a named group.
type Conversation struct {
	ID           int       `db:"id" json:"id"`
	IsGroup      bool      `db:"is_group" json:"is_group"`
	Name         *string   `db:"name" json:"name,omitempty"`
	CreatorID    int       `db:"creator_id" json:"creator_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	Participants []int     `db:"-" json:"participants"`
}

// HasParticipant reports whether userID belongs to the conversation.
func (c Conversation) HasParticipant(userID int) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// Participant links a user to a conversation.
type Participant struct {
	ConversationID int `db:"conversation_id" json:"conversation_id"`
	UserID         int `db:"user_id" json:"user_id"`
}

// ConversationHide is the per-user hide record. A nil VisibleFrom means fully hidden.
type ConversationHide struct {
	ConversationID int        `db:"conversation_id" json:"conversation_id"`
	UserID         int        `db:"user_id" json:"user_id"`
	HiddenAt       time.Time  `db:"hidden_at" json:"hidden_at"`
	VisibleFrom    *time.Time `db:"visible_from" json:"visible_from,omitempty"`
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	Conversation
	VisibleFrom *time.Time `json:"visible_from,omitempty"`
	LastMessage *Message   `json:"last_message,omitempty"`
	UnreadCount int        `json:"unread_count"`
}

// SortTime is the timestamp the conversation list is ordered by.
func (s ConversationSummary) SortTime() time.Time {
	if s.LastMessage != nil {
		return s.LastMessage.CreatedAt
	}
	return s.CreatedAt
}

// TypingStatus is a short-lived typing signal.
type TypingStatus struct {
	ConversationID int       `db:"conversation_id" json:"conversation_id"`
	UserID         int       `db:"user_id" json:"user_id"`
	ExpiresAt      time.Time `db:"expires_at" json:"expires_at"`
}

// ConversationEvent is broadcasted through websockets.
type ConversationEvent struct {
	Type      string     `json:"type"`
	Message   *Message   `json:"message,omitempty"`
	MessageID int        `json:"message_id,omitempty"`
	Reaction  *Reaction  `json:"reaction,omitempty"`
	Added     *bool      `json:"added,omitempty"`
	UserID    int        `json:"user_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

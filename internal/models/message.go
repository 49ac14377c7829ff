package models

import "time"

// MessageKind distinguishes text messages from file references.
type MessageKind string

const (
	KindText  MessageKind = "TEXT"
	KindImage MessageKind = "IMAGE"
	KindFile  MessageKind = "FILE"
)

// Message represents a conversation message. Soft-deleted rows keep their id and timestamp.
type Message struct {
	ID             int         `db:"id" json:"id"`
	ConversationID int         `db:"conversation_id" json:"conversation_id"`
	SenderID       int         `db:"sender_id" json:"sender_id"`
	Kind           MessageKind `db:"kind" json:"kind"`
	Content        *string     `db:"content" json:"content,omitempty"`
	FileURL        *string     `db:"file_url" json:"file_url,omitempty"`
	FileName       *string     `db:"file_name" json:"file_name,omitempty"`
	FileSize       *int64      `db:"file_size" json:"file_size,omitempty"`
	MimeType       *string     `db:"mime_type" json:"mime_type,omitempty"`
	GroupID        *string     `db:"group_id" json:"group_id,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	DeletedAt      *time.Time  `db:"deleted_at" json:"deleted_at,omitempty"`
	Reactions      []Reaction  `db:"-" json:"reactions,omitempty"`
	ReadBy         []int       `db:"-" json:"read_by,omitempty"`
}

// IsDeleted reports whether the message was soft-deleted by its sender.
func (m Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// Tombstone returns the message stripped of everything a reader must not see.
func (m Message) Tombstone() Message {
	m.Content = nil
	m.FileURL = nil
	m.FileName = nil
	m.FileSize = nil
	m.MimeType = nil
	m.Reactions = nil
	m.ReadBy = nil
	return m
}

// MessageHide hides a single message for a single user.
type MessageHide struct {
	MessageID int       `db:"message_id" json:"message_id"`
	UserID    int       `db:"user_id" json:"user_id"`
	HiddenAt  time.Time `db:"hidden_at" json:"hidden_at"`
}

// MessageRead records that a user has seen a message.
type MessageRead struct {
	MessageID int       `db:"message_id" json:"message_id"`
	UserID    int       `db:"user_id" json:"user_id"`
	ReadAt    time.Time `db:"read_at" json:"read_at"`
}

// Reaction is a single (message, user, emoji) toggle.
type Reaction struct {
	MessageID int       `db:"message_id" json:"message_id"`
	UserID    int       `db:"user_id" json:"user_id"`
	Emoji     string    `db:"emoji" json:"emoji"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// MessagePage is one page of a conversation history in ascending order.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	NextCursor *string   `json:"next_cursor"`
}

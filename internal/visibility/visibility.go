// Package visibility holds the per-user conversation hide state machine and the
// message visibility predicate shared by every read path.
package visibility

import (
	"fmt"
	"time"

	"dm-service/internal/models"
)

// State is the visibility of a conversation for one user.
type State int

const (
	// VisibleFull means no hide record exists.
	VisibleFull State = iota
	// Hidden means a hide record exists with no window.
	Hidden
	// VisibleWindowed means the conversation is listed but only from VisibleFrom on.
	VisibleWindowed
)

func (s State) String() string {
	switch s {
	case Hidden:
		return "hidden"
	case VisibleWindowed:
		return "visible_windowed"
	default:
		return "visible_full"
	}
}

// StateOf derives the state from a hide record, nil meaning no record.
func StateOf(h *models.ConversationHide) State {
	switch {
	case h == nil:
		return VisibleFull
	case h.VisibleFrom == nil:
		return Hidden
	default:
		return VisibleWindowed
	}
}

// Filter is the message visibility predicate for one reader.
type Filter struct {
	ReaderID int
	From     *time.Time
}

// ForReader builds the reader's filter from their hide record.
func ForReader(readerID int, h *models.ConversationHide) Filter {
	f := Filter{ReaderID: readerID}
	if h != nil && h.VisibleFrom != nil {
		from := *h.VisibleFrom
		f.From = &from
	}
	return f
}

// AdmitsTime reports whether a message created at t falls inside the window.
func (f Filter) AdmitsTime(t time.Time) bool {
	return f.From == nil || !t.Before(*f.From)
}

// Admits reports whether the reader may see m. Soft-deleted messages are admitted
// and rendered as tombstones by the caller.
func (f Filter) Admits(m models.Message, hiddenByReader bool) bool {
	return !hiddenByReader && f.AdmitsTime(m.CreatedAt)
}

// Predicate renders the same rule as Admits as a SQL condition over the messages
// alias msg. reader and from are SQL expressions (placeholders or columns); from
// may evaluate to NULL for an unwindowed reader.
func Predicate(msg, reader, from string) string {
	return fmt.Sprintf(
		"NOT EXISTS (SELECT 1 FROM message_hides mh WHERE mh.message_id = %[1]s.id AND mh.user_id = %[2]s) AND (%[3]s IS NULL OR %[1]s.created_at >= %[3]s)",
		msg, reader, from,
	)
}

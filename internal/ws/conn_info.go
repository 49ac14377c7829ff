package ws

import "time"

// ConnInfo describes one websocket subscriber of a conversation room.
type ConnInfo struct {
	ConnID         string
	ConversationID int
	UserID         int
	IP             string
	UserAgent      string
	RequestID      string
	TraceID        string
	ConnectedAt    time.Time
}

// Lifetime is how long the connection has been open at now.
func (i ConnInfo) Lifetime(now time.Time) time.Duration {
	if i.ConnectedAt.IsZero() {
		return 0
	}
	return now.Sub(i.ConnectedAt)
}

func (i ConnInfo) payload(event, reason string, now time.Time) map[string]any {
	return map[string]any{
		"ws": map[string]any{
			"kind":            wsKind,
			"conversation_id": i.ConversationID,
			"event":           event,
			"conn_id":         i.ConnID,
			"duration_ms":     i.Lifetime(now).Milliseconds(),
			"reason":          reason,
		},
		"identity": map[string]any{
			"user_id":    i.UserID,
			"ip":         i.IP,
			"user_agent": i.UserAgent,
		},
	}
}

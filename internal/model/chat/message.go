package chat

import "time"

// Message is one turn in a session log. Messages are append-only and keep
// their insertion order; they are never re-sorted by timestamp.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	IsSystem  bool      `json:"isSystem,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

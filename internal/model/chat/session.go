package chat

import "time"

// Session is a one-on-one or group conversation. ParticipantIDs always
// include the human persona plus at least one AI persona. LastMessageAt is
// derived: it equals the timestamp of the final message, or CreatedAt while
// the log is empty.
type Session struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	IsGroup        bool      `json:"isGroup"`
	ParticipantIDs []string  `json:"participantIds"`
	Messages       []Message `json:"messages"`
	CreatedAt      time.Time `json:"createdAt"`
	LastMessageAt  time.Time `json:"lastMessageAt"`
}

// Clone returns a deep copy safe to hand to readers.
func (s Session) Clone() Session {
	out := s
	out.ParticipantIDs = append([]string(nil), s.ParticipantIDs...)
	out.Messages = append([]Message(nil), s.Messages...)
	return out
}

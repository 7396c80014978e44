// Package event defines the state-change notifications the core publishes
// for the presentation layer.
package event

import "github.com/zhouzirui/roundtable/backend/internal/model/chat"

// Type names one kind of state change.
type Type string

const (
	TypeMessageAppended Type = "message.appended"
	TypeTypingChanged   Type = "typing.changed"
	TypeAutoChatChanged Type = "autochat.changed"
	TypeSessionCreated  Type = "session.created"
	TypeSessionDeleted  Type = "session.deleted"
	TypeModelsUpdated   Type = "models.updated"
	TypeDataReset       Type = "data.reset"
)

// Event is one notification on the bus.
type Event struct {
	Type    Type `json:"type"`
	Payload any  `json:"payload,omitempty"`
}

// Bus receives events from the core. Implementations must not block.
type Bus interface {
	Publish(Event)
}

// NopBus discards everything; used when no consumer is attached.
type NopBus struct{}

func (NopBus) Publish(Event) {}

// MessageAppended accompanies TypeMessageAppended.
type MessageAppended struct {
	SessionID string       `json:"sessionId"`
	Message   chat.Message `json:"message"`
}

// TypingChanged accompanies TypeTypingChanged. An empty PersonaID means the
// indicator for the session was cleared.
type TypingChanged struct {
	SessionID string `json:"sessionId"`
	PersonaID string `json:"personaId"`
}

// AutoChatChanged accompanies TypeAutoChatChanged.
type AutoChatChanged struct {
	SessionID string `json:"sessionId"`
	Active    bool   `json:"active"`
}

// SessionCreated accompanies TypeSessionCreated.
type SessionCreated struct {
	Session chat.Session `json:"session"`
}

// SessionDeleted accompanies TypeSessionDeleted.
type SessionDeleted struct {
	SessionID string `json:"sessionId"`
}

// ModelsUpdated accompanies TypeModelsUpdated.
type ModelsUpdated struct {
	Models []string `json:"models"`
}

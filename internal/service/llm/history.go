package llm

import (
	"github.com/zhouzirui/roundtable/backend/internal/model/chat"
	"github.com/zhouzirui/roundtable/backend/internal/model/persona"
)

// ChatMessage is one entry of the provider-format transcript.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	roleSystem    = "system"
	roleUser      = "user"
	roleAssistant = "assistant"
)

// unknownSenderName stands in for messages whose sender id no longer
// resolves; the message itself is never dropped.
const unknownSenderName = "Unknown"

// BuildMessages translates multi-party history into the pairwise
// user/assistant shape the provider expects, from the target persona's point
// of view:
//
//   - the target's system prompt (persona instruction + group framing) leads;
//   - the human persona's messages become the user role;
//   - every other persona's messages become the assistant role, prefixed
//     "Name: " when the sender is not the target, so the model can still tell
//     which AI said what;
//   - system notices (failure banners) are skipped.
//
// The translation is lossy by nature; the name prefix is the documented
// convention that preserves attribution.
func BuildMessages(target persona.Persona, history []chat.Message, participants map[string]persona.Persona) []ChatMessage {
	out := make([]ChatMessage, 0, len(history)+1)
	out = append(out, ChatMessage{Role: roleSystem, Content: BuildSystemPrompt(target, participants)})

	for _, msg := range history {
		if msg.IsSystem {
			continue
		}

		sender, known := participants[msg.SenderID]
		if known && sender.IsUser {
			out = append(out, ChatMessage{Role: roleUser, Content: msg.Content})
			continue
		}

		content := msg.Content
		if msg.SenderID != target.ID {
			name := unknownSenderName
			if known {
				name = sender.Name
			}
			content = name + ": " + content
		}
		out = append(out, ChatMessage{Role: roleAssistant, Content: content})
	}

	return out
}

package llm

import (
	"strings"
	"testing"

	"github.com/zhouzirui/roundtable/backend/internal/model/chat"
	"github.com/zhouzirui/roundtable/backend/internal/model/persona"
)

func TestBuildMessagesUnknownSenderIsKept(t *testing.T) {
	target := persona.Persona{ID: "ai-alice", Name: "Alice", SystemInstruction: "You are Alice."}
	participants := map[string]persona.Persona{
		"user-me":  {ID: "user-me", Name: "Me", IsUser: true},
		target.ID:  target,
	}
	history := []chat.Message{
		{SenderID: "ghost-persona", Content: "still here"},
	}

	msgs := BuildMessages(target, history, participants)
	if len(msgs) != 2 {
		t.Fatalf("expected system + 1 message, got %d", len(msgs))
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != "Unknown: still here" {
		t.Fatalf("unknown sender handled badly: %+v", msgs[1])
	}
}

func TestBuildMessagesSkipsSystemNotices(t *testing.T) {
	target := persona.Persona{ID: "ai-alice", Name: "Alice", SystemInstruction: "You are Alice."}
	participants := map[string]persona.Persona{target.ID: target}
	history := []chat.Message{
		{SenderID: "user-me", Content: "generation failed", IsSystem: true},
	}

	msgs := BuildMessages(target, history, participants)
	if len(msgs) != 1 {
		t.Fatalf("system notices must not reach the provider, got %d messages", len(msgs))
	}
}

func TestBuildSystemPromptOneOnOneHasNoGroupFraming(t *testing.T) {
	target := persona.Persona{ID: "ai-alice", Name: "Alice", SystemInstruction: "You are Alice."}
	participants := map[string]persona.Persona{
		"user-me": {ID: "user-me", Name: "Me", IsUser: true},
		target.ID: target,
	}

	got := BuildSystemPrompt(target, participants)
	if got != "You are Alice." {
		t.Fatalf("expected bare instruction, got %q", got)
	}
}

func TestBuildSystemPromptGroupListsOthers(t *testing.T) {
	target := persona.Persona{ID: "ai-alice", Name: "Alice", SystemInstruction: "You are Alice."}
	participants := map[string]persona.Persona{
		"user-me":  {ID: "user-me", Name: "Me", IsUser: true},
		target.ID:  target,
		"ai-bob":   {ID: "ai-bob", Name: "Bob"},
	}

	got := BuildSystemPrompt(target, participants)
	if !strings.HasPrefix(got, "You are Alice.") {
		t.Fatalf("persona instruction must lead: %q", got)
	}
	if !strings.Contains(got, "Bob") || !strings.Contains(got, "Me") {
		t.Fatalf("group framing must list the other participants: %q", got)
	}
}

func TestBuildSystemPromptFallsBackWithoutInstruction(t *testing.T) {
	target := persona.Persona{ID: "ai-bob", Name: "Bob", Description: "resident skeptic"}
	got := BuildSystemPrompt(target, map[string]persona.Persona{target.ID: target})
	if !strings.Contains(got, "Bob") || !strings.Contains(got, "resident skeptic") {
		t.Fatalf("fallback prompt missing identity: %q", got)
	}
}

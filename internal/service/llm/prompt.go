package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zhouzirui/roundtable/backend/internal/model/persona"
)

// BuildSystemPrompt composes the system instruction for one generation. The
// target persona's own instruction comes first; in a group chat a framing
// block follows so the model knows who else is present and that other
// speakers' turns arrive name-prefixed.
func BuildSystemPrompt(target persona.Persona, participants map[string]persona.Persona) string {
	base := strings.TrimSpace(target.SystemInstruction)
	if base == "" {
		base = fmt.Sprintf("You are %s. %s", target.Name, target.Description)
	}

	others := otherNames(target, participants)
	if len(others) < 2 {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf(
		"You are %s in a group conversation. The other participants are: %s. "+
			"Messages from other participants are prefixed with the speaker's name. "+
			"Reply only as %s and never prefix your reply with your own name.",
		target.Name, strings.Join(others, ", "), target.Name))
	return b.String()
}

// otherNames lists everyone in the session except the target, human
// included, in a stable order.
func otherNames(target persona.Persona, participants map[string]persona.Persona) []string {
	names := make([]string, 0, len(participants))
	for id, p := range participants {
		if id == target.ID {
			continue
		}
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

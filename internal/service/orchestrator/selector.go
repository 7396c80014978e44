package orchestrator

import (
	"math/rand/v2"

	"github.com/zhouzirui/roundtable/backend/internal/model/chat"
	"github.com/zhouzirui/roundtable/backend/internal/model/persona"
)

// lastSpeakerID returns the sender of the last non-system message, or ""
// for an empty log. System notices never count as a turn.
func lastSpeakerID(session chat.Session) string {
	for i := len(session.Messages) - 1; i >= 0; i-- {
		if !session.Messages[i].IsSystem {
			return session.Messages[i].SenderID
		}
	}
	return ""
}

// pickNext chooses the next speaker from candidates (sorted by id). The
// immediately preceding speaker is excluded whenever at least one
// alternative exists, so two-or-more AI sessions never repeat a speaker
// back to back. Deterministic selection takes the lowest id; random
// selection is uniform over the eligible set.
func pickNext(candidates []persona.Persona, lastSpeaker string, random bool) (persona.Persona, bool) {
	if len(candidates) == 0 {
		return persona.Persona{}, false
	}

	eligible := candidates
	if lastSpeaker != "" && len(candidates) > 1 {
		filtered := make([]persona.Persona, 0, len(candidates))
		for _, p := range candidates {
			if p.ID != lastSpeaker {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) > 0 {
			eligible = filtered
		}
	}

	if !random {
		return eligible[0], true
	}
	return eligible[rand.IntN(len(eligible))], true
}

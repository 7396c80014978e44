// Package orchestrator decides which persona speaks next, runs the
// autonomous debate loop, and keeps typing-indicator state honest across
// every trigger path.
package orchestrator

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/roundtable/backend/internal/event"
	"github.com/zhouzirui/roundtable/backend/internal/model/chat"
	"github.com/zhouzirui/roundtable/backend/internal/model/persona"
	chatservice "github.com/zhouzirui/roundtable/backend/internal/service/chat"
	"github.com/zhouzirui/roundtable/backend/internal/service/llm"
	"github.com/zhouzirui/roundtable/backend/internal/service/settings"
)

var (
	ErrNotGroup         = errors.New("auto-chat requires a group session")
	ErrNoAIParticipants = errors.New("session needs at least one AI participant")
	ErrUnknownPersona   = errors.New("unknown persona")
	ErrGenerationBusy   = errors.New("a reply is already being generated")
	ErrAutoChatActive   = errors.New("auto-chat is running for this session")
)

// Completer generates one reply; satisfied by *llm.Client.
type Completer interface {
	Complete(ctx context.Context, ep llm.Endpoint, target persona.Persona, history []chat.Message, participants map[string]persona.Persona) (string, error)
}

// Options tunes auto-chat pacing. The limiter bounds dispatch rate across
// all running loops; the delay window emulates conversational pacing.
type Options struct {
	MinTurnDelay time.Duration
	MaxTurnDelay time.Duration
	Limiter      *rate.Limiter
}

func (o Options) withDefaults() Options {
	if o.MinTurnDelay <= 0 {
		o.MinTurnDelay = 1500 * time.Millisecond
	}
	if o.MaxTurnDelay < o.MinTurnDelay {
		o.MaxTurnDelay = o.MinTurnDelay
	}
	return o
}

// RunState is the transient per-session orchestrator state exposed to the
// presentation layer. Typing state is kept per session id, never globally,
// so indicators can never bleed across chats.
type RunState struct {
	AutoChatActive  bool   `json:"autoChatActive"`
	TypingPersonaID string `json:"typingPersonaId,omitempty"`
}

type runState struct {
	autoChat        bool
	cancel          context.CancelFunc
	typingPersonaID string
	pendingToken    string
	generating      bool
}

// Orchestrator is the conversation core. All session mutation funnels
// through the session store; run state lives here under its own mutex.
type Orchestrator struct {
	personas  persona.Store
	sessions  *chatservice.Store
	completer Completer
	settings  *settings.Service
	bus       event.Bus
	opts      Options

	mu   sync.Mutex
	runs map[string]*runState
}

// New wires the orchestrator. A nil bus is replaced with a no-op.
func New(personas persona.Store, sessions *chatservice.Store, completer Completer, cfg *settings.Service, bus event.Bus, opts Options) *Orchestrator {
	if bus == nil {
		bus = event.NopBus{}
	}
	return &Orchestrator{
		personas:  personas,
		sessions:  sessions,
		completer: completer,
		settings:  cfg,
		bus:       bus,
		opts:      opts.withDefaults(),
		runs:      make(map[string]*runState),
	}
}

// CreateSession validates participants against the registry, guarantees the
// human persona is present, and flags the session as a group when more than
// one AI participates.
func (o *Orchestrator) CreateSession(ctx context.Context, name string, participantIDs []string, isGroup bool) (chat.Session, error) {
	human := o.personas.Human()

	seen := map[string]bool{human.ID: true}
	ids := []string{human.ID}
	aiCount := 0
	for _, id := range participantIDs {
		if seen[id] {
			continue
		}
		p, ok := o.personas.FindByID(id)
		if !ok {
			return chat.Session{}, errors.Join(ErrUnknownPersona, errors.New(id))
		}
		seen[id] = true
		ids = append(ids, id)
		if !p.IsUser {
			aiCount++
		}
	}
	if aiCount == 0 {
		return chat.Session{}, ErrNoAIParticipants
	}

	session, err := o.sessions.CreateSession(ctx, name, ids, isGroup || aiCount > 1)
	if err != nil {
		return chat.Session{}, err
	}
	o.bus.Publish(event.Event{Type: event.TypeSessionCreated, Payload: event.SessionCreated{Session: session}})
	return session, nil
}

// SendMessage appends the human's message and, unless the auto-chat loop is
// running (it picks the message up as context on its next turn) or a reply
// is already in flight, dispatches one generation from the deterministic
// responder: the sole AI in a one-on-one, the lowest-id AI in a group.
func (o *Orchestrator) SendMessage(ctx context.Context, sessionID, content string) (chat.Message, error) {
	msg, err := o.sessions.AppendMessage(ctx, sessionID, chat.Message{
		SenderID: o.personas.Human().ID,
		Content:  content,
	})
	if err != nil {
		return chat.Message{}, err
	}
	o.bus.Publish(event.Event{Type: event.TypeMessageAppended, Payload: event.MessageAppended{SessionID: sessionID, Message: msg}})

	o.mu.Lock()
	run := o.runLocked(sessionID)
	if run.autoChat || run.generating {
		o.mu.Unlock()
		return msg, nil
	}
	o.mu.Unlock()

	session, err := o.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return msg, err
	}
	target, ok := pickNext(o.aiParticipants(session), "", false)
	if !ok {
		return msg, nil
	}
	o.dispatch(sessionID, target)
	return msg, nil
}

// TriggerRandom dispatches one reply from a uniformly chosen AI persona,
// never the one that produced the immediately preceding message.
func (o *Orchestrator) TriggerRandom(ctx context.Context, sessionID string) error {
	session, err := o.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	o.mu.Lock()
	run := o.runLocked(sessionID)
	switch {
	case run.autoChat:
		o.mu.Unlock()
		return ErrAutoChatActive
	case run.generating:
		o.mu.Unlock()
		return ErrGenerationBusy
	}
	o.mu.Unlock()

	target, ok := pickNext(o.aiParticipants(session), lastSpeakerID(session), true)
	if !ok {
		return ErrNoAIParticipants
	}
	o.dispatch(sessionID, target)
	return nil
}

// ToggleAutoChat flips the debate loop for a group session and returns the
// new state. Toggling off cancels the loop before its next dispatch; an
// in-flight generation still completes and appends.
func (o *Orchestrator) ToggleAutoChat(sessionID string) (bool, error) {
	session, err := o.sessions.GetSession(context.Background(), sessionID)
	if err != nil {
		return false, err
	}
	if !session.IsGroup {
		return false, ErrNotGroup
	}
	if len(o.aiParticipants(session)) == 0 {
		return false, ErrNoAIParticipants
	}

	o.mu.Lock()
	run := o.runLocked(sessionID)
	if run.autoChat {
		if run.cancel != nil {
			run.cancel()
			run.cancel = nil
		}
		run.autoChat = false
		o.mu.Unlock()
		o.bus.Publish(event.Event{Type: event.TypeAutoChatChanged, Payload: event.AutoChatChanged{SessionID: sessionID, Active: false}})
		log.Printf("[orchestrator] auto-chat paused for session=%s", sessionID)
		return false, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	run.autoChat = true
	run.cancel = cancel
	o.mu.Unlock()

	o.bus.Publish(event.Event{Type: event.TypeAutoChatChanged, Payload: event.AutoChatChanged{SessionID: sessionID, Active: true}})
	log.Printf("[orchestrator] auto-chat started for session=%s", sessionID)
	go o.runAutoChat(ctx, sessionID)
	return true, nil
}

// runAutoChat is the cancellable per-session debate task. Each turn
// re-reads the session, so a human interruption appended mid-loop is part
// of the next turn's history; the loop stops cleanly on cancellation,
// session deletion, or a generation failure.
func (o *Orchestrator) runAutoChat(ctx context.Context, sessionID string) {
	for {
		if ctx.Err() != nil {
			return
		}

		session, err := o.sessions.GetSession(ctx, sessionID)
		if err != nil {
			o.stopAutoChat(sessionID, true)
			return
		}

		target, ok := pickNext(o.aiParticipants(session), lastSpeakerID(session), true)
		if !ok {
			o.stopAutoChat(sessionID, true)
			return
		}

		if !o.sleepTurn(ctx) {
			return
		}
		if o.opts.Limiter != nil {
			if err := o.opts.Limiter.Wait(ctx); err != nil {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		if err := o.generate(sessionID, target); err != nil {
			// The failure banner is already in the log; stop, never spin.
			o.stopAutoChat(sessionID, true)
			return
		}
	}
}

// sleepTurn waits the randomized inter-turn delay; false means cancelled.
func (o *Orchestrator) sleepTurn(ctx context.Context) bool {
	delay := o.opts.MinTurnDelay
	if window := o.opts.MaxTurnDelay - o.opts.MinTurnDelay; window > 0 {
		delay += rand.N(window)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// dispatch starts one asynchronous generation for the manual and random
// trigger paths.
func (o *Orchestrator) dispatch(sessionID string, target persona.Persona) {
	o.mu.Lock()
	run := o.runLocked(sessionID)
	if run.generating {
		o.mu.Unlock()
		return
	}
	run.generating = true
	o.mu.Unlock()

	go func() {
		defer o.endGeneration(sessionID)
		_ = o.generate(sessionID, target)
	}()
}

// generate performs one completion turn: set typing, snapshot history and
// endpoint config, call the provider, then append the reply (or a failure
// banner) and clear typing. Every trigger path funnels through here, so the
// typing indicator lifecycle is identical for manual, random and auto-chat
// turns.
func (o *Orchestrator) generate(sessionID string, target persona.Persona) error {
	token := uuid.NewString()
	o.setTyping(sessionID, target.ID, token)

	session, err := o.sessions.GetSession(context.Background(), sessionID)
	if err != nil {
		o.clearTyping(sessionID, token)
		return err
	}

	cfg := o.settings.Snapshot()
	ep := llm.Endpoint{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, Model: cfg.ModelName}

	reply, err := o.completer.Complete(context.Background(), ep, target, session.Messages, o.participantMap(session))
	o.clearTyping(sessionID, token)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		log.Printf("[orchestrator] generation failed for session=%s persona=%s: %v", sessionID, target.ID, err)
		o.appendSystem(sessionID, llm.Describe(err))
		return err
	}
	if reply == "" {
		// A 2xx with empty content is a success; there is just nothing to say.
		return nil
	}

	msg, err := o.sessions.AppendMessage(context.Background(), sessionID, chat.Message{
		SenderID: target.ID,
		Content:  reply,
	})
	if err != nil {
		if errors.Is(err, chatservice.ErrSessionNotFound) {
			log.Printf("[orchestrator] discarding reply for deleted session=%s", sessionID)
		}
		return err
	}
	o.bus.Publish(event.Event{Type: event.TypeMessageAppended, Payload: event.MessageAppended{SessionID: sessionID, Message: msg}})
	return nil
}

func (o *Orchestrator) appendSystem(sessionID, content string) {
	msg, err := o.sessions.AppendMessage(context.Background(), sessionID, chat.Message{
		SenderID: o.personas.Human().ID,
		Content:  content,
		IsSystem: true,
	})
	if err != nil {
		return
	}
	o.bus.Publish(event.Event{Type: event.TypeMessageAppended, Payload: event.MessageAppended{SessionID: sessionID, Message: msg}})
}

// DeleteSession cancels any loop and pending typing state for the session,
// then removes it. A completion still in flight finds the session gone and
// its result is discarded.
func (o *Orchestrator) DeleteSession(ctx context.Context, sessionID string) error {
	o.mu.Lock()
	if run, ok := o.runs[sessionID]; ok {
		if run.cancel != nil {
			run.cancel()
		}
		delete(o.runs, sessionID)
	}
	o.mu.Unlock()

	if err := o.sessions.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	o.bus.Publish(event.Event{Type: event.TypeTypingChanged, Payload: event.TypingChanged{SessionID: sessionID}})
	o.bus.Publish(event.Event{Type: event.TypeSessionDeleted, Payload: event.SessionDeleted{SessionID: sessionID}})
	return nil
}

// Reset wipes every session, every loop, and the persisted settings.
// Irreversible; the caller confirms with the operator first.
func (o *Orchestrator) Reset(ctx context.Context) error {
	o.mu.Lock()
	for _, run := range o.runs {
		if run.cancel != nil {
			run.cancel()
		}
	}
	o.runs = make(map[string]*runState)
	o.mu.Unlock()

	if err := o.sessions.Reset(ctx); err != nil {
		return err
	}
	o.settings.Reset()
	o.bus.Publish(event.Event{Type: event.TypeDataReset})
	log.Printf("[orchestrator] all data reset")
	return nil
}

// State reports the transient run state for one session.
func (o *Orchestrator) State(sessionID string) RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	run, ok := o.runs[sessionID]
	if !ok {
		return RunState{}
	}
	return RunState{AutoChatActive: run.autoChat, TypingPersonaID: run.typingPersonaID}
}

// runLocked returns the run state for a session, creating it if needed.
// Caller holds o.mu.
func (o *Orchestrator) runLocked(sessionID string) *runState {
	run, ok := o.runs[sessionID]
	if !ok {
		run = &runState{}
		o.runs[sessionID] = run
	}
	return run
}

func (o *Orchestrator) setTyping(sessionID, personaID, token string) {
	o.mu.Lock()
	run := o.runLocked(sessionID)
	run.typingPersonaID = personaID
	run.pendingToken = token
	o.mu.Unlock()
	o.bus.Publish(event.Event{Type: event.TypeTypingChanged, Payload: event.TypingChanged{SessionID: sessionID, PersonaID: personaID}})
}

// clearTyping only clears when the token still matches, so a stale
// completion can never wipe a newer turn's indicator.
func (o *Orchestrator) clearTyping(sessionID, token string) {
	o.mu.Lock()
	run, ok := o.runs[sessionID]
	if !ok || run.pendingToken != token {
		o.mu.Unlock()
		return
	}
	run.typingPersonaID = ""
	run.pendingToken = ""
	o.mu.Unlock()
	o.bus.Publish(event.Event{Type: event.TypeTypingChanged, Payload: event.TypingChanged{SessionID: sessionID}})
}

func (o *Orchestrator) endGeneration(sessionID string) {
	o.mu.Lock()
	if run, ok := o.runs[sessionID]; ok {
		run.generating = false
	}
	o.mu.Unlock()
}

// stopAutoChat clears the loop state; used when the loop terminates on its
// own (deletion, failure, no eligible speaker).
func (o *Orchestrator) stopAutoChat(sessionID string, publish bool) {
	o.mu.Lock()
	run, ok := o.runs[sessionID]
	if !ok || !run.autoChat {
		o.mu.Unlock()
		return
	}
	if run.cancel != nil {
		run.cancel()
		run.cancel = nil
	}
	run.autoChat = false
	o.mu.Unlock()
	if publish {
		o.bus.Publish(event.Event{Type: event.TypeAutoChatChanged, Payload: event.AutoChatChanged{SessionID: sessionID, Active: false}})
	}
	log.Printf("[orchestrator] auto-chat stopped for session=%s", sessionID)
}

// participantMap resolves the session's participant ids; unresolvable ids
// are simply absent and render as unknown senders downstream.
func (o *Orchestrator) participantMap(session chat.Session) map[string]persona.Persona {
	out := make(map[string]persona.Persona, len(session.ParticipantIDs))
	for _, id := range session.ParticipantIDs {
		if p, ok := o.personas.FindByID(id); ok {
			out[id] = p
		}
	}
	return out
}

// aiParticipants resolves the session's AI personas sorted by id, the
// stable order behind the deterministic group-reply tie-break.
func (o *Orchestrator) aiParticipants(session chat.Session) []persona.Persona {
	out := make([]persona.Persona, 0, len(session.ParticipantIDs))
	for _, id := range session.ParticipantIDs {
		p, ok := o.personas.FindByID(id)
		if !ok || p.IsUser {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

package chat_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	chathandler "github.com/zhouzirui/roundtable/backend/internal/handler/chat"
	model "github.com/zhouzirui/roundtable/backend/internal/model/chat"
	"github.com/zhouzirui/roundtable/backend/internal/model/persona"
	chatservice "github.com/zhouzirui/roundtable/backend/internal/service/chat"
	"github.com/zhouzirui/roundtable/backend/internal/service/llm"
	"github.com/zhouzirui/roundtable/backend/internal/service/orchestrator"
	settingsservice "github.com/zhouzirui/roundtable/backend/internal/service/settings"
)

type stubCompleter struct{}

func (stubCompleter) Complete(context.Context, llm.Endpoint, persona.Persona, []model.Message, map[string]persona.Persona) (string, error) {
	return "stub reply", nil
}

func setupRouter() *chi.Mux {
	personas := persona.NewMemoryStore([]persona.Persona{
		{ID: "user-me", Name: "Me", IsUser: true},
		{ID: "ai-alice", Name: "Alice", SystemInstruction: "You are Alice."},
		{ID: "ai-bob", Name: "Bob", SystemInstruction: "You are Bob."},
	})
	sessions := chatservice.NewStore(nil)
	cfg := settingsservice.NewService(nil, settingsservice.Config{BaseURL: "http://example.test/v1", ModelName: "m"})
	orch := orchestrator.New(personas, sessions, stubCompleter{}, cfg, nil, orchestrator.Options{
		MinTurnDelay: 10 * time.Millisecond,
		MaxTurnDelay: 20 * time.Millisecond,
	})

	r := chi.NewRouter()
	chathandler.New(sessions, orch).RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, r http.Handler, participants []string) model.Session {
	t.Helper()
	rec := doJSON(t, r, http.MethodPost, "/sessions", map[string]any{
		"name":           "tavern",
		"participantIds": participants,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: status %d body %s", rec.Code, rec.Body.String())
	}
	var session model.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return session
}

func TestCreateSessionEndpoint(t *testing.T) {
	r := setupRouter()

	session := createSession(t, r, []string{"ai-alice", "ai-bob"})
	if !session.IsGroup {
		t.Fatalf("two AI participants must create a group, got %+v", session)
	}

	rec := doJSON(t, r, http.MethodPost, "/sessions", map[string]any{"participantIds": []string{"ai-alice"}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing name must 400, got %d", rec.Code)
	}

	rec = doJSON(t, r, http.MethodPost, "/sessions", map[string]any{
		"name":           "x",
		"participantIds": []string{"nobody"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown persona must 400, got %d", rec.Code)
	}
}

func TestGetSessionIncludesRunState(t *testing.T) {
	r := setupRouter()
	session := createSession(t, r, []string{"ai-alice"})

	rec := doJSON(t, r, http.MethodGet, "/sessions/"+session.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get session: status %d", rec.Code)
	}
	var view struct {
		ID             string `json:"id"`
		AutoChatActive bool   `json:"autoChatActive"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.ID != session.ID || view.AutoChatActive {
		t.Fatalf("unexpected view: %+v", view)
	}

	rec = doJSON(t, r, http.MethodGet, "/sessions/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing session must 404, got %d", rec.Code)
	}
}

func TestSendMessageEndpoint(t *testing.T) {
	r := setupRouter()
	session := createSession(t, r, []string{"ai-alice"})

	rec := doJSON(t, r, http.MethodPost, "/sessions/"+session.ID+"/messages", map[string]string{"content": "hello"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("send message: status %d body %s", rec.Code, rec.Body.String())
	}
	var msg model.Message
	if err := json.Unmarshal(rec.Body.Bytes(), &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.SenderID != "user-me" || msg.Content != "hello" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	rec = doJSON(t, r, http.MethodPost, "/sessions/"+session.ID+"/messages", map[string]string{"content": ""})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty content must 400, got %d", rec.Code)
	}

	rec = doJSON(t, r, http.MethodPost, "/sessions/missing/messages", map[string]string{"content": "hi"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing session must 404, got %d", rec.Code)
	}
}

func TestAutoChatEndpointLifecycle(t *testing.T) {
	r := setupRouter()
	direct := createSession(t, r, []string{"ai-alice"})
	group := createSession(t, r, []string{"ai-alice", "ai-bob"})

	rec := doJSON(t, r, http.MethodPost, "/sessions/"+direct.ID+"/auto-chat", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("auto-chat on one-on-one must 400, got %d", rec.Code)
	}

	rec = doJSON(t, r, http.MethodPost, "/sessions/"+group.ID+"/auto-chat", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle on: status %d body %s", rec.Code, rec.Body.String())
	}
	var state map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if !state["autoChatActive"] {
		t.Fatalf("expected active auto-chat, got %v", state)
	}

	// A manual trigger must be refused while the loop runs.
	rec = doJSON(t, r, http.MethodPost, "/sessions/"+group.ID+"/random", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("random during auto-chat must 409, got %d", rec.Code)
	}

	rec = doJSON(t, r, http.MethodPost, "/sessions/"+group.ID+"/auto-chat", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle off: status %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state["autoChatActive"] {
		t.Fatalf("expected inactive auto-chat, got %v", state)
	}
}

func TestTriggerRandomEndpoint(t *testing.T) {
	r := setupRouter()
	session := createSession(t, r, []string{"ai-alice", "ai-bob"})

	rec := doJSON(t, r, http.MethodPost, "/sessions/"+session.ID+"/random", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("trigger random: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, r, http.MethodPost, "/sessions/missing/random", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing session must 404, got %d", rec.Code)
	}
}

func TestDeleteSessionEndpoint(t *testing.T) {
	r := setupRouter()
	session := createSession(t, r, []string{"ai-alice"})

	rec := doJSON(t, r, http.MethodDelete, "/sessions/"+session.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rec.Code)
	}
	rec = doJSON(t, r, http.MethodDelete, "/sessions/"+session.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("double delete must 404, got %d", rec.Code)
	}
}

package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/roundtable/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/roundtable/backend/internal/service/chat"
	"github.com/zhouzirui/roundtable/backend/internal/service/orchestrator"
	"github.com/zhouzirui/roundtable/backend/pkg/utils"
)

// Handler 会话与编排相关的HTTP处理器
type Handler struct {
	sessions *chatservice.Store
	orch     *orchestrator.Orchestrator
}

// New 创建会话处理器
func New(sessions *chatservice.Store, orch *orchestrator.Orchestrator) *Handler {
	return &Handler{sessions: sessions, orch: orch}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions", h.handleListSessions)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Delete("/sessions/{sessionID}", h.handleDeleteSession)
	r.Post("/sessions/{sessionID}/messages", h.handleSendMessage)
	r.Post("/sessions/{sessionID}/auto-chat", h.handleToggleAutoChat)
	r.Post("/sessions/{sessionID}/random", h.handleTriggerRandom)
}

// sessionView attaches the transient run state the presentation layer
// filters typing indicators with.
type sessionView struct {
	chat.Session
	orchestrator.RunState
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name           string   `json:"name"`
		ParticipantIDs []string `json:"participantIds"`
		IsGroup        bool     `json:"isGroup"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Name == "" {
		utils.RespondError(w, http.StatusBadRequest, "name is required")
		return
	}

	session, err := h.orch.CreateSession(r.Context(), payload.Name, payload.ParticipantIDs, payload.IsGroup)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.sessions.ListSessions(r.Context()))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, sessionView{Session: session, RunState: h.orch.State(sessionID)})
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.orch.DeleteSession(r.Context(), sessionID); err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Content == "" {
		utils.RespondError(w, http.StatusBadRequest, "content is required")
		return
	}

	msg, err := h.orch.SendMessage(r.Context(), sessionID, payload.Content)
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, msg)
}

func (h *Handler) handleToggleAutoChat(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	active, err := h.orch.ToggleAutoChat(sessionID)
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"autoChatActive": active})
}

func (h *Handler) handleTriggerRandom(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.orch.TriggerRandom(r.Context(), sessionID); err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "dispatched"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chatservice.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrGenerationBusy),
		errors.Is(err, orchestrator.ErrAutoChatActive):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

package settings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/roundtable/backend/internal/event"
	"github.com/zhouzirui/roundtable/backend/internal/service/llm"
	"github.com/zhouzirui/roundtable/backend/internal/service/settings"
	"github.com/zhouzirui/roundtable/backend/pkg/utils"
)

// Discoverer lists models from a candidate endpoint; satisfied by *llm.Client.
type Discoverer interface {
	DiscoverModels(ctx context.Context, baseURL, apiKey string) (llm.Discovery, error)
}

// Resetter wipes all persisted state; satisfied by the orchestrator.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler 设置相关的HTTP处理器
type Handler struct {
	settings   *settings.Service
	discoverer Discoverer
	resetter   Resetter
	bus        event.Bus
}

// New 创建设置处理器
func New(cfg *settings.Service, discoverer Discoverer, resetter Resetter, bus event.Bus) *Handler {
	if bus == nil {
		bus = event.NopBus{}
	}
	return &Handler{settings: cfg, discoverer: discoverer, resetter: resetter, bus: bus}
}

// RegisterRoutes 注册设置相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/settings", h.handleGetSettings)
	r.Put("/settings", h.handleSaveSettings)
	r.Post("/settings/models/refresh", h.handleRefreshModels)
	r.Post("/reset", h.handleReset)
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cfg := h.settings.Snapshot()
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"baseUrl":         cfg.BaseURL,
		"apiKey":          maskKey(cfg.APIKey),
		"modelName":       cfg.ModelName,
		"availableModels": cfg.AvailableModels,
	})
}

func (h *Handler) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		APIKey    string `json:"apiKey"`
		BaseURL   string `json:"baseUrl"`
		ModelName string `json:"modelName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.settings.Save(r.Context(),
		strings.TrimSpace(payload.APIKey),
		strings.TrimSpace(payload.BaseURL),
		strings.TrimSpace(payload.ModelName))
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to persist settings")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// handleRefreshModels 拉取可用模型列表；发现失败只反馈给设置界面，不写入聊天记录。
func (h *Handler) handleRefreshModels(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		BaseURL string `json:"baseUrl"`
		APIKey  string `json:"apiKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.BaseURL == "" || payload.APIKey == "" {
		utils.RespondError(w, http.StatusBadRequest, "baseUrl and apiKey are required")
		return
	}

	discovery, err := h.discoverer.DiscoverModels(r.Context(), payload.BaseURL, payload.APIKey)
	if err != nil {
		utils.RespondError(w, discoveryStatus(err), llm.Describe(err))
		return
	}

	if err := h.settings.SetAvailableModels(r.Context(), discovery.Models); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to persist model list")
		return
	}
	h.bus.Publish(event.Event{Type: event.TypeModelsUpdated, Payload: event.ModelsUpdated{Models: discovery.Models}})
	utils.RespondJSON(w, http.StatusOK, discovery)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.resetter.Reset(r.Context()); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to reset data")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func discoveryStatus(err error) int {
	switch {
	case errors.Is(err, llm.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, llm.ErrNetwork), errors.Is(err, llm.ErrEndpoint), errors.Is(err, llm.ErrParse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// maskKey keeps just enough of the key to recognize it in the settings UI.
func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:3] + "****" + key[len(key)-4:]
}

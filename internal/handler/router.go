package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	chathandler "github.com/zhouzirui/roundtable/backend/internal/handler/chat"
	"github.com/zhouzirui/roundtable/backend/internal/handler/events"
	personahandler "github.com/zhouzirui/roundtable/backend/internal/handler/persona"
	settingshandler "github.com/zhouzirui/roundtable/backend/internal/handler/settings"
	"github.com/zhouzirui/roundtable/backend/internal/middleware"
	personamodel "github.com/zhouzirui/roundtable/backend/internal/model/persona"
	chatservice "github.com/zhouzirui/roundtable/backend/internal/service/chat"
	"github.com/zhouzirui/roundtable/backend/internal/service/llm"
	"github.com/zhouzirui/roundtable/backend/internal/service/orchestrator"
	settingsservice "github.com/zhouzirui/roundtable/backend/internal/service/settings"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(
	personas personamodel.Store,
	sessions *chatservice.Store,
	orch *orchestrator.Orchestrator,
	cfg *settingsservice.Service,
	client *llm.Client,
	hub *events.Hub,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS)

	personaHandler := personahandler.New(personas)
	chatHandler := chathandler.New(sessions, orch)
	settingsHandler := settingshandler.New(cfg, client, orch, hub)

	r.Route("/api", func(api chi.Router) {
		personaHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		settingsHandler.RegisterRoutes(api)
		hub.RegisterRoutes(api)
	})

	return r
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/roundtable/backend/internal/config"
	"github.com/zhouzirui/roundtable/backend/internal/handler"
	"github.com/zhouzirui/roundtable/backend/internal/handler/events"
	"github.com/zhouzirui/roundtable/backend/internal/model/persona"
	chatservice "github.com/zhouzirui/roundtable/backend/internal/service/chat"
	"github.com/zhouzirui/roundtable/backend/internal/service/llm"
	"github.com/zhouzirui/roundtable/backend/internal/service/orchestrator"
	settingsservice "github.com/zhouzirui/roundtable/backend/internal/service/settings"
	"github.com/zhouzirui/roundtable/backend/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("failed to open storage at %s: %v", cfg.Storage.Path, err)
	}
	defer store.Close()

	personaStore := persona.NewMemoryStore(persona.Seed())

	sessions := chatservice.NewStore(store)
	if err := sessions.Load(ctx); err != nil {
		log.Fatalf("failed to restore sessions: %v", err)
	}

	settings := settingsservice.NewService(store, settingsservice.Config{
		BaseURL:   cfg.LLM.BaseURL,
		APIKey:    cfg.LLM.APIKey,
		ModelName: cfg.LLM.Model,
	})
	if err := settings.Load(ctx); err != nil {
		log.Fatalf("failed to restore settings: %v", err)
	}

	client := llm.NewClient(cfg.LLM.RequestTimeout)
	hub := events.NewHub()

	orch := orchestrator.New(personaStore, sessions, client, settings, hub, orchestrator.Options{
		MinTurnDelay: cfg.Orchestrator.MinTurnDelay,
		MaxTurnDelay: cfg.Orchestrator.MaxTurnDelay,
		Limiter:      rate.NewLimiter(rate.Limit(cfg.Orchestrator.RequestsPerMinute)/60, 1),
	})

	router := handler.NewRouter(personaStore, sessions, orch, settings, client, hub)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Roundtable backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

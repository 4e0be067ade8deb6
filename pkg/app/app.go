// Package app assembles the StoryCanvas components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Taherchk/StoryCanvas-Ai/pkg/config"
	"github.com/Taherchk/StoryCanvas-Ai/pkg/export"
	"github.com/Taherchk/StoryCanvas-Ai/pkg/handlers"
	"github.com/Taherchk/StoryCanvas-Ai/pkg/llm"
	"github.com/Taherchk/StoryCanvas-Ai/pkg/services"
	"github.com/Taherchk/StoryCanvas-Ai/pkg/storage"
	"github.com/Taherchk/StoryCanvas-Ai/pkg/story"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Idle workspaces are dropped from memory; their state stays in the store.
const (
	workspaceSweepInterval = 5 * time.Minute
	workspaceIdleTTL       = 30 * time.Minute
)

// SetupLogging configures the global logrus logger the way every entry point uses it.
func SetupLogging(level string) {
	log.SetOutput(gin.DefaultWriter)
	log.SetFormatter(&log.JSONFormatter{})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

// Components are the long-lived services shared by the server and the CLI.
type Components struct {
	Store   storage.Store
	Gateway *llm.Service
}

// Open builds the store and the AI gateway. Call the returned func on shutdown.
func Open(ctx context.Context, cfg *config.Config) (*Components, func(), error) {
	store, closeStore, err := storage.Open(ctx, cfg.StoreDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	gateway, err := llm.NewGeminiService(ctx, llm.Options{
		APIKey:     cfg.GeminiAPIKey,
		TextModel:  cfg.GeminiTextModel,
		ImageModel: cfg.GeminiImageModel,
	})
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("init LLM client: %w", err)
	}
	cleanup := func() {
		if err := gateway.Close(); err != nil {
			log.Errorf("Error closing Gemini client: %v", err)
		}
		closeStore()
	}
	return &Components{Store: store, Gateway: gateway}, cleanup, nil
}

// Serve runs the HTTP API until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	comps, cleanup, err := Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	registry := story.NewRegistry(comps.Gateway, comps.Store)
	go registry.RunEviction(ctx, workspaceSweepInterval, workspaceIdleTTL)
	tokens := services.NewTokenService(cfg.JwtSecret, 0)

	var uploader handlers.ExportUploader
	if cfg.MinIO.Enabled() {
		u, err := export.NewUploader(cfg.MinIO)
		if err != nil {
			log.Errorf("Export uploads disabled: %v", err)
		} else {
			uploader = u
		}
	}

	h := handlers.NewHandlers(cfg, registry, tokens, export.New(), uploader)
	srv := &http.Server{
		Addr:    cfg.Host + ":" + cfg.Port,
		Handler: handlers.NewRouter(h),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Server listening on %s:%s", cfg.Host, cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		registry.Shutdown()
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	// Cancel in-flight runs so their partial results are persisted before the store closes.
	registry.Shutdown()

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("Server exited gracefully.")
	return nil
}

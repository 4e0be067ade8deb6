package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Taherchk/StoryCanvas-Ai/pkg/config"
	"github.com/Taherchk/StoryCanvas-Ai/pkg/export"
	"github.com/Taherchk/StoryCanvas-Ai/pkg/middleware"
	"github.com/Taherchk/StoryCanvas-Ai/pkg/services"
	"github.com/Taherchk/StoryCanvas-Ai/pkg/story"
	"github.com/Taherchk/StoryCanvas-Ai/pkg/utils"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// ExportUploader stores a finished export and returns a download URL.
type ExportUploader interface {
	Upload(ctx context.Context, objectName string, data []byte) (string, error)
}

// Handlers holds the dependencies shared by the API handlers.
type Handlers struct {
	Config       *config.Config
	Registry     *story.Registry
	Tokens       *services.TokenService
	Exporter     *export.Exporter
	Uploader     ExportUploader // nil when object storage is not configured
	AIConfigured bool
}

func NewHandlers(cfg *config.Config, registry *story.Registry, tokens *services.TokenService, exporter *export.Exporter, uploader ExportUploader) *Handlers {
	return &Handlers{
		Config:       cfg,
		Registry:     registry,
		Tokens:       tokens,
		Exporter:     exporter,
		Uploader:     uploader,
		AIConfigured: cfg.AIConfigured(),
	}
}

// orchestrator resolves the caller's workspace. It writes the error response itself.
func (h *Handlers) orchestrator(c *gin.Context, caller string) (*story.Orchestrator, bool) {
	claims, exists := middleware.GetWorkspaceClaimsFromContext(c)
	if !exists {
		log.Errorf("%s: Workspace claims not found in context.", caller)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Authentication error: workspace claims not found", nil)
		return nil, false
	}
	return h.Registry.Get(c.Request.Context(), claims.WorkspaceID), true
}

// respondWithStoryError maps orchestrator errors to HTTP responses.
func respondWithStoryError(c *gin.Context, caller string, err error) {
	switch {
	case errors.Is(err, story.ErrEmptyStory), errors.Is(err, story.ErrInvalidAspectRatio):
		log.Debugf("%s: %v", caller, err)
		utils.ResponseWithError(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, story.ErrBusy):
		log.Debugf("%s: %v", caller, err)
		utils.ResponseWithError(c, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, story.ErrConfirmationRequired):
		utils.ResponseWithError(c, http.StatusConflict, err.Error(), gin.H{"confirmRequired": true})
	case errors.Is(err, story.ErrProjectNotFound):
		utils.ResponseWithError(c, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, story.ErrAnalysisFailed), errors.Is(err, story.ErrNothingToExport):
		utils.ResponseWithError(c, http.StatusUnprocessableEntity, err.Error(), nil)
	default:
		log.Errorf("%s: %v", caller, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Internal error", nil)
	}
}

func confirmed(c *gin.Context) bool {
	return c.Query("confirm") == "true"
}

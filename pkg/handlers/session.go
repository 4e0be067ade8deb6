package handlers

import (
	"net/http"

	"github.com/Taherchk/StoryCanvas-Ai/pkg/story"
	"github.com/Taherchk/StoryCanvas-Ai/pkg/utils"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// GenerateRequest starts a new run for the caller's workspace.
type GenerateRequest struct {
	Story       string `json:"story" binding:"required"`
	Style       string `json:"style"`
	AspectRatio string `json:"aspectRatio" binding:"omitempty,oneof=16:9 9:16 1:1"`
}

// SessionResponse is the session plus fields derived from it for the UI.
type SessionResponse struct {
	story.Session
	State      story.State `json:"state"`
	AllSettled bool        `json:"allSettled"`
}

func newSessionResponse(s story.Session) SessionResponse {
	return SessionResponse{Session: s, State: s.State(), AllSettled: s.AllSettled()}
}

// GetConfig describes the options a client can choose from.
func (h *Handlers) GetConfig(c *gin.Context) {
	utils.ResponseWithSuccess(c, http.StatusOK, "Configuration retrieved", gin.H{
		"aspectRatios":       story.AspectRatios,
		"defaultAspectRatio": story.DefaultAspectRatio,
		"archiveCapacity":    story.ArchiveCapacity,
		"aiConfigured":       h.AIConfigured,
		"exportUpload":       h.Uploader != nil,
	})
}

func (h *Handlers) GetSession(c *gin.Context) {
	o, ok := h.orchestrator(c, "GetSession")
	if !ok {
		return
	}
	utils.ResponseWithSuccess(c, http.StatusOK, "Session retrieved", newSessionResponse(o.Snapshot()))
}

// GenerateStory validates the input and starts the run in the background.
// Progress is observed through GetSession or the session stream.
func (h *Handlers) GenerateStory(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("GenerateStory: Invalid request body: %v", err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if !h.AIConfigured {
		log.Warn("GenerateStory: rejected, GEMINI_API_KEY is not configured.")
		utils.ResponseWithError(c, http.StatusServiceUnavailable, "AI backend is not configured: set GEMINI_API_KEY", nil)
		return
	}

	o, ok := h.orchestrator(c, "GenerateStory")
	if !ok {
		return
	}
	err := o.Start(story.GenerateRequest{Story: req.Story, Style: req.Style, AspectRatio: req.AspectRatio})
	if err != nil {
		respondWithStoryError(c, "GenerateStory", err)
		return
	}

	log.Infof("GenerateStory: run started (%d characters, ratio %q).", len(req.Story), req.AspectRatio)
	utils.ResponseWithSuccess(c, http.StatusAccepted, "Story analysis started", newSessionResponse(o.Snapshot()))
}

func (h *Handlers) RetryScene(c *gin.Context) {
	sceneID := c.Param("id")
	o, ok := h.orchestrator(c, "RetryScene")
	if !ok {
		return
	}
	issued, err := o.StartRetry(sceneID)
	if err != nil {
		respondWithStoryError(c, "RetryScene", err)
		return
	}
	if !issued {
		log.Debugf("RetryScene: scene %s not found.", sceneID)
		utils.ResponseWithError(c, http.StatusNotFound, "Scene not found", nil)
		return
	}
	utils.ResponseWithSuccess(c, http.StatusAccepted, "Scene render restarted", newSessionResponse(o.Snapshot()))
}

func (h *Handlers) CancelRun(c *gin.Context) {
	o, ok := h.orchestrator(c, "CancelRun")
	if !ok {
		return
	}
	if !o.Cancel() {
		utils.ResponseWithError(c, http.StatusConflict, "No generation run in progress", nil)
		return
	}
	utils.ResponseWithSuccess(c, http.StatusAccepted, "Cancellation requested", nil)
}

// ResetSession clears the live session. Requires ?confirm=true.
func (h *Handlers) ResetSession(c *gin.Context) {
	o, ok := h.orchestrator(c, "ResetSession")
	if !ok {
		return
	}
	if err := o.Reset(c.Request.Context(), confirmed(c)); err != nil {
		respondWithStoryError(c, "ResetSession", err)
		return
	}
	log.Info("ResetSession: session cleared; archive preserved.")
	utils.ResponseWithSuccess(c, http.StatusOK, "Session reset. History is preserved in the archive.", newSessionResponse(o.Snapshot()))
}

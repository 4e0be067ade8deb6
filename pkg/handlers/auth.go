package handlers

import (
	"net/http"

	"github.com/Taherchk/StoryCanvas-Ai/pkg/middleware"
	"github.com/Taherchk/StoryCanvas-Ai/pkg/utils"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// CreateWorkspace mints an anonymous workspace and its bearer token.
func (h *Handlers) CreateWorkspace(c *gin.Context) {
	workspaceID, token, expires, err := h.Tokens.NewWorkspace()
	if err != nil {
		log.Errorf("CreateWorkspace: Failed to generate token: %v", err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to generate authentication token", nil)
		return
	}

	log.Infof("Workspace %s created.", workspaceID)
	utils.ResponseWithSuccess(c, http.StatusCreated, "Workspace created", gin.H{
		"workspaceId": workspaceID,
		"token":       token,
		"expiresAt":   expires,
	})
}

// RenewToken issues a fresh token for the caller's workspace.
func (h *Handlers) RenewToken(c *gin.Context) {
	claims, exists := middleware.GetWorkspaceClaimsFromContext(c)
	if !exists {
		log.Error("RenewToken: Workspace claims not found in context.")
		utils.ResponseWithError(c, http.StatusInternalServerError, "Authentication error: workspace claims not found", nil)
		return
	}
	token, expires, err := h.Tokens.GenerateToken(claims.WorkspaceID)
	if err != nil {
		log.Errorf("RenewToken: Failed to generate token for workspace %s: %v", claims.WorkspaceID, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to generate authentication token", nil)
		return
	}
	utils.ResponseWithSuccess(c, http.StatusOK, "Token renewed", gin.H{
		"workspaceId": claims.WorkspaceID,
		"token":       token,
		"expiresAt":   expires,
	})
}

package handlers

import (
	"net/http"

	"github.com/Taherchk/StoryCanvas-Ai/pkg/utils"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func (h *Handlers) ListArchive(c *gin.Context) {
	o, ok := h.orchestrator(c, "ListArchive")
	if !ok {
		return
	}
	projects := o.Archive().List(c.Request.Context())
	log.Debugf("ListArchive: %d archived projects.", len(projects))
	utils.ResponseWithSuccess(c, http.StatusOK, "Archive retrieved", projects)
}

// LoadArchivedProject replaces the live session. Requires ?confirm=true when
// the live session has scenes.
func (h *Handlers) LoadArchivedProject(c *gin.Context) {
	id := c.Param("id")
	o, ok := h.orchestrator(c, "LoadArchivedProject")
	if !ok {
		return
	}
	if err := o.LoadProject(c.Request.Context(), id, confirmed(c)); err != nil {
		respondWithStoryError(c, "LoadArchivedProject", err)
		return
	}
	log.Infof("LoadArchivedProject: project %s loaded.", id)
	utils.ResponseWithSuccess(c, http.StatusOK, "Project loaded", newSessionResponse(o.Snapshot()))
}

func (h *Handlers) DeleteArchivedProject(c *gin.Context) {
	id := c.Param("id")
	o, ok := h.orchestrator(c, "DeleteArchivedProject")
	if !ok {
		return
	}
	if err := o.Archive().Delete(c.Request.Context(), id); err != nil {
		respondWithStoryError(c, "DeleteArchivedProject", err)
		return
	}
	log.Infof("DeleteArchivedProject: project %s deleted.", id)
	utils.ResponseWithSuccess(c, http.StatusOK, "Project deleted", nil)
}

package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/Taherchk/StoryCanvas-Ai/pkg/export"
	"github.com/Taherchk/StoryCanvas-Ai/pkg/middleware"
	"github.com/Taherchk/StoryCanvas-Ai/pkg/story"
	"github.com/Taherchk/StoryCanvas-Ai/pkg/utils"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// buildExport renders the zip for the caller's settled session into memory.
func (h *Handlers) buildExport(c *gin.Context, caller string) ([]byte, export.Summary, bool) {
	o, ok := h.orchestrator(c, caller)
	if !ok {
		return nil, export.Summary{}, false
	}
	s := o.Snapshot()
	if s.Busy() {
		respondWithStoryError(c, caller, story.ErrBusy)
		return nil, export.Summary{}, false
	}

	var buf bytes.Buffer
	summary, err := h.Exporter.Write(c.Request.Context(), &buf, s.OriginalStory, s.Scenes)
	if err != nil {
		respondWithStoryError(c, caller, err)
		return nil, export.Summary{}, false
	}
	return buf.Bytes(), summary, true
}

// DownloadExport streams the zip archive of the session's shots.
func (h *Handlers) DownloadExport(c *gin.Context) {
	data, summary, ok := h.buildExport(c, "DownloadExport")
	if !ok {
		return
	}
	name := export.FileName(time.Now())
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Header("X-Export-Skipped", fmt.Sprint(len(summary.Skipped)))
	c.Data(http.StatusOK, "application/zip", data)
}

// UploadExport stores the zip in object storage and returns a presigned URL.
func (h *Handlers) UploadExport(c *gin.Context) {
	if h.Uploader == nil {
		utils.ResponseWithError(c, http.StatusServiceUnavailable, "Object storage is not configured", nil)
		return
	}
	data, summary, ok := h.buildExport(c, "UploadExport")
	if !ok {
		return
	}
	claims, _ := middleware.GetWorkspaceClaimsFromContext(c)
	objectName := fmt.Sprintf("exports/%s/%s", claims.WorkspaceID, export.FileName(time.Now()))

	url, err := h.Uploader.Upload(c.Request.Context(), objectName, data)
	if err != nil {
		log.Errorf("UploadExport: %v", err)
		utils.ResponseWithError(c, http.StatusBadGateway, "Failed to upload export", nil)
		return
	}
	utils.ResponseWithSuccess(c, http.StatusOK, "Export uploaded", gin.H{
		"url":      url,
		"exported": summary.Exported,
		"skipped":  summary.Skipped,
	})
}

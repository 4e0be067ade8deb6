package handlers

import (
	"time"

	"github.com/Taherchk/StoryCanvas-Ai/pkg/middleware"
	cors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter wires every route onto a gin engine.
func NewRouter(h *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestLogger(gin.DefaultWriter), gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     h.Config.CorsOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition", "X-Export-Skipped"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", h.HealthCheck)
	router.POST("/auth/workspace", h.CreateWorkspace)
	router.GET("/api/session/stream", middleware.QueryTokenAuthMiddleware(h.Tokens), h.StreamSession)

	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(h.Tokens))
	{
		api.GET("/config", h.GetConfig)
		api.POST("/workspace/token", h.RenewToken)

		session := api.Group("/session")
		{
			session.GET("", h.GetSession)
			session.DELETE("", h.ResetSession)
			session.POST("/generate", h.GenerateStory)
			session.POST("/cancel", h.CancelRun)
			session.POST("/scenes/:id/retry", h.RetryScene)
			session.GET("/export", h.DownloadExport)
			session.POST("/export", h.UploadExport)
		}

		archive := api.Group("/archive")
		{
			archive.GET("", h.ListArchive)
			archive.POST("/:id/load", h.LoadArchivedProject)
			archive.DELETE("/:id", h.DeleteArchivedProject)
		}
	}
	return router
}

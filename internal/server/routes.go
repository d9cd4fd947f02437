package server

import (
	"net/http"

	"github.com/cozy-creator/sticker-server/internal/api"
	"github.com/cozy-creator/sticker-server/internal/app"
	"github.com/gin-gonic/gin"
)

func (s *Server) SetupRoutes(app *app.App) {
	s.ginEngine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r := s.ginEngine.Group("/api")

	r.GET("/events", handlerWrapper(app, api.StreamEventsHandler))

	r.POST("/jobs", handlerWrapper(app, api.CreateJobHandler))
	r.GET("/jobs", handlerWrapper(app, api.ListJobsHandler))
	r.GET("/jobs/:id", handlerWrapper(app, api.GetJobHandler))
	r.POST("/jobs/:id/cancel", handlerWrapper(app, api.CancelJobHandler))
	r.DELETE("/jobs/:id", handlerWrapper(app, api.DeleteJobHandler))
	r.GET("/jobs/:id/zip", handlerWrapper(app, api.GetJobZipHandler))
	r.HEAD("/jobs/:id/zip", handlerWrapper(app, api.HeadJobZipHandler))

	r.GET("/zips/latest", handlerWrapper(app, api.GetLatestZipHandler))
	r.GET("/zips/all", handlerWrapper(app, api.GetAggregateZipHandler))
	r.HEAD("/zips/all", handlerWrapper(app, api.HeadAggregateZipHandler))

	r.GET("/images", handlerWrapper(app, api.ListImagesHandler))
	r.DELETE("/images", handlerWrapper(app, api.DeleteImagesHandler))
	r.GET("/files/images/:id", handlerWrapper(app, api.GetImageFileHandler))

	r.GET("/prompts", handlerWrapper(app, api.ListPromptsHandler))
	r.POST("/prompts", handlerWrapper(app, api.UploadPromptsHandler))
	r.GET("/prompts/generated", handlerWrapper(app, api.ListGeneratedPromptsHandler))
	r.POST("/prompts/generated", handlerWrapper(app, api.CreateGeneratedPromptsHandler))

	r.GET("/config", handlerWrapper(app, api.GetConfigHandler))
	r.PUT("/config", handlerWrapper(app, api.UpdateConfigHandler))

	r.POST("/queue", handlerWrapper(app, api.EnqueueHandler))
	r.GET("/queue", handlerWrapper(app, api.ListQueueHandler))
	r.DELETE("/queue/:id", handlerWrapper(app, api.RemoveQueueEntryHandler))
	r.POST("/queue/process", handlerWrapper(app, api.ProcessQueueHandler))
}

func handlerWrapper(app *app.App, f func(c *gin.Context)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Set("app", app)
		f(ctx)
	}
}

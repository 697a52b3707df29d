package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"convertd/config"
	"convertd/events"
	"convertd/ffmpeg"
	"convertd/task"
)

func SetupRouter(m *task.Manager, prober *ffmpeg.Prober, bus *events.Bus, cfg *config.Config, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(logger), gin.Recovery())
	h := NewHandler(m, prober, bus, logger)

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(cfg))
	{
		v1.POST("/tasks", h.handleCreateTask)
		v1.GET("/tasks", h.handleListTasks)
		v1.POST("/tasks/:taskId/pause", h.handlePauseTask)
		v1.POST("/tasks/:taskId/resume", h.handleResumeTask)
		v1.POST("/tasks/:taskId/cancel", h.handleCancelTask)

		v1.GET("/concurrency", h.handleGetConcurrency)
		v1.PUT("/concurrency", h.handleSetConcurrency)

		v1.GET("/probe", h.handleProbe)
		v1.GET("/events", h.handleEvents)
	}
	return r
}

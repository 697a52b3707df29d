package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lithammer/shortuuid/v4"
	"go.uber.org/zap"

	"convertd/events"
	"convertd/ffmpeg"
	"convertd/task"
)

type Handler struct {
	manager *task.Manager
	prober  *ffmpeg.Prober
	bus     *events.Bus
	logger  *zap.Logger
}

func NewHandler(m *task.Manager, prober *ffmpeg.Prober, bus *events.Bus, logger *zap.Logger) *Handler {
	return &Handler{
		manager: m,
		prober:  prober,
		bus:     bus,
		logger:  logger,
	}
}

type TaskRequest struct {
	ID         string                `json:"id"`
	InputPath  string                `json:"inputPath" binding:"required"`
	OutputName string                `json:"outputName"`
	Config     task.ConversionConfig `json:"config"`
}

// handleCreateTask validates and enqueues a conversion task.
func (h *Handler) handleCreateTask(c *gin.Context) {
	// Pre-fill the config so fields absent from the request JSON keep
	// their defaults instead of collapsing to zero values.
	req := TaskRequest{Config: task.DefaultConversionConfig()}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.ID == "" {
		req.ID = shortuuid.New()
	}

	t := &task.Task{
		ID:         req.ID,
		InputPath:  req.InputPath,
		OutputName: req.OutputName,
		Config:     req.Config,
	}

	if err := ffmpeg.ValidateTask(t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.manager.Enqueue(t); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to enqueue task", "details": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"taskId": t.ID})
}

// handleListTasks reports the ids currently queued and running.
func (h *Handler) handleListTasks(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.Snapshot())
}

func (h *Handler) handlePauseTask(c *gin.Context) {
	if err := h.manager.Pause(c.Param("taskId")); err != nil {
		h.renderControlError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Task paused"})
}

func (h *Handler) handleResumeTask(c *gin.Context) {
	if err := h.manager.Resume(c.Param("taskId")); err != nil {
		h.renderControlError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Task resumed"})
}

func (h *Handler) handleCancelTask(c *gin.Context) {
	if err := h.manager.Cancel(c.Param("taskId")); err != nil {
		h.renderControlError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Task cancellation requested"})
}

func (h *Handler) renderControlError(c *gin.Context, err error) {
	if errors.Is(err, task.ErrTaskNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	h.logger.Warn("task control operation failed",
		zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (h *Handler) handleGetConcurrency(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"maxConcurrency": h.manager.GetMaxConcurrency()})
}

type concurrencyRequest struct {
	MaxConcurrency *int `json:"maxConcurrency" binding:"required"`
}

func (h *Handler) handleSetConcurrency(c *gin.Context) {
	var req concurrencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.manager.SetMaxConcurrency(*req.MaxConcurrency); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"maxConcurrency": h.manager.GetMaxConcurrency()})
}

// handleProbe inspects a media file and returns its condensed metadata.
func (h *Handler) handleProbe(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'path' is required"})
		return
	}

	meta, err := h.prober.Probe(c.Request.Context(), path)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, meta)
}

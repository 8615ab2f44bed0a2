package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facesort/internal/faces"
	"github.com/your-org/facesort/pkg/dto"
)

// BatchControl is the part of faces.Controller the API drives.
type BatchControl interface {
	Start(ctx context.Context) faces.Status
	Stop() faces.Status
	Running() bool
	LastRun() *faces.RunReport
}

type ProcessHandler struct {
	batch BatchControl
}

func NewProcessHandler(batch BatchControl) *ProcessHandler {
	return &ProcessHandler{batch: batch}
}

func (h *ProcessHandler) Start(c *gin.Context) {
	status := h.batch.Start(c.Request.Context())
	msg := "process started"
	if status == faces.StatusAlreadyRunning {
		msg = "process already running"
	}
	c.JSON(http.StatusOK, dto.ProcessResponse{Status: string(status), Message: msg})
}

func (h *ProcessHandler) Stop(c *gin.Context) {
	status := h.batch.Stop()
	if status == faces.StatusNotRunning {
		c.JSON(http.StatusBadRequest, dto.ProcessResponse{Status: string(status), Message: "process not running"})
		return
	}
	c.JSON(http.StatusOK, dto.ProcessResponse{Status: string(status), Message: "process stopping"})
}

func (h *ProcessHandler) Status(c *gin.Context) {
	resp := dto.ProcessStatusResponse{Running: h.batch.Running()}
	if last := h.batch.LastRun(); last != nil {
		resp.LastRun = last
	}
	c.JSON(http.StatusOK, resp)
}

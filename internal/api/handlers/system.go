package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facesort/internal/queue"
	"github.com/your-org/facesort/internal/storage"
)

type SystemHandler struct {
	store    storage.DocumentStore
	blobs    storage.BlobStore
	producer *queue.Producer // nil when NATS is not configured
}

func NewSystemHandler(store storage.DocumentStore, blobs storage.BlobStore, producer *queue.Producer) *SystemHandler {
	return &SystemHandler{store: store, blobs: blobs, producer: producer}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	check := func(name string, err error) {
		if err != nil {
			checks[name] = err.Error()
			healthy = false
			return
		}
		checks[name] = "ok"
	}

	check("store", h.store.Ping(ctx))
	check("blobs", h.blobs.Ping(ctx))
	if h.producer != nil {
		check("nats", h.producer.Ping())
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ready", false: "not ready"}[healthy],
		"checks": checks,
	})
}

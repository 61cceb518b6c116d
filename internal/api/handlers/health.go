package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/The-Promised-Neverland/relay/internal/models"
	"github.com/The-Promised-Neverland/relay/pkg/system"
)

// ActiveCounter reports how many transfers are running.
type ActiveCounter interface {
	Len() int
}

func (h *Handler) HealthCheck(active ActiveCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		health := models.HealthCheck{
			Status: "Healthy",
			Uptime: system.Uptime(),
		}
		if active != nil {
			health.ActiveTasks = active.Len()
		}
		if h.Space != nil {
			if free, err := h.Space.ScratchFree(); err == nil {
				health.ScratchFree = free
			}
		}
		c.JSON(http.StatusOK, models.Message{
			Type:    "health_check",
			Payload: health,
		})
	}
}

// HostMetrics reports the load of the machine running the relay.
func (h *Handler) HostMetrics(c *gin.Context) {
	if h.Host == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "host metrics are not available"})
		return
	}
	c.JSON(http.StatusOK, models.Message{
		Type:    "host_metrics",
		Payload: h.Host.GetHostMetrics(),
	})
}

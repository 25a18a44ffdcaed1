package handlers

import (
	"net/http"

	"github.com/frostdev-ops/pma-watch-bridge/internal/core/metrics"
	"github.com/frostdev-ops/pma-watch-bridge/internal/core/watches"
	"github.com/frostdev-ops/pma-watch-bridge/pkg/utils"
	"github.com/gin-gonic/gin"
)

// Health returns the health report of the bridge; 503 when a component is unhealthy
func (h *Handlers) Health(c *gin.Context) {
	report := h.health.Check(c.Request.Context())

	if report.Status == metrics.StatusUnhealthy {
		utils.SendErrorWithDetails(c, http.StatusServiceUnavailable, "Service unhealthy", report)
		return
	}

	utils.SendSuccess(c, report)
}

// Help returns usage text for the watch commands
func (h *Handlers) Help(c *gin.Context) {
	utils.SendSuccess(c, gin.H{"help": watches.HelpText})
}

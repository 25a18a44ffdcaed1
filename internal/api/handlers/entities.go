package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/frostdev-ops/pma-watch-bridge/pkg/utils"
	"github.com/gin-gonic/gin"
)

// SearchEntities finds entities whose friendly name matches q
func (h *Handlers) SearchEntities(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		utils.SendError(c, http.StatusBadRequest, "Please provide a search string")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	matches, err := h.watches.Search(ctx, query)
	if err != nil {
		h.log.WithError(err).WithField("query", query).Error("Failed to search entities")
		utils.SendError(c, http.StatusBadGateway, "Failed to read entities from Home Assistant")
		return
	}

	utils.SendSuccessWithMeta(c, matches, gin.H{"count": len(matches), "query": query})
}

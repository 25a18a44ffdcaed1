package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/frostdev-ops/pma-watch-bridge/internal/api/middleware"
	"github.com/frostdev-ops/pma-watch-bridge/internal/core/entities"
	"github.com/frostdev-ops/pma-watch-bridge/internal/core/watches"
	apperrors "github.com/frostdev-ops/pma-watch-bridge/pkg/errors"
	"github.com/frostdev-ops/pma-watch-bridge/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// defaultUserID is recorded when a request carries no identity
const defaultUserID = "api"

// CreateWatchRequest is the body of POST /watches
type CreateWatchRequest struct {
	Entity    string `json:"entity" binding:"required"`
	Condition string `json:"condition"`
	Message   string `json:"message"`
	ChannelID string `json:"channel_id" binding:"required"`
}

// CreateWatch starts watching an entity from a channel
func (h *Handlers) CreateWatch(c *gin.Context) {
	var req CreateWatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	userID := requestUserID(c)
	rule, err := h.watches.Add(c.Request.Context(), watches.AddRequest{
		UserID:    userID,
		ChannelID: req.ChannelID,
		Entity:    req.Entity,
		Condition: req.Condition,
		Message:   req.Message,
	})
	if err != nil {
		var ambiguous *entities.AmbiguousMatchError
		if errors.As(err, &ambiguous) {
			utils.SendErrorWithDetails(c, http.StatusMultipleChoices,
				fmt.Sprintf("Multiple entities matched %q, choose one of these entity ids", req.Entity),
				gin.H{"candidates": ambiguous.Candidates})
			return
		}

		appErr := watchError(err)
		if appErr.Code >= http.StatusInternalServerError {
			h.log.WithError(err).WithFields(logrus.Fields{
				"entity":     req.Entity,
				"channel_id": req.ChannelID,
			}).Error("Failed to add watch")
		}
		sendAppError(c, appErr)
		return
	}

	utils.SendCreated(c, rule)
}

// DeleteWatch stops a watch by id
func (h *Handlers) DeleteWatch(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid ID format. Must be an integer.")
		return
	}

	if err := h.watches.Remove(c.Request.Context(), id); err != nil {
		appErr := watchError(err)
		if appErr.Code >= http.StatusInternalServerError {
			h.log.WithError(err).WithField("watch_id", id).Error("Failed to remove watch")
		}
		sendAppError(c, appErr)
		return
	}

	utils.SendSuccess(c, gin.H{"id": id, "removed": true})
}

// ListChannelWatches lists the watches registered in a channel
func (h *Handlers) ListChannelWatches(c *gin.Context) {
	channelID := c.Param("channel_id")

	views, err := h.watches.List(c.Request.Context(), channelID)
	if err != nil {
		h.log.WithError(err).WithField("channel_id", channelID).Error("Failed to list watches")
		utils.SendError(c, http.StatusInternalServerError, "Failed to list watches")
		return
	}

	utils.SendSuccessWithMeta(c, views, gin.H{"count": len(views), "channel_id": channelID})
}

// watchError maps service errors onto HTTP errors
func watchError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, watches.ErrAlreadyWatching):
		return apperrors.Wrap(http.StatusConflict, "You're already watching this entity with this condition in this channel", err)
	case errors.Is(err, entities.ErrNoMatch):
		return apperrors.Wrap(http.StatusNotFound, "No entity matched, try the exact entity_id (e.g. sensor.front_load_washer)", err)
	case errors.Is(err, watches.ErrWatchNotFound):
		return apperrors.New(http.StatusNotFound, err.Error())
	case errors.Is(err, watches.ErrMissingEntity),
		errors.Is(err, watches.ErrInvalidCondition),
		errors.Is(err, watches.ErrEntityUnavailable),
		errors.Is(err, watches.ErrNonNumericState),
		errors.Is(err, watches.ErrStateMismatch):
		return apperrors.New(http.StatusUnprocessableEntity, err.Error())
	default:
		return apperrors.ErrInternalServer
	}
}

func sendAppError(c *gin.Context, appErr *apperrors.AppError) {
	if appErr.Details == "" {
		utils.SendError(c, appErr.Code, appErr.Message)
		return
	}
	utils.SendErrorWithDetails(c, appErr.Code, appErr.Message, appErr.Details)
}

// requestUserID prefers the authenticated user, then X-User-ID
func requestUserID(c *gin.Context) string {
	if userID := c.GetString(middleware.ContextUserID); userID != "" {
		return userID
	}
	if userID := c.GetHeader("X-User-ID"); userID != "" {
		return userID
	}
	return defaultUserID
}

package handlers

import (
	"context"

	"github.com/frostdev-ops/pma-watch-bridge/internal/core/entities"
	"github.com/frostdev-ops/pma-watch-bridge/internal/core/metrics"
	"github.com/frostdev-ops/pma-watch-bridge/internal/core/watches"
	"github.com/frostdev-ops/pma-watch-bridge/internal/database/models"
	"github.com/sirupsen/logrus"
)

// WatchService is the watch management surface the handlers drive
type WatchService interface {
	Add(ctx context.Context, req watches.AddRequest) (*models.WatchRule, error)
	Remove(ctx context.Context, id int64) error
	List(ctx context.Context, channelID string) ([]watches.WatchView, error)
	Search(ctx context.Context, query string) ([]entities.Candidate, error)
}

// Handlers holds all HTTP handlers and their dependencies
type Handlers struct {
	watches WatchService
	health  *metrics.HealthChecker
	log     *logrus.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(watchService WatchService, health *metrics.HealthChecker, logger *logrus.Logger) *Handlers {
	if health == nil {
		health = metrics.NewHealthChecker()
	}
	return &Handlers{
		watches: watchService,
		health:  health,
		log:     logger,
	}
}

package entities

import (
	"context"

	"github.com/frostdev-ops/pma-watch-bridge/internal/adapters/homeassistant"
	"github.com/frostdev-ops/pma-watch-bridge/internal/database/models"
	"github.com/frostdev-ops/pma-watch-bridge/internal/database/repositories"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// StateSource is the external entity metadata source
type StateSource interface {
	GetState(ctx context.Context, entityID string) (*homeassistant.EntityState, error)
	GetStates(ctx context.Context) ([]homeassistant.EntityState, error)
}

// DetailCache resolves entity display metadata through an in-process layer,
// the persistent entity_cache table and finally Home Assistant.
// Entries never expire; Refresh or Put replace them.
type DetailCache struct {
	repo   repositories.EntityCacheRepository
	source StateSource
	local  *cache.Cache
	logger *logrus.Logger
}

// NewDetailCache creates a new DetailCache
func NewDetailCache(repo repositories.EntityCacheRepository, source StateSource, logger *logrus.Logger) *DetailCache {
	return &DetailCache{
		repo:   repo,
		source: source,
		local:  cache.New(cache.NoExpiration, 0),
		logger: logger,
	}
}

// Get returns what is known about an entity. Lookup failures degrade to an
// empty detail so callers can fall back to the entity id.
func (c *DetailCache) Get(ctx context.Context, entityID string) models.EntityDetail {
	if v, found := c.local.Get(entityID); found {
		return v.(models.EntityDetail)
	}

	stored, err := c.repo.Get(ctx, entityID)
	if err != nil {
		c.logger.WithError(err).WithField("entity_id", entityID).Warn("Failed to read entity cache")
	} else if stored != nil {
		c.local.Set(entityID, *stored, cache.NoExpiration)
		return *stored
	}

	detail, err := c.Refresh(ctx, entityID)
	if err != nil {
		c.logger.WithError(err).WithField("entity_id", entityID).Warn("Failed to fetch entity details")
		return models.EntityDetail{}
	}
	return detail
}

// Refresh reads the entity from Home Assistant and stores the result in both layers
func (c *DetailCache) Refresh(ctx context.Context, entityID string) (models.EntityDetail, error) {
	state, err := c.source.GetState(ctx, entityID)
	if err != nil {
		return models.EntityDetail{}, err
	}

	detail := DetailFromState(state)
	if err := c.Put(ctx, entityID, detail); err != nil {
		c.logger.WithError(err).WithField("entity_id", entityID).Warn("Failed to persist entity details")
	}
	return detail, nil
}

// Put upserts a detail into both layers
func (c *DetailCache) Put(ctx context.Context, entityID string, detail models.EntityDetail) error {
	c.local.Set(entityID, detail, cache.NoExpiration)
	return c.repo.Put(ctx, entityID, detail)
}

// Names returns entity id to friendly name for every entity Home Assistant knows
func (c *DetailCache) Names(ctx context.Context) (map[string]string, error) {
	states, err := c.source.GetStates(ctx)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string, len(states))
	for i := range states {
		names[states[i].EntityID] = states[i].FriendlyName()
	}
	return names, nil
}

// DetailFromState extracts the cached fields from a full entity state
func DetailFromState(state *homeassistant.EntityState) models.EntityDetail {
	if state == nil {
		return models.EntityDetail{}
	}

	detail := models.EntityDetail{
		State: models.StringPtr(state.State),
	}
	if v, ok := state.Attributes["friendly_name"].(string); ok {
		detail.FriendlyName = models.StringPtr(v)
	}
	if v, ok := state.Attributes["icon"].(string); ok {
		detail.Icon = models.StringPtr(v)
	}
	if v, ok := state.Attributes["device_class"].(string); ok {
		detail.DeviceClass = models.StringPtr(v)
	}
	return detail
}

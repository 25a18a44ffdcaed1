package repositories

import (
	"context"
	"errors"

	"github.com/frostdev-ops/pma-watch-bridge/internal/database/models"
)

// ErrDuplicateWatch is returned when a structurally identical rule already exists in the channel
var ErrDuplicateWatch = errors.New("watch rule already exists for this channel")

// WatchQuery identifies a rule by the columns of the uniqueness invariant
type WatchQuery struct {
	ChannelID string
	EntityID  string
	FromState *string
	ToState   *string
	Operator  *string
	Threshold *string
}

// WatchRepository defines watch rule data access methods
type WatchRepository interface {
	Exists(ctx context.Context, query WatchQuery) (bool, error)
	Add(ctx context.Context, rule *models.WatchRule) (int64, error)
	Remove(ctx context.Context, id int64) (bool, error)
	ListByChannel(ctx context.Context, channelID string) ([]*models.WatchRule, error)
	ListByEntity(ctx context.Context, entityID string) ([]*models.WatchRule, error)
	DistinctEntityIDs(ctx context.Context) ([]string, error)
}

// EntityCacheRepository defines the persistent entity detail cache
type EntityCacheRepository interface {
	Get(ctx context.Context, entityID string) (*models.EntityDetail, error)
	Put(ctx context.Context, entityID string, detail models.EntityDetail) error
}

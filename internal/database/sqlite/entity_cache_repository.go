package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/frostdev-ops/pma-watch-bridge/internal/database/models"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type entityCacheRow struct {
	EntityID     string         `db:"entity_id"`
	FriendlyName sql.NullString `db:"friendly_name"`
	Icon         sql.NullString `db:"icon"`
	State        sql.NullString `db:"state"`
	DeviceClass  sql.NullString `db:"device_class"`
}

// EntityCacheRepository implements repositories.EntityCacheRepository
type EntityCacheRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

// NewEntityCacheRepository creates a new EntityCacheRepository
func NewEntityCacheRepository(db *sqlx.DB, log *logrus.Logger) *EntityCacheRepository {
	return &EntityCacheRepository{db: db, log: log}
}

// Get returns the cached detail, or nil when the entity has never been cached
func (r *EntityCacheRepository) Get(ctx context.Context, entityID string) (*models.EntityDetail, error) {
	query := `SELECT entity_id, friendly_name, icon, state, device_class
		FROM entity_cache WHERE entity_id = ?`

	var row entityCacheRow
	err := r.db.GetContext(ctx, &row, query, entityID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached entity %s: %w", entityID, err)
	}

	return &models.EntityDetail{
		FriendlyName: fromNull(row.FriendlyName),
		Icon:         fromNull(row.Icon),
		State:        fromNull(row.State),
		DeviceClass:  fromNull(row.DeviceClass),
	}, nil
}

// Put upserts the detail unconditionally
func (r *EntityCacheRepository) Put(ctx context.Context, entityID string, detail models.EntityDetail) error {
	query := `INSERT OR REPLACE INTO entity_cache (entity_id, friendly_name, icon, state, device_class)
		VALUES (?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		entityID,
		toNull(detail.FriendlyName),
		toNull(detail.Icon),
		toNull(detail.State),
		toNull(detail.DeviceClass),
	)
	if err != nil {
		return fmt.Errorf("failed to cache entity %s: %w", entityID, err)
	}

	r.log.WithField("entity_id", entityID).Debug("Entity details cached")
	return nil
}

package database

import (
	"github.com/frostdev-ops/pma-watch-bridge/internal/database/repositories"
	"github.com/frostdev-ops/pma-watch-bridge/internal/database/sqlite"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// Repositories holds all repository instances
type Repositories struct {
	Watches     repositories.WatchRepository
	EntityCache repositories.EntityCacheRepository
}

// NewRepositories creates all repository instances
func NewRepositories(db *sqlx.DB, log *logrus.Logger) *Repositories {
	return &Repositories{
		Watches:     sqlite.NewWatchRepository(db, log),
		EntityCache: sqlite.NewEntityCacheRepository(db, log),
	}
}

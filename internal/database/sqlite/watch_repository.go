package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/frostdev-ops/pma-watch-bridge/internal/database/models"
	"github.com/frostdev-ops/pma-watch-bridge/internal/database/repositories"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const watchColumns = `id, user_id, channel_id, entity_id, rule_type, from_state, to_state, operator, threshold, message`

// watchRow mirrors the watched_entities table
type watchRow struct {
	ID        int64          `db:"id"`
	UserID    string         `db:"user_id"`
	ChannelID string         `db:"channel_id"`
	EntityID  string         `db:"entity_id"`
	RuleType  sql.NullString `db:"rule_type"`
	FromState sql.NullString `db:"from_state"`
	ToState   sql.NullString `db:"to_state"`
	Operator  sql.NullString `db:"operator"`
	Threshold sql.NullString `db:"threshold"`
	Message   sql.NullString `db:"message"`
}

func (r *watchRow) toModel() *models.WatchRule {
	return &models.WatchRule{
		ID:        r.ID,
		UserID:    r.UserID,
		ChannelID: r.ChannelID,
		EntityID:  r.EntityID,
		RuleType:  r.RuleType.String,
		FromState: fromNull(r.FromState),
		ToState:   fromNull(r.ToState),
		Operator:  fromNull(r.Operator),
		Threshold: fromNull(r.Threshold),
		Message:   fromNull(r.Message),
	}
}

// WatchRepository implements repositories.WatchRepository
type WatchRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

// NewWatchRepository creates a new WatchRepository
func NewWatchRepository(db *sqlx.DB, log *logrus.Logger) *WatchRepository {
	return &WatchRepository{db: db, log: log}
}

// Exists reports whether a rule with the same invariant columns is stored.
// IS gives null-aware equality: a stored NULL only matches a NULL argument.
func (r *WatchRepository) Exists(ctx context.Context, q repositories.WatchQuery) (bool, error) {
	query := `SELECT 1 FROM watched_entities
		WHERE entity_id = ? AND channel_id = ?
		  AND from_state IS ? AND to_state IS ?
		  AND operator IS ? AND threshold IS ?
		LIMIT 1`

	var found int
	err := r.db.GetContext(ctx, &found, query,
		q.EntityID, q.ChannelID,
		toNull(q.FromState), toNull(q.ToState),
		toNull(q.Operator), toNull(q.Threshold),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check watch existence: %w", err)
	}
	return true, nil
}

// Add inserts a rule and returns its id
func (r *WatchRepository) Add(ctx context.Context, rule *models.WatchRule) (int64, error) {
	query := `INSERT INTO watched_entities (
			user_id, entity_id, channel_id,
			rule_type, from_state, to_state,
			operator, threshold, message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query,
		rule.UserID, rule.EntityID, rule.ChannelID,
		nullIfEmpty(rule.RuleType), toNull(rule.FromState), toNull(rule.ToState),
		toNull(rule.Operator), toNull(rule.Threshold), toNull(rule.Message),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, repositories.ErrDuplicateWatch
		}
		return 0, fmt.Errorf("failed to add watch: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read watch id: %w", err)
	}
	rule.ID = id

	r.log.WithFields(logrus.Fields{
		"watch_id":   id,
		"entity_id":  rule.EntityID,
		"channel_id": rule.ChannelID,
		"rule_type":  rule.RuleType,
	}).Debug("Watch rule stored")

	return id, nil
}

// Remove deletes a rule by id; a missing id reports false without error
func (r *WatchRepository) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM watched_entities WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to remove watch %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListByChannel returns the rules registered in a channel in insertion order
func (r *WatchRepository) ListByChannel(ctx context.Context, channelID string) ([]*models.WatchRule, error) {
	query := `SELECT ` + watchColumns + ` FROM watched_entities WHERE channel_id = ? ORDER BY id`
	return r.list(ctx, query, channelID)
}

// ListByEntity returns every rule watching an entity across all channels
func (r *WatchRepository) ListByEntity(ctx context.Context, entityID string) ([]*models.WatchRule, error) {
	query := `SELECT ` + watchColumns + ` FROM watched_entities WHERE entity_id = ? ORDER BY id`
	return r.list(ctx, query, entityID)
}

// DistinctEntityIDs returns the set of watched entity ids
func (r *WatchRepository) DistinctEntityIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `SELECT DISTINCT entity_id FROM watched_entities ORDER BY entity_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list watched entity ids: %w", err)
	}
	return ids, nil
}

func (r *WatchRepository) list(ctx context.Context, query string, arg string) ([]*models.WatchRule, error) {
	var rows []watchRow
	if err := r.db.SelectContext(ctx, &rows, query, arg); err != nil {
		r.log.WithError(err).Error("Failed to list watch rules")
		return nil, fmt.Errorf("failed to list watches: %w", err)
	}

	rules := make([]*models.WatchRule, 0, len(rows))
	for i := range rows {
		rules = append(rules, rows[i].toModel())
	}
	return rules, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *moderncsqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

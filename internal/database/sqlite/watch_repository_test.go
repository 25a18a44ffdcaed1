package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/frostdev-ops/pma-watch-bridge/internal/database/models"
	"github.com/frostdev-ops/pma-watch-bridge/internal/database/repositories"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "Failed to open test database")
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	files, err := filepath.Glob(filepath.Join("..", "..", "..", "migrations", "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files, "migrations not found")
	sort.Strings(files)

	for _, file := range files {
		stmt, err := os.ReadFile(file)
		require.NoError(t, err)
		_, err = db.Exec(string(stmt))
		require.NoError(t, err, "Failed to apply %s", filepath.Base(file))
	}

	return db
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func stateRule(channel, entity, from, to string) *models.WatchRule {
	return &models.WatchRule{
		UserID:    "user-1",
		ChannelID: channel,
		EntityID:  entity,
		RuleType:  models.RuleTypeStateChange,
		FromState: models.StringPtr(from),
		ToState:   models.StringPtr(to),
	}
}

func TestWatchRepository_AddAndList(t *testing.T) {
	repo := NewWatchRepository(setupTestDB(t), testLogger())
	ctx := context.Background()

	first := stateRule("chan-1", "binary_sensor.door", "off", "on")
	first.Message = models.StringPtr("{display_name} opened")
	id1, err := repo.Add(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, id1, first.ID)

	id2, err := repo.Add(ctx, stateRule("chan-1", "sensor.washer", "any", "Idle"))
	require.NoError(t, err)
	id3, err := repo.Add(ctx, stateRule("chan-2", "binary_sensor.door", "any", "any"))
	require.NoError(t, err)
	assert.Less(t, id1, id2)
	assert.Less(t, id2, id3)

	byChannel, err := repo.ListByChannel(ctx, "chan-1")
	require.NoError(t, err)
	require.Len(t, byChannel, 2)
	assert.Equal(t, id1, byChannel[0].ID)
	assert.Equal(t, "{display_name} opened", models.StringValue(byChannel[0].Message))
	assert.Nil(t, byChannel[0].Operator)
	assert.Nil(t, byChannel[0].Threshold)
	assert.Equal(t, id2, byChannel[1].ID)

	byEntity, err := repo.ListByEntity(ctx, "binary_sensor.door")
	require.NoError(t, err)
	require.Len(t, byEntity, 2)
	assert.Equal(t, "chan-1", byEntity[0].ChannelID)
	assert.Equal(t, "chan-2", byEntity[1].ChannelID)

	none, err := repo.ListByEntity(ctx, "light.unknown")
	require.NoError(t, err)
	assert.Empty(t, none)

	ids, err := repo.DistinctEntityIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"binary_sensor.door", "sensor.washer"}, ids)
}

func TestWatchRepository_ExistsIsNullAware(t *testing.T) {
	repo := NewWatchRepository(setupTestDB(t), testLogger())
	ctx := context.Background()

	_, err := repo.Add(ctx, &models.WatchRule{
		UserID:    "user-1",
		ChannelID: "chan-1",
		EntityID:  "sensor.temperature",
		RuleType:  models.RuleTypeThreshold,
		FromState: models.StringPtr("any"),
		ToState:   models.StringPtr("any"),
		Operator:  models.StringPtr(">="),
		Threshold: models.StringPtr("37"),
	})
	require.NoError(t, err)

	tests := []struct {
		name  string
		query repositories.WatchQuery
		want  bool
	}{
		{
			name: "identical",
			query: repositories.WatchQuery{ChannelID: "chan-1", EntityID: "sensor.temperature",
				FromState: models.StringPtr("any"), ToState: models.StringPtr("any"),
				Operator: models.StringPtr(">="), Threshold: models.StringPtr("37")},
			want: true,
		},
		{
			name: "null operator does not match stored operator",
			query: repositories.WatchQuery{ChannelID: "chan-1", EntityID: "sensor.temperature",
				FromState: models.StringPtr("any"), ToState: models.StringPtr("any"),
				Threshold: models.StringPtr("37")},
			want: false,
		},
		{
			name: "different threshold",
			query: repositories.WatchQuery{ChannelID: "chan-1", EntityID: "sensor.temperature",
				FromState: models.StringPtr("any"), ToState: models.StringPtr("any"),
				Operator: models.StringPtr(">="), Threshold: models.StringPtr("38")},
			want: false,
		},
		{
			name: "other channel",
			query: repositories.WatchQuery{ChannelID: "chan-2", EntityID: "sensor.temperature",
				FromState: models.StringPtr("any"), ToState: models.StringPtr("any"),
				Operator: models.StringPtr(">="), Threshold: models.StringPtr("37")},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.Exists(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWatchRepository_DuplicateRejected(t *testing.T) {
	repo := NewWatchRepository(setupTestDB(t), testLogger())
	ctx := context.Background()

	anyRule := func(message string) *models.WatchRule {
		return &models.WatchRule{
			UserID:    "user-1",
			ChannelID: "chan-1",
			EntityID:  "switch.kettle",
			RuleType:  models.RuleTypeAny,
			FromState: models.StringPtr("any"),
			ToState:   models.StringPtr("any"),
			Message:   models.StringPtr(message),
		}
	}

	_, err := repo.Add(ctx, anyRule("first"))
	require.NoError(t, err)

	exists, err := repo.Exists(ctx, repositories.WatchQuery{
		ChannelID: "chan-1", EntityID: "switch.kettle",
		FromState: models.StringPtr("any"), ToState: models.StringPtr("any"),
	})
	require.NoError(t, err)
	assert.True(t, exists, "a rule differing only in message is a duplicate")

	// Even without the exists check, NULL operator/threshold columns must not slip past the constraint.
	_, err = repo.Add(ctx, anyRule("second"))
	assert.ErrorIs(t, err, repositories.ErrDuplicateWatch)

	rules, err := repo.ListByChannel(ctx, "chan-1")
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestWatchRepository_Remove(t *testing.T) {
	repo := NewWatchRepository(setupTestDB(t), testLogger())
	ctx := context.Background()

	keep, err := repo.Add(ctx, stateRule("chan-1", "lock.front", "locked", "unlocked"))
	require.NoError(t, err)
	drop, err := repo.Add(ctx, stateRule("chan-1", "lock.front", "unlocked", "locked"))
	require.NoError(t, err)

	removed, err := repo.Remove(ctx, 9999)
	require.NoError(t, err)
	assert.False(t, removed, "deleting a missing id reports not found")

	removed, err = repo.Remove(ctx, drop)
	require.NoError(t, err)
	assert.True(t, removed)

	rules, err := repo.ListByChannel(ctx, "chan-1")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, keep, rules[0].ID)

	removed, err = repo.Remove(ctx, drop)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestWatchRepository_NullRuleTypeReadsAsAny(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWatchRepository(db, testLogger())
	ctx := context.Background()

	_, err := db.Exec(`INSERT INTO watched_entities (user_id, entity_id, channel_id) VALUES ('u', 'fan.attic', 'c')`)
	require.NoError(t, err)

	rules, err := repo.ListByEntity(ctx, "fan.attic")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "", rules[0].RuleType)
	assert.Equal(t, models.RuleTypeAny, rules[0].EffectiveRuleType())
	assert.Nil(t, rules[0].FromState)
}

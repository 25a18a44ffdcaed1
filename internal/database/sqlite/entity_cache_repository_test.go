package sqlite

import (
	"context"
	"testing"

	"github.com/frostdev-ops/pma-watch-bridge/internal/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityCacheRepository_GetMissing(t *testing.T) {
	repo := NewEntityCacheRepository(setupTestDB(t), testLogger())

	detail, err := repo.Get(context.Background(), "sensor.none")
	require.NoError(t, err)
	assert.Nil(t, detail)
}

func TestEntityCacheRepository_PutUpserts(t *testing.T) {
	repo := NewEntityCacheRepository(setupTestDB(t), testLogger())
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "binary_sensor.door", models.EntityDetail{
		FriendlyName: models.StringPtr("Front Door"),
		Icon:         models.StringPtr("mdi:door"),
		State:        models.StringPtr("off"),
		DeviceClass:  models.StringPtr("door"),
	}))

	detail, err := repo.Get(ctx, "binary_sensor.door")
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, "Front Door", models.StringValue(detail.FriendlyName))
	assert.Equal(t, "door", models.StringValue(detail.DeviceClass))

	require.NoError(t, repo.Put(ctx, "binary_sensor.door", models.EntityDetail{
		FriendlyName: models.StringPtr("Back Door"),
		State:        models.StringPtr("on"),
	}))

	detail, err = repo.Get(ctx, "binary_sensor.door")
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, "Back Door", models.StringValue(detail.FriendlyName))
	assert.Equal(t, "on", models.StringValue(detail.State))
	assert.Nil(t, detail.Icon, "upsert replaces the whole row")
	assert.Nil(t, detail.DeviceClass)
}

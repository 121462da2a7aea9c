package database

import (
	"context"
	"testing"

	"studyhub/internal/config"
	"studyhub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openMemory(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func TestConfigurePool_SQLiteUsesSingleConnection(t *testing.T) {
	db := openMemory(t)

	err := configurePool(db, &config.Config{
		DBDriver:                 "sqlite",
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           5,
		DBConnMaxLifetimeMinutes: 15,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestPersistentModels_IncludesForumGraph(t *testing.T) {
	var sawReplyLike, sawMembership bool
	for _, model := range PersistentModels() {
		switch model.(type) {
		case *models.ReplyLike:
			sawReplyLike = true
		case *models.Membership:
			sawMembership = true
		}
	}
	assert.True(t, sawReplyLike, "PersistentModels should include ReplyLike")
	assert.True(t, sawMembership, "PersistentModels should include Membership")
}

func TestMigrateAndSchemaStatus(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()

	before, err := SchemaStatus(ctx, db)
	require.NoError(t, err)
	for _, s := range before {
		assert.False(t, s.Exists, s.Table)
	}

	require.NoError(t, Migrate(ctx, db))

	after, err := SchemaStatus(ctx, db)
	require.NoError(t, err)
	require.Len(t, after, len(PersistentModels()))
	for _, s := range after {
		assert.True(t, s.Exists, s.Table)
	}
}

package database

import (
	"context"
	"fmt"
	"log/slog"

	"studyhub/internal/models"
	"studyhub/internal/observability"

	"gorm.io/gorm"
)

// PersistentModels returns the authoritative set of schema-managed GORM models.
// Order follows foreign key dependencies.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Group{},
		&models.Membership{},
		&models.Resource{},
		&models.Syllabus{},
		&models.Topic{},
		&models.SubTopic{},
		&models.Forum{},
		&models.Thread{},
		&models.Reply{},
		&models.ReplyLike{},
	}
}

// Migrate applies GORM AutoMigrate for every persistent model.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(PersistentModels()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// TableStatus reports whether a model's table exists.
type TableStatus struct {
	Table  string
	Exists bool
}

// SchemaStatus lists every persistent model with its table presence.
func SchemaStatus(ctx context.Context, db *gorm.DB) ([]TableStatus, error) {
	migrator := db.WithContext(ctx).Migrator()
	statuses := make([]TableStatus, 0, len(PersistentModels()))
	for _, model := range PersistentModels() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			return nil, fmt.Errorf("parse model: %w", err)
		}
		exists := migrator.HasTable(model)
		if !exists {
			observability.Logger.WarnContext(ctx, "table missing", slog.String("table", stmt.Schema.Table))
		}
		statuses = append(statuses, TableStatus{Table: stmt.Schema.Table, Exists: exists})
	}
	return statuses, nil
}

package database

import (
	"fmt"
	"log"

	"gorm.io/gorm"
)

// AddIndexes adds the lookup indexes the cascade walk relies on.
func AddIndexes(db *gorm.DB) error {
	indexes := []struct {
		table   string
		name    string
		columns string
	}{
		// Join rows are resolved from either side during cascades
		{"task_users", "idx_task_users_user_id", "user_id"},
		{"task_projects", "idx_task_projects_project_id", "project_id"},
		{"project_users", "idx_project_users_user_id", "user_id"},
		{"comment_recipients", "idx_comment_recipients_user_id", "user_id"},
		{"notification_recipients", "idx_notification_recipients_user_id", "user_id"},
		{"task_durations", "idx_task_durations_user_id", "user_id"},

		// Calendar day lookups
		{"tasks", "idx_tasks_parent_due", "parent_id, due_date"},
	}

	for _, idx := range indexes {
		if db.Migrator().HasIndex(idx.table, idx.name) {
			continue
		}

		sql := fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx.name, idx.table, idx.columns)
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}

		log.Printf("Created index %s on %s(%s)", idx.name, idx.table, idx.columns)
	}

	return nil
}

// MigrateDatabase runs all database migrations
func MigrateDatabase(db *gorm.DB) error {
	if err := AutoMigrate(db); err != nil {
		return err
	}

	if err := AddIndexes(db); err != nil {
		return fmt.Errorf("failed to add indexes: %w", err)
	}

	return nil
}

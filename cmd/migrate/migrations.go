package main

import (
	"gorm.io/gorm"

	"github.com/pressdeck/engine/internal/models"
)

// registerModels returns all models that need migration.
func registerModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Credential{},
		&models.Server{},
		&models.Deployment{},
		&models.ReconcileTask{},
	}
}

func runMigrations(db *gorm.DB) error {
	if err := enableUUIDExtension(db); err != nil {
		return err
	}
	if err := db.AutoMigrate(registerModels()...); err != nil {
		return err
	}
	return runCustomMigrations(db)
}

// runCustomMigrations handles schema changes AutoMigrate can't handle.
func runCustomMigrations(db *gorm.DB) error {
	migrations := []func(*gorm.DB) error{
		addTaskRetryIndex,
	}
	for _, migration := range migrations {
		if err := migration(db); err != nil {
			return err
		}
	}
	return nil
}

// enableUUIDExtension ensures UUID generation is available.
func enableUUIDExtension(db *gorm.DB) error {
	return db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error
}

// addTaskRetryIndex speeds up the scheduled-task sweep.
func addTaskRetryIndex(db *gorm.DB) error {
	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_reconcile_tasks_state_retry
		ON reconcile_tasks(state, next_retry_at)
	`).Error
}

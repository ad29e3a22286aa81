package bootstrap

import (
	"fmt"

	"gorm.io/gorm"

	"quickedit/internal/models"
)

// Migrate ensures the audit and trigger tables exist.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	return nil
}

func allModels() []interface{} {
	return []interface{}{
		// Run audit
		&models.SyncRun{},
		&models.SyncRunUpdate{},
		// Scheduler snapshot
		&models.ScheduledTrigger{},
	}
}

package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/mredag/eformLockerRoom-sub012/internal/models"
)

// Migrate creates or updates all coordination-layer tables. Production
// installations run versioned migrations externally; this keeps development
// and test databases in shape.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if err := conn.AutoMigrate(
		&models.Locker{},
		&models.Command{},
		&models.Event{},
		&models.KioskHeartbeat{},
		&models.VipContract{},
		&models.VipContractHistory{},
		&models.VipTransferRequest{},
	); err != nil {
		return fmt.Errorf("db: migrate: %w", err)
	}
	return nil
}

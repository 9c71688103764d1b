package cli

import (
	"github.com/spf13/cobra"

	log "github.com/sirupsen/logrus"

	"github.com/mredag/eformLockerRoom-sub012/internal/db"
)

// NewMigrateCommand creates or updates the database schema.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the coordination tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			conn, err := db.Open(cfg.Database.DSN)
			if err != nil {
				return err
			}
			if err := db.Migrate(conn); err != nil {
				return err
			}
			log.Info("migration complete")
			return nil
		},
	}
}

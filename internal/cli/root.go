package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/mredag/eformLockerRoom-sub012/internal/config"
	"github.com/mredag/eformLockerRoom-sub012/internal/db"
	"github.com/mredag/eformLockerRoom-sub012/internal/logging"
	"github.com/mredag/eformLockerRoom-sub012/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand creates the root command for lockerd.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "lockerd",
		Short: "Locker fleet coordination daemon",
		Long:  "Storage and coordination engine for a fleet of locker kiosks: locker state, command queue, liveness registry, and audit trail.",
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "config.yaml", "path to the configuration file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewCleanupCommand(opts))

	return cmd
}

// loadConfig loads the config file and applies the verbosity flag.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	logging.Setup(cfg.Log)
	return cfg, nil
}

// openStore opens the database and wires the store root.
func openStore(cfg *config.Config) (*store.Store, *gorm.DB, error) {
	conn, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return store.New(conn), conn, nil
}

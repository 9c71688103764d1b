package cli

import (
	"github.com/spf13/cobra"

	log "github.com/sirupsen/logrus"
)

// NewCleanupCommand runs the retention purges once and reports counts.
func NewCleanupCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Purge commands, events, and VIP history past retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			st, _, err := openStore(cfg)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			commands, err := st.Commands.CleanupOld(ctx, cfg.Sweep.CommandRetentionDays)
			if err != nil {
				return err
			}
			events, err := st.Events.CleanupOld(ctx, cfg.Sweep.EventRetentionDays)
			if err != nil {
				return err
			}
			history, err := st.Contracts.CleanupHistory(ctx, cfg.Sweep.HistoryRetentionDays)
			if err != nil {
				return err
			}

			log.Infof("cleanup removed %d commands, %d events, %d history rows", commands, events, history)
			return nil
		},
	}
}

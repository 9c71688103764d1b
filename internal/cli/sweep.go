package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	log "github.com/sirupsen/logrus"

	"github.com/mredag/eformLockerRoom-sub012/internal/sweeper"
)

// NewSweepCommand runs the periodic maintenance sweeps until interrupted.
func NewSweepCommand(opts *RootOptions) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the maintenance sweeps (reservation expiry, offline kiosks, contract expiry, retention)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			st, _, err := openStore(cfg)
			if err != nil {
				return err
			}

			sw := sweeper.New(st, cfg.Sweep)
			if once {
				sw.SweepOnce(cmd.Context())
				return nil
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			sw.Start(ctx)
			<-ctx.Done()
			log.Info("sweeper stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single sweep pass and exit")
	return cmd
}

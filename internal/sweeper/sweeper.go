// Package sweeper drives the periodic maintenance passes of the
// coordination layer: reclaiming expired reservations, flipping silent
// kiosks offline, expiring VIP contracts, and purging records past
// retention.
package sweeper

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mredag/eformLockerRoom-sub012/internal/config"
	"github.com/mredag/eformLockerRoom-sub012/internal/db"
	"github.com/mredag/eformLockerRoom-sub012/internal/store"
)

// Sweeper periodically runs every maintenance sweep against one Store.
type Sweeper struct {
	store    *store.Store
	interval time.Duration
	cfg      config.SweepConfig
}

// New creates a sweeper from the sweep configuration.
func New(st *store.Store, cfg config.SweepConfig) *Sweeper {
	if st == nil {
		return nil
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{store: st, interval: interval, cfg: cfg}
}

// Start launches the sweep loop in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	if s == nil {
		return
	}
	go s.run(ctx)
	log.Infof("sweeper started (interval=%s)", s.interval)
}

func (s *Sweeper) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		s.SweepOnce(ctx)
		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

// SweepOnce runs every sweep one time. Individual sweep failures are logged
// and do not stop the remaining sweeps; zero affected rows is silent.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	s.sweep(ctx, "expired reservations", func() (int64, error) {
		return s.store.Lockers.CleanupExpiredReservations(ctx, s.cfg.ReservationTimeout)
	})
	s.sweep(ctx, "offline kiosks", func() (int64, error) {
		return s.store.Kiosks.MarkOffline(ctx)
	})
	s.sweep(ctx, "expired vip contracts", func() (int64, error) {
		return s.store.Contracts.MarkExpired(ctx)
	})
	s.sweep(ctx, "old commands", func() (int64, error) {
		return s.store.Commands.CleanupOld(ctx, s.cfg.CommandRetentionDays)
	})
	s.sweep(ctx, "old events", func() (int64, error) {
		return s.store.Events.CleanupOld(ctx, s.cfg.EventRetentionDays)
	})
	s.sweep(ctx, "old vip history", func() (int64, error) {
		return s.store.Contracts.CleanupHistory(ctx, s.cfg.HistoryRetentionDays)
	})
}

func (s *Sweeper) sweep(ctx context.Context, name string, fn func() (int64, error)) {
	var affected int64
	err := db.WithRetry(ctx, name, db.DefaultRetryAttempts, db.DefaultRetryBackoff, func() error {
		var errSweep error
		affected, errSweep = fn()
		return errSweep
	})
	if err != nil {
		log.WithError(err).Warnf("sweeper: %s sweep failed", name)
		return
	}
	if affected > 0 {
		log.Infof("sweeper: %s sweep affected %d rows", name, affected)
	}
}

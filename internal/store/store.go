// Package store implements the persistence and concurrency coordination
// layer for the locker fleet: the locker state machine, the per-kiosk
// command queue, the heartbeat registry, the append-only audit log, and the
// VIP contract lifecycle.
//
// All cross-writer safety comes from optimistic version counters and from
// folding sweeps into single conditional statements; no in-process locks are
// held around database access.
package store

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"
)

// Store is the composition root. One Store wraps one database handle and
// exposes every repository; construct it once at process start and inject it
// wherever persistence is needed.
type Store struct {
	conn *gorm.DB
	now  func() time.Time

	Lockers   *LockerStore
	Commands  *CommandStore
	Kiosks    *KioskRegistry
	Events    *EventStore
	Contracts *VipContractStore
	Transfers *TransferStore

	// statsCache fronts the aggregation queries behind fleet dashboards.
	statsCache *gocache.Cache
}

// New creates a Store on top of an open connection.
func New(conn *gorm.DB) *Store {
	s := &Store{
		conn:       conn,
		now:        func() time.Time { return time.Now().UTC() },
		statsCache: gocache.New(statsCacheTTL, 2*statsCacheTTL),
	}
	s.wire()
	return s
}

const statsCacheTTL = 5 * time.Second

func (s *Store) wire() {
	s.Lockers = &LockerStore{store: s}
	s.Commands = &CommandStore{store: s}
	s.Kiosks = &KioskRegistry{store: s}
	s.Events = &EventStore{store: s}
	s.Contracts = &VipContractStore{store: s}
	s.Transfers = &TransferStore{store: s}
}

// WithTransaction runs fn against a transaction-scoped Store. All repository
// calls made through the argument share one transaction; any error rolls the
// whole batch back.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(s.scoped(tx))
	})
}

// scoped returns a Store bound to the given handle, sharing the clock and
// caches of the parent.
func (s *Store) scoped(tx *gorm.DB) *Store {
	scoped := &Store{conn: tx, now: s.now, statsCache: s.statsCache}
	scoped.wire()
	return scoped
}

func (s *Store) db(ctx context.Context) *gorm.DB {
	return s.conn.WithContext(ctx)
}

// casUpdate is the compare-and-swap helper shared by every versioned
// repository. It executes one conditional UPDATE matching identity and
// expected version; when zero rows are affected it re-reads the row to
// distinguish a missing entity from a stale version.
//
// updates must already contain the version increment and timestamp bump.
func (s *Store) casUpdate(ctx context.Context, entity, id string, model any, ident map[string]any, expectedVersion int64, updates map[string]any) error {
	res := s.db(ctx).Model(model).
		Where(ident).
		Where("version = ?", expectedVersion).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("store: update %s %s: %w", entity, id, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var versions []int64
	if err := s.db(ctx).Model(model).Where(ident).Limit(1).Pluck("version", &versions).Error; err != nil {
		return fmt.Errorf("store: reread %s %s: %w", entity, id, err)
	}
	if len(versions) == 0 {
		return notFound(entity, id)
	}
	return &OptimisticLockError{
		Entity:          entity,
		ID:              id,
		ExpectedVersion: expectedVersion,
		ActualVersion:   versions[0],
	}
}

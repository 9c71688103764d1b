package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mredag/eformLockerRoom-sub012/internal/config"
	"github.com/mredag/eformLockerRoom-sub012/internal/db"
	"github.com/mredag/eformLockerRoom-sub012/internal/models"
	"github.com/mredag/eformLockerRoom-sub012/internal/store"
)

func newTestEnv(t *testing.T) (*gorm.DB, *store.Store) {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Migrate(conn))
	return conn, store.New(conn)
}

func TestSweepOnceReclaimsEverything(t *testing.T) {
	conn, st := newTestEnv(t)
	ctx := context.Background()

	// A reservation that timed out five minutes ago.
	locker := &models.Locker{KioskID: "kiosk-1", ID: 1}
	require.NoError(t, st.Lockers.Create(ctx, locker))
	stale := time.Now().UTC().Add(-5 * time.Minute)
	reserved := models.LockerReserved
	rfid := models.OwnerRfid
	card := "card-1"
	_, err := st.Lockers.Update(ctx, "kiosk-1", 1, store.LockerUpdate{
		Status:     &reserved,
		OwnerType:  &rfid,
		OwnerKey:   &card,
		ReservedAt: &stale,
	}, 1)
	require.NoError(t, err)

	// A kiosk silent past its threshold.
	_, err = st.Kiosks.Register(ctx, "kiosk-1", "zone-a", "1.0.0", nil, nil)
	require.NoError(t, err)
	require.NoError(t, conn.Model(&models.KioskHeartbeat{}).
		Where("kiosk_id = ?", "kiosk-1").
		Update("last_seen", time.Now().UTC().Add(-time.Minute)).Error)

	// A contract whose lease ended yesterday.
	contract := &models.VipContract{
		KioskID:   "kiosk-1",
		LockerID:  2,
		RfidCard:  "card-vip",
		StartDate: time.Now().UTC().AddDate(0, -6, 0),
		EndDate:   time.Now().UTC().AddDate(0, 0, -1),
		CreatedBy: "alice",
	}
	require.NoError(t, st.Contracts.Create(ctx, contract))

	cfg := config.Default().Sweep
	New(st, cfg).SweepOnce(ctx)

	reclaimed, err := st.Lockers.FindByKioskAndID(ctx, "kiosk-1", 1)
	require.NoError(t, err)
	assert.Equal(t, models.LockerFree, reclaimed.Status)
	assert.Nil(t, reclaimed.OwnerKey)

	hb, err := st.Kiosks.Get(ctx, "kiosk-1")
	require.NoError(t, err)
	assert.Equal(t, models.KioskOffline, hb.Status)

	expired, err := st.Contracts.GetByID(ctx, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContractExpired, expired.Status)

	// A second pass finds nothing left to do.
	New(st, cfg).SweepOnce(ctx)
	again, err := st.Lockers.FindByKioskAndID(ctx, "kiosk-1", 1)
	require.NoError(t, err)
	assert.Equal(t, reclaimed.Version, again.Version)
}

func TestStartStopsOnContextCancel(t *testing.T) {
	_, st := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	s := New(st, config.Default().Sweep)
	s.Start(ctx)
	cancel()

	// The loop must exit without panicking once the context is gone; give the
	// goroutine a moment to observe the cancellation.
	time.Sleep(50 * time.Millisecond)
}

func TestNewNilStore(t *testing.T) {
	assert.Nil(t, New(nil, config.SweepConfig{}))
}

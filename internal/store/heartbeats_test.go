package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mredag/eformLockerRoom-sub012/internal/models"
)

func TestRegisterIsUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	hb, err := s.Kiosks.Register(ctx, "kiosk-1", "zone-a", "1.0.0", strPtr("hw-1"), nil)
	require.NoError(t, err)
	assert.Equal(t, models.KioskOnline, hb.Status)
	assert.Equal(t, models.DefaultOfflineThresholdSeconds, hb.OfflineThresholdSeconds)

	// Re-registration after a firmware reset updates instead of conflicting.
	hb, err = s.Kiosks.Register(ctx, "kiosk-1", "zone-b", "1.1.0", strPtr("hw-1"), nil)
	require.NoError(t, err)
	assert.Equal(t, "zone-b", hb.Zone)
	assert.Equal(t, "1.1.0", hb.Version)

	kiosks, err := s.Kiosks.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, kiosks, 1)
}

func TestHeartbeatRequiresRegistration(t *testing.T) {
	s := newTestStore(t)

	err := s.Kiosks.UpdateHeartbeat(context.Background(), "ghost", nil, nil)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "kiosk", nf.Entity)
}

func TestOfflineSweepHonorsPerKioskThreshold(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := freezeNow(s)

	_, err := s.Kiosks.Register(ctx, "stale", "zone-a", "1.0.0", nil, nil)
	require.NoError(t, err)
	_, err = s.Kiosks.Register(ctx, "fresh", "zone-a", "1.0.0", nil, nil)
	require.NoError(t, err)
	_, err = s.Kiosks.Register(ctx, "patient", "zone-b", "1.0.0", nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Kiosks.SetOfflineThreshold(ctx, "patient", 120))

	// stale: 31s silent with a 30s threshold. fresh: 29s. patient: 60s with
	// a 120s threshold.
	require.NoError(t, s.conn.Model(&models.KioskHeartbeat{}).
		Where("kiosk_id = ?", "stale").Update("last_seen", base.Add(-31*time.Second)).Error)
	require.NoError(t, s.conn.Model(&models.KioskHeartbeat{}).
		Where("kiosk_id = ?", "fresh").Update("last_seen", base.Add(-29*time.Second)).Error)
	require.NoError(t, s.conn.Model(&models.KioskHeartbeat{}).
		Where("kiosk_id = ?", "patient").Update("last_seen", base.Add(-60*time.Second)).Error)

	flipped, err := s.Kiosks.MarkOffline(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), flipped)

	for kiosk, want := range map[string]models.KioskStatus{
		"stale":   models.KioskOffline,
		"fresh":   models.KioskOnline,
		"patient": models.KioskOnline,
	} {
		hb, err := s.Kiosks.Get(ctx, kiosk)
		require.NoError(t, err)
		assert.Equal(t, want, hb.Status, kiosk)
	}

	// Re-running the sweep with no new silence touches nothing.
	flipped, err = s.Kiosks.MarkOffline(ctx)
	require.NoError(t, err)
	assert.Zero(t, flipped)
}

func TestRegisterSweepHeartbeatScenario(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// t=0: register K1 in zone A with the default 30s threshold.
	base := freezeNow(s)
	_, err := s.Kiosks.Register(ctx, "K1", "A", "1.0.0", nil, nil)
	require.NoError(t, err)

	// t=31: the sweep flips K1 offline.
	advanceNow(s, base, 31*time.Second)
	flipped, err := s.Kiosks.MarkOffline(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), flipped)
	hb, err := s.Kiosks.Get(ctx, "K1")
	require.NoError(t, err)
	assert.Equal(t, models.KioskOffline, hb.Status)

	// t=32: a heartbeat brings it back online.
	advanceNow(s, base, 32*time.Second)
	require.NoError(t, s.Kiosks.UpdateHeartbeat(ctx, "K1", strPtr("1.0.1"), strPtr("cfg-hash")))
	hb, err = s.Kiosks.Get(ctx, "K1")
	require.NoError(t, err)
	assert.Equal(t, models.KioskOnline, hb.Status)
	assert.Equal(t, "1.0.1", hb.Version)
	require.NotNil(t, hb.LastConfigHash)
	assert.Equal(t, "cfg-hash", *hb.LastConfigHash)
}

func TestUpdateStatusOnlyManualStates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Kiosks.Register(ctx, "kiosk-1", "zone-a", "1.0.0", nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.Kiosks.UpdateStatus(ctx, "kiosk-1", models.KioskMaintenance))
	hb, err := s.Kiosks.Get(ctx, "kiosk-1")
	require.NoError(t, err)
	assert.Equal(t, models.KioskMaintenance, hb.Status)

	var vErr *ValidationError
	require.ErrorAs(t, s.Kiosks.UpdateStatus(ctx, "kiosk-1", models.KioskOnline), &vErr)
}

func TestFleetStatistics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Kiosks.Register(ctx, "kiosk-1", "zone-a", "1.0.0", nil, nil)
	require.NoError(t, err)
	_, err = s.Kiosks.Register(ctx, "kiosk-2", "zone-a", "1.1.0", nil, nil)
	require.NoError(t, err)
	_, err = s.Kiosks.Register(ctx, "kiosk-3", "zone-b", "1.1.0", nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Kiosks.UpdateStatus(ctx, "kiosk-3", models.KioskError))

	stats, err := s.Kiosks.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.ByStatus[models.KioskOnline])
	assert.Equal(t, int64(1), stats.ByStatus[models.KioskError])
	assert.Equal(t, int64(2), stats.ByZone["zone-a"])
	assert.Equal(t, int64(2), stats.ByVersion["1.1.0"])

	// A second read inside the cache window sees the same snapshot.
	again, err := s.Kiosks.Statistics(ctx)
	require.NoError(t, err)
	assert.Same(t, stats, again)
}

func TestDeleteKioskGuardedByActiveContracts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Kiosks.Register(ctx, "kiosk-1", "zone-a", "1.0.0", nil, nil)
	require.NoError(t, err)

	contract := &models.VipContract{
		KioskID:   "kiosk-1",
		LockerID:  1,
		RfidCard:  "card-1",
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		CreatedBy: "alice",
	}
	require.NoError(t, s.Contracts.Create(ctx, contract))

	var vErr *ValidationError
	require.ErrorAs(t, s.Kiosks.Delete(ctx, "kiosk-1"), &vErr)

	_, err = s.Contracts.Cancel(ctx, contract.ID, "alice", nil, 1)
	require.NoError(t, err)
	require.NoError(t, s.Kiosks.Delete(ctx, "kiosk-1"))

	_, err = s.Kiosks.Get(ctx, "kiosk-1")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mredag/eformLockerRoom-sub012/internal/models"
)

func mkLocker(t *testing.T, s *Store, kioskID string, id int) *models.Locker {
	t.Helper()
	locker := &models.Locker{KioskID: kioskID, ID: id, DisplayName: "Locker"}
	require.NoError(t, s.Lockers.Create(context.Background(), locker))
	return locker
}

func statusPtr(st models.LockerStatus) *models.LockerStatus { return &st }
func ownerPtr(ot models.OwnerType) *models.OwnerType        { return &ot }
func strPtr(v string) *string                               { return &v }
func boolPtr(v bool) *bool                                  { return &v }

func TestLockerVersionMonotonicity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mkLocker(t, s, "kiosk-1", 1)

	got, err := s.Lockers.FindByKioskAndID(ctx, "kiosk-1", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, models.LockerFree, got.Status)

	updated, err := s.Lockers.Update(ctx, "kiosk-1", 1, LockerUpdate{
		Status:    statusPtr(models.LockerOwned),
		OwnerType: ownerPtr(models.OwnerRfid),
		OwnerKey:  strPtr("card-42"),
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, models.LockerOwned, updated.Status)
	require.NotNil(t, updated.OwnerKey)
	assert.Equal(t, "card-42", *updated.OwnerKey)

	updated, err = s.Lockers.Update(ctx, "kiosk-1", 1, LockerUpdate{
		Status:     statusPtr(models.LockerFree),
		ClearOwner: true,
	}, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated.Version)
	assert.Nil(t, updated.OwnerType)
	assert.Nil(t, updated.OwnerKey)
}

func TestLockerStaleVersionNeverMutates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mkLocker(t, s, "kiosk-1", 3)

	_, err := s.Lockers.Update(ctx, "kiosk-1", 3, LockerUpdate{Status: statusPtr(models.LockerBlocked)}, 1)
	require.NoError(t, err)

	// A writer still holding version 1 must lose without touching the row.
	_, err = s.Lockers.Update(ctx, "kiosk-1", 3, LockerUpdate{Status: statusPtr(models.LockerFree)}, 1)
	var lockErr *OptimisticLockError
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, "locker", lockErr.Entity)
	assert.Equal(t, "kiosk-1/3", lockErr.ID)
	assert.Equal(t, int64(1), lockErr.ExpectedVersion)
	assert.Equal(t, int64(2), lockErr.ActualVersion)

	got, err := s.Lockers.FindByKioskAndID(ctx, "kiosk-1", 3)
	require.NoError(t, err)
	assert.Equal(t, models.LockerBlocked, got.Status)
	assert.Equal(t, int64(2), got.Version)
}

func TestLockerUpdateMissingEntity(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Lockers.Update(context.Background(), "kiosk-9", 99, LockerUpdate{Status: statusPtr(models.LockerFree)}, 1)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "locker", nf.Entity)
}

func TestLockerUpdateValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mkLocker(t, s, "kiosk-1", 1)

	var vErr *ValidationError

	_, err := s.Lockers.Update(ctx, "kiosk-1", 1, LockerUpdate{}, 1)
	require.ErrorAs(t, err, &vErr)

	_, err = s.Lockers.Update(ctx, "kiosk-1", 1, LockerUpdate{OwnerKey: strPtr("card-1")}, 1)
	require.ErrorAs(t, err, &vErr)

	_, err = s.Lockers.Update(ctx, "kiosk-1", 1, LockerUpdate{
		ClearOwner: true,
		OwnerType:  ownerPtr(models.OwnerRfid),
		OwnerKey:   strPtr("card-1"),
	}, 1)
	require.ErrorAs(t, err, &vErr)
}

func TestCleanupExpiredReservationsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := freezeNow(s)

	mkLocker(t, s, "kiosk-1", 1)
	mkLocker(t, s, "kiosk-1", 2)

	stale := base.Add(-2 * time.Minute)
	fresh := base.Add(-10 * time.Second)
	_, err := s.Lockers.Update(ctx, "kiosk-1", 1, LockerUpdate{
		Status:     statusPtr(models.LockerReserved),
		OwnerType:  ownerPtr(models.OwnerRfid),
		OwnerKey:   strPtr("card-1"),
		ReservedAt: &stale,
	}, 1)
	require.NoError(t, err)
	_, err = s.Lockers.Update(ctx, "kiosk-1", 2, LockerUpdate{
		Status:     statusPtr(models.LockerReserved),
		OwnerType:  ownerPtr(models.OwnerRfid),
		OwnerKey:   strPtr("card-2"),
		ReservedAt: &fresh,
	}, 1)
	require.NoError(t, err)

	affected, err := s.Lockers.CleanupExpiredReservations(ctx, 90*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	reclaimed, err := s.Lockers.FindByKioskAndID(ctx, "kiosk-1", 1)
	require.NoError(t, err)
	assert.Equal(t, models.LockerFree, reclaimed.Status)
	assert.Nil(t, reclaimed.OwnerType)
	assert.Nil(t, reclaimed.OwnerKey)
	assert.Nil(t, reclaimed.ReservedAt)
	assert.Equal(t, int64(3), reclaimed.Version)

	kept, err := s.Lockers.FindByKioskAndID(ctx, "kiosk-1", 2)
	require.NoError(t, err)
	assert.Equal(t, models.LockerReserved, kept.Status)

	// Second run with no intervening writes touches zero rows.
	affected, err = s.Lockers.CleanupExpiredReservations(ctx, 90*time.Second)
	require.NoError(t, err)
	assert.Zero(t, affected)
}

func TestLockerDeleteRefusedWhileHeld(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mkLocker(t, s, "kiosk-1", 1)

	_, err := s.Lockers.Update(ctx, "kiosk-1", 1, LockerUpdate{
		Status:    statusPtr(models.LockerOwned),
		OwnerType: ownerPtr(models.OwnerRfid),
		OwnerKey:  strPtr("card-1"),
	}, 1)
	require.NoError(t, err)

	var vErr *ValidationError
	require.ErrorAs(t, s.Lockers.Delete(ctx, "kiosk-1", 1), &vErr)

	_, err = s.Lockers.Update(ctx, "kiosk-1", 1, LockerUpdate{
		Status:     statusPtr(models.LockerFree),
		ClearOwner: true,
	}, 2)
	require.NoError(t, err)
	require.NoError(t, s.Lockers.Delete(ctx, "kiosk-1", 1))

	exists, err := s.Lockers.Exists(ctx, "kiosk-1", 1)
	require.NoError(t, err)
	assert.False(t, exists)

	var nf *NotFoundError
	require.ErrorAs(t, s.Lockers.Delete(ctx, "kiosk-1", 1), &nf)
}

func TestLockerExistsAndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mkLocker(t, s, "kiosk-1", 1)
	mkLocker(t, s, "kiosk-1", 2)
	require.NoError(t, s.Lockers.Create(ctx, &models.Locker{KioskID: "kiosk-2", ID: 1, IsVip: true}))

	exists, err := s.Lockers.Exists(ctx, "kiosk-1", 2)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = s.Lockers.Exists(ctx, "kiosk-1", 9)
	require.NoError(t, err)
	assert.False(t, exists)

	n, err := s.Lockers.Count(ctx, LockerFilter{KioskID: "kiosk-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	n, err = s.Lockers.Count(ctx, LockerFilter{IsVip: boolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestFindAvailableExcludesVipAndNonFree(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mkLocker(t, s, "kiosk-1", 1)
	vip := &models.Locker{KioskID: "kiosk-1", ID: 2, IsVip: true}
	require.NoError(t, s.Lockers.Create(ctx, vip))
	mkLocker(t, s, "kiosk-1", 3)
	_, err := s.Lockers.Update(ctx, "kiosk-1", 3, LockerUpdate{Status: statusPtr(models.LockerBlocked)}, 1)
	require.NoError(t, err)

	available, err := s.Lockers.FindAvailable(ctx, "kiosk-1")
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, 1, available[0].ID)
}

func TestFindByOwnerKeyIncludesReserved(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := freezeNow(s)

	mkLocker(t, s, "kiosk-1", 1)
	mkLocker(t, s, "kiosk-2", 1)
	mkLocker(t, s, "kiosk-2", 2)

	_, err := s.Lockers.Update(ctx, "kiosk-1", 1, LockerUpdate{
		Status:    statusPtr(models.LockerOwned),
		OwnerType: ownerPtr(models.OwnerRfid),
		OwnerKey:  strPtr("card-7"),
		OwnedAt:   &base,
	}, 1)
	require.NoError(t, err)
	_, err = s.Lockers.Update(ctx, "kiosk-2", 1, LockerUpdate{
		Status:     statusPtr(models.LockerReserved),
		OwnerType:  ownerPtr(models.OwnerRfid),
		OwnerKey:   strPtr("card-7"),
		ReservedAt: &base,
	}, 1)
	require.NoError(t, err)

	held, err := s.Lockers.FindByOwnerKey(ctx, "card-7")
	require.NoError(t, err)
	assert.Len(t, held, 2)
}

func TestLockerFilterAndStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mkLocker(t, s, "kiosk-1", 1)
	mkLocker(t, s, "kiosk-1", 2)
	vip := &models.Locker{KioskID: "kiosk-2", ID: 1, IsVip: true}
	require.NoError(t, s.Lockers.Create(ctx, vip))
	_, err := s.Lockers.Update(ctx, "kiosk-1", 2, LockerUpdate{Status: statusPtr(models.LockerBlocked)}, 1)
	require.NoError(t, err)

	blocked, err := s.Lockers.FindAll(ctx, LockerFilter{Status: statusPtr(models.LockerBlocked)})
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	assert.Equal(t, 2, blocked[0].ID)

	vips, err := s.Lockers.FindAll(ctx, LockerFilter{IsVip: boolPtr(true)})
	require.NoError(t, err)
	require.Len(t, vips, 1)

	stats, err := s.Lockers.StatsByKiosk(ctx)
	require.NoError(t, err)
	require.Contains(t, stats, "kiosk-1")
	assert.Equal(t, int64(2), stats["kiosk-1"].Total)
	assert.Equal(t, int64(1), stats["kiosk-1"].ByStatus[models.LockerFree])
	assert.Equal(t, int64(1), stats["kiosk-1"].ByStatus[models.LockerBlocked])
	assert.Equal(t, int64(1), stats["kiosk-2"].Vip)
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mredag/eformLockerRoom-sub012/internal/models"
)

// LockerStore is the resource state machine over the lockers table.
type LockerStore struct {
	store *Store
}

// DefaultReservationTimeout is how long a reservation may sit before the
// expiry sweep reclaims the locker.
const DefaultReservationTimeout = 90 * time.Second

// LockerFilter narrows FindAll results. Zero-valued fields are ignored.
type LockerFilter struct {
	KioskID   string
	Status    *models.LockerStatus
	OwnerType *models.OwnerType
	OwnerKey  *string
	IsVip     *bool
}

// LockerUpdate carries the fields of a versioned update. Nil fields are left
// untouched. ClearOwner nulls both owner columns together so the
// both-set-or-both-null invariant cannot be half-applied.
type LockerUpdate struct {
	Status      *models.LockerStatus
	OwnerType   *models.OwnerType
	OwnerKey    *string
	ClearOwner  bool
	ReservedAt  *time.Time
	OwnedAt     *time.Time
	IsVip       *bool
	DisplayName *string
}

func (u *LockerUpdate) columns() (map[string]any, error) {
	if u.ClearOwner && (u.OwnerType != nil || u.OwnerKey != nil) {
		return nil, validationf("locker update cannot both set and clear owner fields")
	}
	if (u.OwnerType == nil) != (u.OwnerKey == nil) {
		return nil, validationf("locker owner type and owner key must be set together")
	}

	cols := map[string]any{}
	if u.Status != nil {
		cols["status"] = *u.Status
	}
	if u.OwnerType != nil {
		cols["owner_type"] = *u.OwnerType
		cols["owner_key"] = *u.OwnerKey
	}
	if u.ClearOwner {
		cols["owner_type"] = nil
		cols["owner_key"] = nil
	}
	if u.ReservedAt != nil {
		cols["reserved_at"] = *u.ReservedAt
	}
	if u.OwnedAt != nil {
		cols["owned_at"] = *u.OwnedAt
	}
	if u.IsVip != nil {
		cols["is_vip"] = *u.IsVip
	}
	if u.DisplayName != nil {
		cols["display_name"] = *u.DisplayName
	}
	if len(cols) == 0 {
		return nil, validationf("locker update supplies no fields")
	}
	return cols, nil
}

func lockerID(kioskID string, id int) string {
	return fmt.Sprintf("%s/%d", kioskID, id)
}

// FindByKioskAndID returns one locker or NotFoundError.
func (s *LockerStore) FindByKioskAndID(ctx context.Context, kioskID string, id int) (*models.Locker, error) {
	var locker models.Locker
	err := s.store.db(ctx).
		Where("kiosk_id = ? AND id = ?", kioskID, id).
		First(&locker).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("locker", lockerID(kioskID, id))
	}
	if err != nil {
		return nil, fmt.Errorf("store: find locker %s: %w", lockerID(kioskID, id), err)
	}
	return &locker, nil
}

// FindAll returns lockers matching the filter, ordered by kiosk then id.
func (s *LockerStore) FindAll(ctx context.Context, f LockerFilter) ([]models.Locker, error) {
	q := s.store.db(ctx).Model(&models.Locker{})
	if f.KioskID != "" {
		q = q.Where("kiosk_id = ?", f.KioskID)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.OwnerType != nil {
		q = q.Where("owner_type = ?", *f.OwnerType)
	}
	if f.OwnerKey != nil {
		q = q.Where("owner_key = ?", *f.OwnerKey)
	}
	if f.IsVip != nil {
		q = q.Where("is_vip = ?", *f.IsVip)
	}

	var lockers []models.Locker
	if err := q.Order("kiosk_id ASC, id ASC").Find(&lockers).Error; err != nil {
		return nil, fmt.Errorf("store: find lockers: %w", err)
	}
	return lockers, nil
}

// Create inserts a locker during kiosk provisioning. Version starts at 1.
func (s *LockerStore) Create(ctx context.Context, locker *models.Locker) error {
	if locker.KioskID == "" || locker.ID <= 0 {
		return validationf("locker requires kiosk id and a positive locker id")
	}
	if (locker.OwnerType == nil) != (locker.OwnerKey == nil) {
		return validationf("locker owner type and owner key must be set together")
	}
	if locker.Status == "" {
		locker.Status = models.LockerFree
	}
	locker.Version = 1
	locker.UpdatedAt = s.store.now()
	if err := s.store.db(ctx).Create(locker).Error; err != nil {
		return fmt.Errorf("store: create locker %s: %w", lockerID(locker.KioskID, locker.ID), err)
	}
	return nil
}

// Update applies a versioned mutation. The statement matches identity plus
// expectedVersion; on a stale version the caller gets OptimisticLockError
// and the row is untouched.
func (s *LockerStore) Update(ctx context.Context, kioskID string, id int, update LockerUpdate, expectedVersion int64) (*models.Locker, error) {
	cols, err := update.columns()
	if err != nil {
		return nil, err
	}
	cols["version"] = gorm.Expr("version + 1")
	cols["updated_at"] = s.store.now()

	ident := map[string]any{"kiosk_id": kioskID, "id": id}
	if err := s.store.casUpdate(ctx, "locker", lockerID(kioskID, id), &models.Locker{}, ident, expectedVersion, cols); err != nil {
		return nil, err
	}
	return s.FindByKioskAndID(ctx, kioskID, id)
}

// Delete removes a locker during kiosk decommission. Refused while the
// locker is still held: an owned or reserved locker must be released first.
func (s *LockerStore) Delete(ctx context.Context, kioskID string, id int) error {
	res := s.store.db(ctx).
		Where("kiosk_id = ? AND id = ? AND status NOT IN ?", kioskID, id,
			[]models.LockerStatus{models.LockerOwned, models.LockerReserved}).
		Delete(&models.Locker{})
	if res.Error != nil {
		return fmt.Errorf("store: delete locker %s: %w", lockerID(kioskID, id), res.Error)
	}
	if res.RowsAffected == 0 {
		locker, err := s.FindByKioskAndID(ctx, kioskID, id)
		if err != nil {
			return err
		}
		return validationf("locker %s is %s and cannot be deleted", lockerID(kioskID, id), locker.Status)
	}
	return nil
}

// Exists reports whether the locker is provisioned.
func (s *LockerStore) Exists(ctx context.Context, kioskID string, id int) (bool, error) {
	var n int64
	err := s.store.db(ctx).Model(&models.Locker{}).
		Where("kiosk_id = ? AND id = ?", kioskID, id).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("store: locker exists %s: %w", lockerID(kioskID, id), err)
	}
	return n > 0, nil
}

// Count returns the number of lockers matching the filter.
func (s *LockerStore) Count(ctx context.Context, f LockerFilter) (int64, error) {
	q := s.store.db(ctx).Model(&models.Locker{})
	if f.KioskID != "" {
		q = q.Where("kiosk_id = ?", f.KioskID)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.OwnerType != nil {
		q = q.Where("owner_type = ?", *f.OwnerType)
	}
	if f.OwnerKey != nil {
		q = q.Where("owner_key = ?", *f.OwnerKey)
	}
	if f.IsVip != nil {
		q = q.Where("is_vip = ?", *f.IsVip)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("store: count lockers: %w", err)
	}
	return n, nil
}

// FindAvailable returns Free, non-VIP lockers on a kiosk.
func (s *LockerStore) FindAvailable(ctx context.Context, kioskID string) ([]models.Locker, error) {
	var lockers []models.Locker
	err := s.store.db(ctx).
		Where("kiosk_id = ? AND status = ? AND is_vip = ?", kioskID, models.LockerFree, false).
		Order("id ASC").
		Find(&lockers).Error
	if err != nil {
		return nil, fmt.Errorf("store: find available lockers: %w", err)
	}
	return lockers, nil
}

// FindByOwnerKey returns the lockers currently held by a card, device, or
// contract key. Both Owned and Reserved count as held: a reservation already
// binds the owner even before the door opens.
func (s *LockerStore) FindByOwnerKey(ctx context.Context, ownerKey string) ([]models.Locker, error) {
	var lockers []models.Locker
	err := s.store.db(ctx).
		Where("owner_key = ? AND status IN ?", ownerKey, []models.LockerStatus{models.LockerOwned, models.LockerReserved}).
		Order("kiosk_id ASC, id ASC").
		Find(&lockers).Error
	if err != nil {
		return nil, fmt.Errorf("store: find lockers by owner: %w", err)
	}
	return lockers, nil
}

// FindExpiredReserved lists reservations older than the timeout, for
// diagnostics and for tests of the sweep.
func (s *LockerStore) FindExpiredReserved(ctx context.Context, timeout time.Duration) ([]models.Locker, error) {
	cutoff := s.store.now().Add(-timeout)
	var lockers []models.Locker
	err := s.store.db(ctx).
		Where("status = ? AND reserved_at IS NOT NULL AND reserved_at <= ?", models.LockerReserved, cutoff).
		Find(&lockers).Error
	if err != nil {
		return nil, fmt.Errorf("store: find expired reservations: %w", err)
	}
	return lockers, nil
}

// CleanupExpiredReservations atomically reverts stale reservations to Free,
// clearing the owner fields and bumping the version, in one conditional
// statement. Re-running it after the lockers have reverted touches zero
// rows; zero rows affected is a normal outcome, not an error.
func (s *LockerStore) CleanupExpiredReservations(ctx context.Context, timeout time.Duration) (int64, error) {
	if timeout <= 0 {
		timeout = DefaultReservationTimeout
	}
	cutoff := s.store.now().Add(-timeout)

	res := s.store.db(ctx).Model(&models.Locker{}).
		Where("status = ? AND reserved_at IS NOT NULL AND reserved_at <= ?", models.LockerReserved, cutoff).
		Updates(map[string]any{
			"status":      models.LockerFree,
			"owner_type":  nil,
			"owner_key":   nil,
			"reserved_at": nil,
			"version":     gorm.Expr("version + 1"),
			"updated_at":  s.store.now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("store: cleanup expired reservations: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// LockerStats aggregates one kiosk's locker counts by status.
type LockerStats struct {
	KioskID  string
	Total    int64
	ByStatus map[models.LockerStatus]int64
	Vip      int64
}

// StatsByKiosk aggregates locker counts per kiosk for dashboards.
func (s *LockerStore) StatsByKiosk(ctx context.Context) (map[string]*LockerStats, error) {
	var rows []struct {
		KioskID string
		Status  models.LockerStatus
		IsVip   bool
		N       int64
	}
	err := s.store.db(ctx).Model(&models.Locker{}).
		Select("kiosk_id, status, is_vip, COUNT(*) AS n").
		Group("kiosk_id, status, is_vip").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: locker stats: %w", err)
	}

	stats := make(map[string]*LockerStats)
	for _, row := range rows {
		st, ok := stats[row.KioskID]
		if !ok {
			st = &LockerStats{KioskID: row.KioskID, ByStatus: map[models.LockerStatus]int64{}}
			stats[row.KioskID] = st
		}
		st.Total += row.N
		st.ByStatus[row.Status] += row.N
		if row.IsVip {
			st.Vip += row.N
		}
	}
	return stats, nil
}

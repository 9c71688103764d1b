package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mredag/eformLockerRoom-sub012/internal/models"
)

// VipContractStore manages long-term locker leases. Every mutation appends a
// VipContractHistory row in the same transaction, so the contract table and
// its audit trail can never diverge.
type VipContractStore struct {
	store *Store
}

// VipContractFilter narrows FindAll results. Zero-valued fields are ignored.
type VipContractFilter struct {
	KioskID  string
	Status   *models.VipContractStatus
	RfidCard string
}

// contractValues snapshots the auditable fields for history rows.
func contractValues(c *models.VipContract) datatypes.JSONMap {
	values := datatypes.JSONMap{
		"kiosk_id":   c.KioskID,
		"locker_id":  c.LockerID,
		"rfid_card":  c.RfidCard,
		"start_date": c.StartDate.Format(time.RFC3339),
		"end_date":   c.EndDate.Format(time.RFC3339),
		"status":     string(c.Status),
	}
	if c.BackupCard != nil {
		values["backup_card"] = *c.BackupCard
	}
	return values
}

// Create inserts an active contract and its "created" history row. Callers
// must check IsLockerAvailable and IsCardAvailable first: exclusivity is a
// documented caller responsibility, not a table constraint.
func (s *VipContractStore) Create(ctx context.Context, contract *models.VipContract) error {
	if contract.KioskID == "" || contract.LockerID <= 0 {
		return validationf("vip contract requires kiosk id and locker id")
	}
	if contract.RfidCard == "" {
		return validationf("vip contract requires an rfid card")
	}
	if contract.CreatedBy == "" {
		return validationf("vip contract requires created_by")
	}
	if !contract.EndDate.After(contract.StartDate) {
		return validationf("vip contract end date must be after start date")
	}
	if contract.Status == "" {
		contract.Status = models.ContractActive
	}
	contract.Version = 1
	contract.UpdatedAt = s.store.now()

	return s.store.WithTransaction(ctx, func(tx *Store) error {
		if err := tx.db(ctx).Create(contract).Error; err != nil {
			return fmt.Errorf("store: create vip contract: %w", err)
		}
		history := &models.VipContractHistory{
			ContractID:  contract.ID,
			Action:      models.VipHistoryCreated,
			NewValues:   contractValues(contract),
			PerformedBy: contract.CreatedBy,
		}
		if err := tx.db(ctx).Create(history).Error; err != nil {
			return fmt.Errorf("store: create vip history: %w", err)
		}
		return nil
	})
}

// GetByID returns one contract or NotFoundError.
func (s *VipContractStore) GetByID(ctx context.Context, id uint64) (*models.VipContract, error) {
	var contract models.VipContract
	err := s.store.db(ctx).Where("id = ?", id).First(&contract).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("vip contract", strconv.FormatUint(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("store: find vip contract %d: %w", id, err)
	}
	return &contract, nil
}

// FindAll returns contracts matching the filter, newest first.
func (s *VipContractStore) FindAll(ctx context.Context, f VipContractFilter) ([]models.VipContract, error) {
	q := s.store.db(ctx).Model(&models.VipContract{})
	if f.KioskID != "" {
		q = q.Where("kiosk_id = ?", f.KioskID)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.RfidCard != "" {
		q = q.Where("rfid_card = ? OR backup_card = ?", f.RfidCard, f.RfidCard)
	}
	var contracts []models.VipContract
	if err := q.Order("id DESC").Find(&contracts).Error; err != nil {
		return nil, fmt.Errorf("store: find vip contracts: %w", err)
	}
	return contracts, nil
}

// IsLockerAvailable reports whether no active contract binds the locker.
func (s *VipContractStore) IsLockerAvailable(ctx context.Context, kioskID string, lockerID int) (bool, error) {
	var n int64
	err := s.store.db(ctx).Model(&models.VipContract{}).
		Where("kiosk_id = ? AND locker_id = ? AND status = ?", kioskID, lockerID, models.ContractActive).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("store: locker availability: %w", err)
	}
	return n == 0, nil
}

// IsCardAvailable reports whether no active contract uses the card as
// primary or backup.
func (s *VipContractStore) IsCardAvailable(ctx context.Context, card string) (bool, error) {
	var n int64
	err := s.store.db(ctx).Model(&models.VipContract{}).
		Where("status = ? AND (rfid_card = ? OR backup_card = ?)", models.ContractActive, card, card).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("store: card availability: %w", err)
	}
	return n == 0, nil
}

// Extend pushes the contract end date out and records the extension length.
func (s *VipContractStore) Extend(ctx context.Context, id uint64, newEndDate time.Time, performedBy string, reason *string, expectedVersion int64) (*models.VipContract, error) {
	return s.mutate(ctx, id, expectedVersion, performedBy, reason, models.VipHistoryExtended,
		func(contract *models.VipContract) (map[string]any, datatypes.JSONMap, error) {
			if !newEndDate.After(contract.EndDate) {
				return nil, nil, validationf("new end date must extend the contract")
			}
			days := int(newEndDate.Sub(contract.EndDate).Hours() / 24)
			details := datatypes.JSONMap{
				"old_end_date":   contract.EndDate.Format(time.RFC3339),
				"new_end_date":   newEndDate.Format(time.RFC3339),
				"extension_days": days,
			}
			return map[string]any{"end_date": newEndDate}, details, nil
		})
}

// ChangeCard swaps the primary and optionally the backup card. Callers check
// IsCardAvailable for the new cards first.
func (s *VipContractStore) ChangeCard(ctx context.Context, id uint64, newCard string, newBackup *string, performedBy string, reason *string, expectedVersion int64) (*models.VipContract, error) {
	if newCard == "" {
		return nil, validationf("new card must not be empty")
	}
	return s.mutate(ctx, id, expectedVersion, performedBy, reason, models.VipHistoryCardChanged,
		func(contract *models.VipContract) (map[string]any, datatypes.JSONMap, error) {
			details := datatypes.JSONMap{
				"old_card": contract.RfidCard,
				"new_card": newCard,
			}
			updates := map[string]any{"rfid_card": newCard}
			if newBackup != nil {
				updates["backup_card"] = *newBackup
				details["new_backup_card"] = *newBackup
			}
			return updates, details, nil
		})
}

// Cancel terminates the lease before its end date.
func (s *VipContractStore) Cancel(ctx context.Context, id uint64, performedBy string, reason *string, expectedVersion int64) (*models.VipContract, error) {
	return s.mutate(ctx, id, expectedVersion, performedBy, reason, models.VipHistoryCancelled,
		func(contract *models.VipContract) (map[string]any, datatypes.JSONMap, error) {
			if contract.Status != models.ContractActive {
				return nil, nil, validationf("vip contract %d is %s, not active", id, contract.Status)
			}
			return map[string]any{"status": models.ContractCancelled}, nil, nil
		})
}

// Transfer moves the contract to another locker, optionally onto a new
// card. Availability of the destination is the caller's check; the transfer
// workflow performs it before approving.
func (s *VipContractStore) Transfer(ctx context.Context, id uint64, toKioskID string, toLockerID int, newCard *string, performedBy string, reason *string, expectedVersion int64) (*models.VipContract, error) {
	if toKioskID == "" || toLockerID <= 0 {
		return nil, validationf("transfer requires destination kiosk and locker")
	}
	return s.mutate(ctx, id, expectedVersion, performedBy, reason, models.VipHistoryTransferred,
		func(contract *models.VipContract) (map[string]any, datatypes.JSONMap, error) {
			if contract.Status != models.ContractActive {
				return nil, nil, validationf("vip contract %d is %s, not active", id, contract.Status)
			}
			details := datatypes.JSONMap{
				"from_kiosk_id":  contract.KioskID,
				"from_locker_id": contract.LockerID,
				"to_kiosk_id":    toKioskID,
				"to_locker_id":   toLockerID,
			}
			updates := map[string]any{
				"kiosk_id":  toKioskID,
				"locker_id": toLockerID,
			}
			if newCard != nil {
				updates["rfid_card"] = *newCard
				details["old_card"] = contract.RfidCard
				details["new_card"] = *newCard
			}
			return updates, details, nil
		})
}

// mutate is the shared read-update-log cycle: read the row, apply a CAS
// update conditioned on the expected version, and append the history row,
// all in one transaction.
func (s *VipContractStore) mutate(ctx context.Context, id uint64, expectedVersion int64, performedBy string, reason *string, action string,
	build func(*models.VipContract) (map[string]any, datatypes.JSONMap, error)) (*models.VipContract, error) {

	if performedBy == "" {
		return nil, validationf("vip contract mutation requires performed_by")
	}

	var updated *models.VipContract
	err := s.store.WithTransaction(ctx, func(tx *Store) error {
		contract, err := tx.Contracts.GetByID(ctx, id)
		if err != nil {
			return err
		}
		oldValues := contractValues(contract)

		updates, details, err := build(contract)
		if err != nil {
			return err
		}
		updates["version"] = gorm.Expr("version + 1")
		updates["updated_at"] = tx.now()

		ident := map[string]any{"id": id}
		if err := tx.casUpdate(ctx, "vip contract", strconv.FormatUint(id, 10), &models.VipContract{}, ident, expectedVersion, updates); err != nil {
			return err
		}

		updated, err = tx.Contracts.GetByID(ctx, id)
		if err != nil {
			return err
		}
		history := &models.VipContractHistory{
			ContractID:  id,
			Action:      action,
			OldValues:   oldValues,
			NewValues:   contractValues(updated),
			PerformedBy: performedBy,
			Reason:      reason,
			Details:     details,
		}
		if err := tx.db(ctx).Create(history).Error; err != nil {
			return fmt.Errorf("store: append vip history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// MarkExpired flips active contracts past their end date to expired and
// appends a history row per contract. Runs from the scheduler; zero expired
// contracts is the normal case.
func (s *VipContractStore) MarkExpired(ctx context.Context) (int64, error) {
	now := s.store.now()
	var flipped int64
	err := s.store.WithTransaction(ctx, func(tx *Store) error {
		var expired []models.VipContract
		if err := tx.db(ctx).
			Where("status = ? AND end_date < ?", models.ContractActive, now).
			Find(&expired).Error; err != nil {
			return fmt.Errorf("store: find expired contracts: %w", err)
		}
		if len(expired) == 0 {
			return nil
		}

		for _, contract := range expired {
			oldValues := contractValues(&contract)
			res := tx.db(ctx).Model(&models.VipContract{}).
				Where("id = ? AND status = ?", contract.ID, models.ContractActive).
				Updates(map[string]any{
					"status":     models.ContractExpired,
					"version":    gorm.Expr("version + 1"),
					"updated_at": now,
				})
			if res.Error != nil {
				return fmt.Errorf("store: expire contract %d: %w", contract.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				continue
			}
			contract.Status = models.ContractExpired
			history := &models.VipContractHistory{
				ContractID:  contract.ID,
				Action:      models.VipHistoryExpired,
				OldValues:   oldValues,
				NewValues:   contractValues(&contract),
				PerformedBy: "system",
			}
			if err := tx.db(ctx).Create(history).Error; err != nil {
				return fmt.Errorf("store: expire history %d: %w", contract.ID, err)
			}
			flipped++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return flipped, nil
}

// History returns the audit trail of one contract, oldest first.
func (s *VipContractStore) History(ctx context.Context, contractID uint64) ([]models.VipContractHistory, error) {
	var history []models.VipContractHistory
	err := s.store.db(ctx).
		Where("contract_id = ?", contractID).
		Order("id ASC").
		Find(&history).Error
	if err != nil {
		return nil, fmt.Errorf("store: vip history %d: %w", contractID, err)
	}
	return history, nil
}

// AuditOperation records operator metadata (IP, user agent) for a VIP
// operation in the main event log, independent of whether the underlying
// mutation succeeded.
func (s *VipContractStore) AuditOperation(ctx context.Context, contractID uint64, operation, performedBy, ip, userAgent string, details map[string]any) error {
	if performedBy == "" {
		return validationf("vip audit requires performed_by")
	}
	contract, err := s.GetByID(ctx, contractID)
	if err != nil {
		return err
	}

	merged := map[string]any{
		"contract_id": contractID,
		"operation":   operation,
		"ip":          ip,
		"user_agent":  userAgent,
	}
	for k, v := range details {
		merged[k] = v
	}
	lockerID := contract.LockerID
	event := models.NewStaffEvent(models.EventVipAudit, contract.KioskID, &lockerID, performedBy, merged)
	return s.store.Events.Append(ctx, event)
}

// CleanupHistory purges history rows past the retention window.
func (s *VipContractStore) CleanupHistory(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.store.now().AddDate(0, 0, -retentionDays)
	res := s.store.db(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.VipContractHistory{})
	if res.Error != nil {
		return 0, fmt.Errorf("store: cleanup vip history: %w", res.Error)
	}
	return res.RowsAffected, nil
}

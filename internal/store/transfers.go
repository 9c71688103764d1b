package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"github.com/mredag/eformLockerRoom-sub012/internal/models"
)

// TransferStore runs the proposal/approval workflow that moves a VIP
// contract to a different locker. Request states: pending → approved or
// rejected, approved → completed, any non-terminal state → cancelled.
type TransferStore struct {
	store *Store
}

// CreateRequest opens a transfer proposal. Either locker being mid-transfer
// already blocks the request: a locker with a pending or approved transfer
// is locked against further transfers touching it.
func (s *TransferStore) CreateRequest(ctx context.Context, req *models.VipTransferRequest) error {
	if req.Reason == "" || req.RequestedBy == "" {
		return validationf("transfer request requires reason and requested_by")
	}
	if req.ToKioskID == "" || req.ToLockerID <= 0 {
		return validationf("transfer request requires destination kiosk and locker")
	}

	return s.store.WithTransaction(ctx, func(tx *Store) error {
		contract, err := tx.Contracts.GetByID(ctx, req.ContractID)
		if err != nil {
			return err
		}
		if contract.Status != models.ContractActive {
			return validationf("vip contract %d is %s, not active", req.ContractID, contract.Status)
		}
		req.FromKioskID = contract.KioskID
		req.FromLockerID = contract.LockerID

		if locked, err := tx.Transfers.HasLockerPendingTransfers(ctx, req.FromKioskID, req.FromLockerID); err != nil {
			return err
		} else if locked {
			return validationf("locker %s/%d already has a transfer in progress", req.FromKioskID, req.FromLockerID)
		}
		if locked, err := tx.Transfers.HasLockerPendingTransfers(ctx, req.ToKioskID, req.ToLockerID); err != nil {
			return err
		} else if locked {
			return validationf("locker %s/%d already has a transfer in progress", req.ToKioskID, req.ToLockerID)
		}

		req.Status = models.TransferPending
		if err := tx.db(ctx).Create(req).Error; err != nil {
			return fmt.Errorf("store: create transfer request: %w", err)
		}
		return nil
	})
}

// GetRequest returns one request or NotFoundError.
func (s *TransferStore) GetRequest(ctx context.Context, id uint64) (*models.VipTransferRequest, error) {
	var req models.VipTransferRequest
	err := s.store.db(ctx).Where("id = ?", id).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("transfer request", strconv.FormatUint(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("store: find transfer request %d: %w", id, err)
	}
	return &req, nil
}

// ListByStatus returns requests in one workflow state, newest first.
func (s *TransferStore) ListByStatus(ctx context.Context, status models.TransferStatus, limit int) ([]models.VipTransferRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	var reqs []models.VipTransferRequest
	err := s.store.db(ctx).
		Where("status = ?", status).
		Order("id DESC").
		Limit(limit).
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("store: list transfer requests: %w", err)
	}
	return reqs, nil
}

// HasLockerPendingTransfers reports whether a pending or approved request
// references the locker as source or destination.
func (s *TransferStore) HasLockerPendingTransfers(ctx context.Context, kioskID string, lockerID int) (bool, error) {
	var n int64
	err := s.store.db(ctx).Model(&models.VipTransferRequest{}).
		Where("status IN ?", []models.TransferStatus{models.TransferPending, models.TransferApproved}).
		Where("(from_kiosk_id = ? AND from_locker_id = ?) OR (to_kiosk_id = ? AND to_locker_id = ?)",
			kioskID, lockerID, kioskID, lockerID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("store: pending transfers for %s/%d: %w", kioskID, lockerID, err)
	}
	return n > 0, nil
}

// Approve moves a pending request to approved.
func (s *TransferStore) Approve(ctx context.Context, id uint64, approvedBy string) error {
	if approvedBy == "" {
		return validationf("approval requires approved_by")
	}
	return s.transition(ctx, id, models.TransferPending, map[string]any{
		"status":      models.TransferApproved,
		"approved_by": approvedBy,
	})
}

// Reject closes a pending request with a reason. Rejected is terminal.
func (s *TransferStore) Reject(ctx context.Context, id uint64, rejectedBy, reason string) error {
	if rejectedBy == "" || reason == "" {
		return validationf("rejection requires rejected_by and a reason")
	}
	return s.transition(ctx, id, models.TransferPending, map[string]any{
		"status":           models.TransferRejected,
		"approved_by":      rejectedBy,
		"rejection_reason": reason,
	})
}

// CancelRequest withdraws a request that has not reached a terminal state.
func (s *TransferStore) CancelRequest(ctx context.Context, id uint64) error {
	res := s.store.db(ctx).Model(&models.VipTransferRequest{}).
		Where("id = ? AND status IN ?", id, []models.TransferStatus{models.TransferPending, models.TransferApproved}).
		Updates(map[string]any{"status": models.TransferCancelled, "updated_at": s.store.now()})
	if res.Error != nil {
		return fmt.Errorf("store: cancel transfer request %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return s.explainMiss(ctx, id)
	}
	return nil
}

// Complete executes an approved transfer: the contract moves to the new
// locker (and card, when requested) with its history row, and the request
// closes, all in one transaction.
func (s *TransferStore) Complete(ctx context.Context, id uint64, performedBy string) error {
	if performedBy == "" {
		return validationf("completion requires performed_by")
	}
	return s.store.WithTransaction(ctx, func(tx *Store) error {
		req, err := tx.Transfers.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != models.TransferApproved {
			return validationf("transfer request %d is %s, not approved", id, req.Status)
		}

		contract, err := tx.Contracts.GetByID(ctx, req.ContractID)
		if err != nil {
			return err
		}
		reason := req.Reason
		if _, err := tx.Contracts.Transfer(ctx, req.ContractID, req.ToKioskID, req.ToLockerID,
			req.NewRfidCard, performedBy, &reason, contract.Version); err != nil {
			return err
		}

		res := tx.db(ctx).Model(&models.VipTransferRequest{}).
			Where("id = ? AND status = ?", id, models.TransferApproved).
			Updates(map[string]any{"status": models.TransferCompleted, "updated_at": tx.now()})
		if res.Error != nil {
			return fmt.Errorf("store: complete transfer request %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return tx.Transfers.explainMiss(ctx, id)
		}
		return nil
	})
}

// transition applies one conditional workflow step from the given state.
func (s *TransferStore) transition(ctx context.Context, id uint64, from models.TransferStatus, updates map[string]any) error {
	updates["updated_at"] = s.store.now()
	res := s.store.db(ctx).Model(&models.VipTransferRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("store: transfer request %d transition: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return s.explainMiss(ctx, id)
	}
	return nil
}

func (s *TransferStore) explainMiss(ctx context.Context, id uint64) error {
	req, err := s.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	return validationf("transfer request %d is %s and cannot transition", id, req.Status)
}

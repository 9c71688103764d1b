package models

import "time"

// TransferStatus enumerates states of the transfer approval workflow.
type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferApproved  TransferStatus = "approved"
	TransferRejected  TransferStatus = "rejected"
	TransferCompleted TransferStatus = "completed"
	TransferCancelled TransferStatus = "cancelled"
)

// Terminal reports whether the request permits no further transitions.
func (s TransferStatus) Terminal() bool {
	return s == TransferRejected || s == TransferCompleted || s == TransferCancelled
}

// Open reports whether the request still locks its lockers against other
// transfers.
func (s TransferStatus) Open() bool {
	return s == TransferPending || s == TransferApproved
}

// VipTransferRequest is a proposal to move a VIP contract to a different
// locker and optionally a new card. While a request is pending or approved,
// both the source and destination lockers are locked against further
// transfer requests.
type VipTransferRequest struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ContractID uint64 `gorm:"not null;index"` // Contract being moved.

	FromKioskID  string `gorm:"type:text;not null"` // Current kiosk.
	FromLockerID int    `gorm:"not null"`           // Current locker.
	ToKioskID    string `gorm:"type:text;not null"` // Destination kiosk.
	ToLockerID   int    `gorm:"not null"`           // Destination locker.

	NewRfidCard *string `gorm:"type:text"` // Replacement card, when the move includes one.

	Reason      string  `gorm:"type:text;not null"` // Why the transfer was requested.
	RequestedBy string  `gorm:"type:text;not null"` // Requesting staff user.
	ApprovedBy  *string `gorm:"type:text"`          // Approving staff user, once decided.

	Status          TransferStatus `gorm:"type:text;not null;default:'pending';index"` // Workflow state.
	RejectionReason *string        `gorm:"type:text"`                                  // Set when rejected.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Request timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last workflow transition.
}

// TableName overrides the default table name.
func (VipTransferRequest) TableName() string {
	return "vip_transfer_requests"
}

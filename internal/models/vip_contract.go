package models

import (
	"time"

	"gorm.io/datatypes"
)

// VipContractStatus enumerates lifecycle states of a VIP locker lease.
type VipContractStatus string

const (
	ContractActive    VipContractStatus = "active"
	ContractExpired   VipContractStatus = "expired"
	ContractCancelled VipContractStatus = "cancelled"
)

// VipContract is a long-term lease binding an RFID card to one locker for a
// date range. At most one active contract may bind a given locker or a given
// card at any time; creators must check the availability guards before
// inserting, the table itself does not enforce exclusivity.
type VipContract struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	KioskID  string `gorm:"type:text;not null;index:idx_vip_contracts_locker"` // Kiosk of the leased locker.
	LockerID int    `gorm:"not null;index:idx_vip_contracts_locker"`           // Leased locker id.

	RfidCard   string  `gorm:"type:text;not null;index"` // Primary card.
	BackupCard *string `gorm:"type:text;index"`          // Optional backup card.

	StartDate time.Time `gorm:"not null"` // Lease begins.
	EndDate   time.Time `gorm:"not null"` // Lease ends; the expiry sweep flips status afterwards.

	Status    VipContractStatus `gorm:"type:text;not null;default:'active';index"` // Lifecycle state.
	CreatedBy string            `gorm:"type:text;not null"`                        // Staff user who created the lease.

	Version int64 `gorm:"not null;default:1"` // Optimistic-lock counter.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null"`                // Last mutation timestamp.
}

// TableName overrides the default table name.
func (VipContract) TableName() string {
	return "vip_contracts"
}

// ActiveAt reports whether the contract covers the given instant.
func (c *VipContract) ActiveAt(t time.Time) bool {
	return c.Status == ContractActive && !t.Before(c.StartDate) && !t.After(c.EndDate)
}

// History actions recorded for contract mutations.
const (
	VipHistoryCreated     = "created"
	VipHistoryExtended    = "extended"
	VipHistoryCardChanged = "card_changed"
	VipHistoryTransferred = "transferred"
	VipHistoryCancelled   = "cancelled"
	VipHistoryExpired     = "expired"
)

// VipContractHistory is the append-only audit trail of contract mutations.
// Every mutating contract operation writes exactly one history row in the
// same transaction.
type VipContractHistory struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ContractID uint64 `gorm:"not null;index"`     // Mutated contract.
	Action     string `gorm:"type:text;not null"` // One of the VipHistory* actions.

	OldValues datatypes.JSONMap `gorm:"type:jsonb"` // Field values before the mutation.
	NewValues datatypes.JSONMap `gorm:"type:jsonb"` // Field values after the mutation.

	PerformedBy string            `gorm:"type:text;not null"` // Acting staff user, or "system" for sweeps.
	Reason      *string           `gorm:"type:text"`          // Free-form operator reason.
	Details     datatypes.JSONMap `gorm:"type:jsonb"`         // Derived context, e.g. extension length.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // When the mutation happened.
}

// TableName overrides the default table name.
func (VipContractHistory) TableName() string {
	return "vip_contract_history"
}

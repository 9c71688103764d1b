package models

import "time"

// LockerStatus enumerates the states of the locker state machine.
type LockerStatus string

const (
	LockerFree     LockerStatus = "Free"     // Available for assignment.
	LockerReserved LockerStatus = "Reserved" // Held briefly while a user is at the kiosk.
	LockerOwned    LockerStatus = "Owned"    // Assigned to a card, device, or VIP contract.
	LockerBlocked  LockerStatus = "Blocked"  // Taken out of service by staff.
	LockerOpening  LockerStatus = "Opening"  // Hardware open command in flight.
	LockerError    LockerStatus = "Error"    // Hardware reported a fault.
)

// OwnerType identifies what kind of owner currently holds a locker.
type OwnerType string

const (
	OwnerRfid   OwnerType = "rfid"
	OwnerDevice OwnerType = "device"
	OwnerVip    OwnerType = "vip"
)

// Locker is one compartment within a kiosk, keyed by (kiosk_id, id).
//
// OwnerType and OwnerKey are either both set or both null. Version starts at
// 1 and increases by exactly one on every successful mutation; writers must
// present the version they read and retry on a mismatch.
type Locker struct {
	KioskID string `gorm:"primaryKey;type:text"`             // Owning kiosk.
	ID      int    `gorm:"primaryKey;autoIncrement:false"`   // Compartment number within the kiosk.

	Status    LockerStatus `gorm:"type:text;not null;default:'Free';index"` // Current state-machine state.
	OwnerType *OwnerType   `gorm:"type:text"`                               // Kind of current owner, when owned or reserved.
	OwnerKey  *string      `gorm:"type:text;index"`                         // Card number, device id, or contract key.

	ReservedAt *time.Time // When the current reservation was taken.
	OwnedAt    *time.Time // When ownership was confirmed.

	IsVip       bool   `gorm:"not null;default:false;index"` // Excluded from general availability.
	DisplayName string `gorm:"type:text"`                    // Label shown on the kiosk panel.

	Version int64 `gorm:"not null;default:1"` // Optimistic-lock counter.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null"`                // Last mutation timestamp, bumped with version.
}

// TableName overrides the default table name.
func (Locker) TableName() string {
	return "lockers"
}

// Owned reports whether both owner fields are set.
func (l *Locker) Owned() bool {
	return l.OwnerType != nil && l.OwnerKey != nil
}

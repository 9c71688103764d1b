package models

import (
	"time"

	"gorm.io/datatypes"
)

// EventType names a kind of state-changing action recorded in the audit log.
type EventType string

// System events emitted by the coordination layer itself.
const (
	EventKioskOnline     EventType = "kiosk_online"
	EventKioskOffline    EventType = "kiosk_offline"
	EventKioskRestarted  EventType = "restarted"
	EventCommandFailed   EventType = "command_failed"
	EventReservationSwep EventType = "reservation_expired"
)

// User events triggered by card or device interactions at a kiosk.
const (
	EventRfidAssign    EventType = "rfid_assign"
	EventRfidRelease   EventType = "rfid_release"
	EventDeviceAssign  EventType = "device_assign"
	EventDeviceRelease EventType = "device_release"
)

// Staff events. Every one of these requires a staff actor.
const (
	EventStaffOpen    EventType = "staff_open"
	EventStaffBlock   EventType = "staff_block"
	EventStaffUnblock EventType = "staff_unblock"
	EventBulkOpen     EventType = "bulk_open"
	EventMasterPin    EventType = "master_pin_used"

	EventVipCreated     EventType = "vip_contract_created"
	EventVipExtended    EventType = "vip_contract_extended"
	EventVipCardChanged EventType = "vip_card_changed"
	EventVipTransferred EventType = "vip_contract_transferred"
	EventVipCancelled   EventType = "vip_contract_cancelled"
	EventVipAudit       EventType = "vip_operation_audit"
)

// staffEventTypes is the closed set of actions that must carry a staff actor.
// Membership here replaces name-prefix sniffing: new staff actions are added
// to this set, not inferred from spelling.
var staffEventTypes = map[EventType]struct{}{
	EventStaffOpen:      {},
	EventStaffBlock:     {},
	EventStaffUnblock:   {},
	EventBulkOpen:       {},
	EventMasterPin:      {},
	EventVipCreated:     {},
	EventVipExtended:    {},
	EventVipCardChanged: {},
	EventVipTransferred: {},
	EventVipCancelled:   {},
	EventVipAudit:       {},
}

var systemEventTypes = map[EventType]struct{}{
	EventKioskOnline:     {},
	EventKioskOffline:    {},
	EventKioskRestarted:  {},
	EventCommandFailed:   {},
	EventReservationSwep: {},
}

// StaffAction reports whether the type requires a staff actor.
func (t EventType) StaffAction() bool {
	_, ok := staffEventTypes[t]
	return ok
}

// SystemAction reports whether the type is emitted by the system itself.
func (t EventType) SystemAction() bool {
	_, ok := systemEventTypes[t]
	return ok
}

// StaffEventTypes returns the staff-action set in no particular order.
func StaffEventTypes() []EventType {
	out := make([]EventType, 0, len(staffEventTypes))
	for t := range staffEventTypes {
		out = append(out, t)
	}
	return out
}

// Event categories used by audit statistics.
const (
	EventCategoryStaff  = "staff"
	EventCategorySystem = "system"
	EventCategoryUser   = "user"
)

// Event is one append-only audit record. Rows are never updated after
// creation; retention cleanup is the only delete path.
type Event struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Timestamp time.Time `gorm:"not null;index"`           // When the action happened.
	KioskID   string    `gorm:"type:text;not null;index"` // Kiosk the action concerns.
	LockerID  *int      `gorm:"index"`                    // Locker involved, when applicable.

	EventType EventType `gorm:"type:text;not null;index"` // Action kind.

	RfidCard  *string `gorm:"type:text"` // Card that triggered the action.
	DeviceID  *string `gorm:"type:text"` // Device that triggered the action.
	StaffUser *string `gorm:"type:text"` // Mandatory for staff actions.

	Details datatypes.JSONMap `gorm:"type:jsonb"` // Free-form structured context.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Insertion timestamp.
}

// TableName overrides the default table name.
func (Event) TableName() string {
	return "events"
}

// Category buckets the event for statistics: staff when an actor is set,
// system for system-emitted kinds, user otherwise.
func (e *Event) Category() string {
	if e.StaffUser != nil && *e.StaffUser != "" {
		return EventCategoryStaff
	}
	if e.EventType.SystemAction() {
		return EventCategorySystem
	}
	return EventCategoryUser
}

// NewStaffEvent builds a staff-action event with its mandatory actor. Using
// this constructor keeps "staff event without an actor" unrepresentable at
// call sites; EventStore.Append still validates writes that bypass it.
func NewStaffEvent(t EventType, kioskID string, lockerID *int, staffUser string, details map[string]any) *Event {
	return &Event{
		KioskID:   kioskID,
		LockerID:  lockerID,
		EventType: t,
		StaffUser: &staffUser,
		Details:   details,
	}
}

package models

import "time"

// KioskStatus enumerates liveness states of a kiosk controller.
type KioskStatus string

const (
	KioskOnline      KioskStatus = "online"
	KioskOffline     KioskStatus = "offline"
	KioskMaintenance KioskStatus = "maintenance"
	KioskError       KioskStatus = "error"
)

// DefaultOfflineThresholdSeconds is applied to kiosks that register without
// a zone-specific threshold.
const DefaultOfflineThresholdSeconds = 30

// KioskHeartbeat tracks liveness and identity of one kiosk. A kiosk flips to
// offline only through the sweep comparing LastSeen against its own
// OfflineThresholdSeconds; slow zones can carry a longer threshold without
// making the whole fleet flap.
type KioskHeartbeat struct {
	KioskID string `gorm:"primaryKey;type:text"` // Kiosk identity.

	LastSeen time.Time   `gorm:"not null;index"`                             // Last heartbeat poll.
	Zone     string      `gorm:"type:text;not null;index"`                   // Deployment zone.
	Status   KioskStatus `gorm:"type:text;not null;default:'online';index"`  // Liveness state.
	Version  string      `gorm:"type:text;not null"`                         // Kiosk software version.

	LastConfigHash *string `gorm:"type:text"` // Hash of the config the kiosk last reported.

	OfflineThresholdSeconds int `gorm:"not null;default:30"` // Per-kiosk staleness tolerance.

	HardwareID         *string `gorm:"type:text"` // Physical controller id.
	RegistrationSecret *string `gorm:"type:text"` // Shared secret minted at registration.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // First registration.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last registry write.
}

// TableName overrides the default table name.
func (KioskHeartbeat) TableName() string {
	return "kiosk_heartbeat"
}

// Stale reports whether the kiosk has missed its own offline threshold as of
// now.
func (h *KioskHeartbeat) Stale(now time.Time) bool {
	threshold := h.OfflineThresholdSeconds
	if threshold <= 0 {
		threshold = DefaultOfflineThresholdSeconds
	}
	return now.Sub(h.LastSeen) > time.Duration(threshold)*time.Second
}

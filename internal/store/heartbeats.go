package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mredag/eformLockerRoom-sub012/internal/models"
)

// KioskRegistry tracks fleet liveness through the kiosk_heartbeat table.
type KioskRegistry struct {
	store *Store
}

const fleetStatsCacheKey = "kiosk_fleet_stats"

// Register inserts a kiosk on first contact and upserts on re-registration.
// A kiosk re-registers after a firmware reset, so a conflict on kiosk_id
// refreshes zone, version, and liveness instead of failing.
func (s *KioskRegistry) Register(ctx context.Context, kioskID, zone, version string, hardwareID, secret *string) (*models.KioskHeartbeat, error) {
	if kioskID == "" {
		return nil, validationf("kiosk registration requires a kiosk id")
	}
	now := s.store.now()
	hb := &models.KioskHeartbeat{
		KioskID:                 kioskID,
		Zone:                    zone,
		Version:                 version,
		Status:                  models.KioskOnline,
		LastSeen:                now,
		OfflineThresholdSeconds: models.DefaultOfflineThresholdSeconds,
		HardwareID:              hardwareID,
		RegistrationSecret:      secret,
	}
	err := s.store.db(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "kiosk_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"zone", "version", "status", "last_seen", "hardware_id", "registration_secret", "updated_at",
		}),
	}).Create(hb).Error
	if err != nil {
		return nil, fmt.Errorf("store: register kiosk %s: %w", kioskID, err)
	}
	return s.Get(ctx, kioskID)
}

// UpdateHeartbeat refreshes liveness on a poll. An unregistered kiosk is a
// hard error: heartbeats never create registry rows, registration must come
// first.
func (s *KioskRegistry) UpdateHeartbeat(ctx context.Context, kioskID string, version, configHash *string) error {
	now := s.store.now()
	updates := map[string]any{
		"status":     models.KioskOnline,
		"last_seen":  now,
		"updated_at": now,
	}
	if version != nil {
		updates["version"] = *version
	}
	if configHash != nil {
		updates["last_config_hash"] = *configHash
	}

	res := s.store.db(ctx).Model(&models.KioskHeartbeat{}).
		Where("kiosk_id = ?", kioskID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("store: heartbeat %s: %w", kioskID, res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("kiosk", kioskID)
	}
	return nil
}

// Get returns one kiosk or NotFoundError.
func (s *KioskRegistry) Get(ctx context.Context, kioskID string) (*models.KioskHeartbeat, error) {
	var hb models.KioskHeartbeat
	err := s.store.db(ctx).Where("kiosk_id = ?", kioskID).First(&hb).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("kiosk", kioskID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: find kiosk %s: %w", kioskID, err)
	}
	return &hb, nil
}

// List returns all kiosks, optionally narrowed to one status.
func (s *KioskRegistry) List(ctx context.Context, status *models.KioskStatus) ([]models.KioskHeartbeat, error) {
	q := s.store.db(ctx).Model(&models.KioskHeartbeat{})
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	var kiosks []models.KioskHeartbeat
	if err := q.Order("kiosk_id ASC").Find(&kiosks).Error; err != nil {
		return nil, fmt.Errorf("store: list kiosks: %w", err)
	}
	return kiosks, nil
}

// UpdateStatus moves a kiosk into maintenance or error by staff decision.
// Online/offline transitions belong to heartbeats and the sweep.
func (s *KioskRegistry) UpdateStatus(ctx context.Context, kioskID string, status models.KioskStatus) error {
	if status != models.KioskMaintenance && status != models.KioskError {
		return validationf("status %s is managed by heartbeats, not set directly", status)
	}
	res := s.store.db(ctx).Model(&models.KioskHeartbeat{}).
		Where("kiosk_id = ?", kioskID).
		Updates(map[string]any{"status": status, "updated_at": s.store.now()})
	if res.Error != nil {
		return fmt.Errorf("store: update kiosk status %s: %w", kioskID, res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("kiosk", kioskID)
	}
	return nil
}

// SetOfflineThreshold tunes how long a kiosk may stay silent before the
// sweep flips it offline. Thresholds are per kiosk so flaky zones can carry
// longer gaps without flapping the whole fleet.
func (s *KioskRegistry) SetOfflineThreshold(ctx context.Context, kioskID string, seconds int) error {
	if seconds <= 0 {
		return validationf("offline threshold must be positive")
	}
	res := s.store.db(ctx).Model(&models.KioskHeartbeat{}).
		Where("kiosk_id = ?", kioskID).
		Updates(map[string]any{"offline_threshold_seconds": seconds, "updated_at": s.store.now()})
	if res.Error != nil {
		return fmt.Errorf("store: set offline threshold %s: %w", kioskID, res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("kiosk", kioskID)
	}
	return nil
}

// MarkOffline flips every online kiosk whose last_seen is older than its own
// offline threshold. One conditional UPDATE is issued per distinct threshold
// value, so each flip is a single atomic statement and a heartbeat landing
// mid-sweep is never overwritten.
func (s *KioskRegistry) MarkOffline(ctx context.Context) (int64, error) {
	var thresholds []int
	err := s.store.db(ctx).Model(&models.KioskHeartbeat{}).
		Where("status = ?", models.KioskOnline).
		Distinct().
		Pluck("offline_threshold_seconds", &thresholds).Error
	if err != nil {
		return 0, fmt.Errorf("store: offline sweep thresholds: %w", err)
	}

	now := s.store.now()
	var flipped int64
	for _, threshold := range thresholds {
		if threshold <= 0 {
			threshold = models.DefaultOfflineThresholdSeconds
		}
		cutoff := now.Add(-time.Duration(threshold) * time.Second)
		res := s.store.db(ctx).Model(&models.KioskHeartbeat{}).
			Where("status = ? AND offline_threshold_seconds = ? AND last_seen < ?", models.KioskOnline, threshold, cutoff).
			Updates(map[string]any{"status": models.KioskOffline, "updated_at": now})
		if res.Error != nil {
			return flipped, fmt.Errorf("store: offline sweep: %w", res.Error)
		}
		flipped += res.RowsAffected
	}
	return flipped, nil
}

// Delete removes a kiosk on decommission. Refused while any active VIP
// contract still binds one of its lockers.
func (s *KioskRegistry) Delete(ctx context.Context, kioskID string) error {
	var active int64
	err := s.store.db(ctx).Model(&models.VipContract{}).
		Where("kiosk_id = ? AND status = ?", kioskID, models.ContractActive).
		Count(&active).Error
	if err != nil {
		return fmt.Errorf("store: check contracts for %s: %w", kioskID, err)
	}
	if active > 0 {
		return validationf("kiosk %s still has %d active VIP contracts", kioskID, active)
	}

	res := s.store.db(ctx).Where("kiosk_id = ?", kioskID).Delete(&models.KioskHeartbeat{})
	if res.Error != nil {
		return fmt.Errorf("store: delete kiosk %s: %w", kioskID, res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("kiosk", kioskID)
	}
	return nil
}

// FleetStatistics aggregates kiosk counts for dashboards.
type FleetStatistics struct {
	Total     int64
	ByStatus  map[models.KioskStatus]int64
	ByZone    map[string]int64
	ByVersion map[string]int64
}

// Statistics returns fleet totals by status, zone, and software version.
// Results are cached briefly; dashboards poll faster than the fleet changes.
func (s *KioskRegistry) Statistics(ctx context.Context) (*FleetStatistics, error) {
	if s.store.statsCache != nil {
		if cached, ok := s.store.statsCache.Get(fleetStatsCacheKey); ok {
			return cached.(*FleetStatistics), nil
		}
	}

	var rows []struct {
		Status  models.KioskStatus
		Zone    string
		Version string
		N       int64
	}
	err := s.store.db(ctx).Model(&models.KioskHeartbeat{}).
		Select("status, zone, version, COUNT(*) AS n").
		Group("status, zone, version").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: kiosk statistics: %w", err)
	}

	stats := &FleetStatistics{
		ByStatus:  map[models.KioskStatus]int64{},
		ByZone:    map[string]int64{},
		ByVersion: map[string]int64{},
	}
	for _, row := range rows {
		stats.Total += row.N
		stats.ByStatus[row.Status] += row.N
		stats.ByZone[row.Zone] += row.N
		stats.ByVersion[row.Version] += row.N
	}

	if s.store.statsCache != nil {
		s.store.statsCache.Set(fleetStatsCacheKey, stats, statsCacheTTL)
	}
	return stats, nil
}

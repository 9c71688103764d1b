package store

import (
	"context"
	"fmt"
	"time"

	"github.com/mredag/eformLockerRoom-sub012/internal/models"
)

// EventStore is the append-only audit trail. Rows are written on every
// state-changing action and never updated; retention cleanup is the only
// delete path.
type EventStore struct {
	store *Store
}

// Append writes one audit event. The single business rule the log enforces
// itself: a staff-action event must carry its staff user, everything else is
// the caller's responsibility.
func (s *EventStore) Append(ctx context.Context, event *models.Event) error {
	if event == nil {
		return validationf("event is nil")
	}
	if event.KioskID == "" || event.EventType == "" {
		return validationf("event requires kiosk id and event type")
	}
	if event.EventType.StaffAction() && (event.StaffUser == nil || *event.StaffUser == "") {
		return validationf("event %s is a staff action and requires staff_user", event.EventType)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.store.now()
	}
	if err := s.store.db(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("store: append event: %w", err)
	}
	return nil
}

// FindRecent returns the newest events first.
func (s *EventStore) FindRecent(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []models.Event
	err := s.store.db(ctx).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("store: recent events: %w", err)
	}
	return events, nil
}

// FindByDateRange returns events within [from, to], oldest first.
func (s *EventStore) FindByDateRange(ctx context.Context, from, to time.Time) ([]models.Event, error) {
	var events []models.Event
	err := s.store.db(ctx).
		Where("timestamp >= ? AND timestamp <= ?", from, to).
		Order("timestamp ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("store: events by date range: %w", err)
	}
	return events, nil
}

// FindByLocker returns the audit trail of one locker, newest first.
func (s *EventStore) FindByLocker(ctx context.Context, kioskID string, lockerID int) ([]models.Event, error) {
	var events []models.Event
	err := s.store.db(ctx).
		Where("kiosk_id = ? AND locker_id = ?", kioskID, lockerID).
		Order("timestamp DESC, id DESC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("store: events by locker: %w", err)
	}
	return events, nil
}

// FindStaffActions returns staff-action events, newest first.
func (s *EventStore) FindStaffActions(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []models.Event
	err := s.store.db(ctx).
		Where("event_type IN ?", models.StaffEventTypes()).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("store: staff action events: %w", err)
	}
	return events, nil
}

// EventStatistics aggregates audit counts for dashboards.
type EventStatistics struct {
	Total      int64
	ByType     map[models.EventType]int64
	ByKiosk    map[string]int64
	ByCategory map[string]int64
}

// Statistics buckets event counts by type, kiosk, and category.
func (s *EventStore) Statistics(ctx context.Context) (*EventStatistics, error) {
	var rows []struct {
		EventType models.EventType
		KioskID   string
		Staffed   bool
		N         int64
	}
	err := s.store.db(ctx).Model(&models.Event{}).
		Select("event_type, kiosk_id, (staff_user IS NOT NULL AND staff_user <> '') AS staffed, COUNT(*) AS n").
		Group("event_type, kiosk_id, staffed").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: event statistics: %w", err)
	}

	stats := &EventStatistics{
		ByType:     map[models.EventType]int64{},
		ByKiosk:    map[string]int64{},
		ByCategory: map[string]int64{},
	}
	for _, row := range rows {
		stats.Total += row.N
		stats.ByType[row.EventType] += row.N
		stats.ByKiosk[row.KioskID] += row.N
		switch {
		case row.Staffed:
			stats.ByCategory[models.EventCategoryStaff] += row.N
		case row.EventType.SystemAction():
			stats.ByCategory[models.EventCategorySystem] += row.N
		default:
			stats.ByCategory[models.EventCategoryUser] += row.N
		}
	}
	return stats, nil
}

// CleanupOld purges events past the retention window. Age is the only
// criterion; nothing else ever deletes audit rows.
func (s *EventStore) CleanupOld(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.store.now().AddDate(0, 0, -retentionDays)
	res := s.store.db(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&models.Event{})
	if res.Error != nil {
		return 0, fmt.Errorf("store: cleanup old events: %w", res.Error)
	}
	return res.RowsAffected, nil
}

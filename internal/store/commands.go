package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mredag/eformLockerRoom-sub012/internal/models"
)

// CommandStore is the per-kiosk asynchronous job queue. Kiosks are
// intermittently connected, so delivery is pull-based: the kiosk polls
// GetPending and reports outcomes back.
type CommandStore struct {
	store *Store
}

const (
	// DefaultMaxRetries is the attempt ceiling for newly enqueued commands.
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the backoff base applied by MarkFailed when the
	// caller passes no delay. Kept as a call-site default rather than a
	// hard-wired constant so operators can tune it per command type.
	DefaultRetryDelay = 5 * time.Second
)

// Enqueue creates a pending command due immediately.
func (s *CommandStore) Enqueue(ctx context.Context, kioskID, commandType string, payload map[string]any, maxRetries int) (*models.Command, error) {
	if kioskID == "" || commandType == "" {
		return nil, validationf("command requires kiosk id and command type")
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	var raw []byte
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, validationf("command payload not serializable: %v", err)
		}
	}

	cmd := &models.Command{
		CommandID:     uuid.NewString(),
		KioskID:       kioskID,
		CommandType:   commandType,
		Payload:       raw,
		Status:        models.CommandPending,
		MaxRetries:    maxRetries,
		NextAttemptAt: s.store.now(),
	}
	if err := s.store.db(ctx).Create(cmd).Error; err != nil {
		return nil, fmt.Errorf("store: enqueue command: %w", err)
	}
	return cmd, nil
}

// GetByID returns one command or NotFoundError.
func (s *CommandStore) GetByID(ctx context.Context, commandID string) (*models.Command, error) {
	var cmd models.Command
	err := s.store.db(ctx).Where("command_id = ?", commandID).First(&cmd).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("command", commandID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: find command %s: %w", commandID, err)
	}
	return &cmd, nil
}

// GetPending returns due commands for a kiosk, oldest deadline first. A
// retried command re-enters here once its backoff elapses; terminal commands
// are never served.
func (s *CommandStore) GetPending(ctx context.Context, kioskID string, limit int) ([]models.Command, error) {
	if limit <= 0 {
		limit = 10
	}
	var cmds []models.Command
	err := s.store.db(ctx).
		Where("kiosk_id = ? AND status = ? AND next_attempt_at <= ?", kioskID, models.CommandPending, s.store.now()).
		Order("next_attempt_at ASC, created_at ASC").
		Limit(limit).
		Find(&cmds).Error
	if err != nil {
		return nil, fmt.Errorf("store: pending commands for %s: %w", kioskID, err)
	}
	return cmds, nil
}

// MarkExecuting records that a kiosk picked the command up.
func (s *CommandStore) MarkExecuting(ctx context.Context, commandID string) error {
	now := s.store.now()
	res := s.store.db(ctx).Model(&models.Command{}).
		Where("command_id = ? AND status = ?", commandID, models.CommandPending).
		Updates(map[string]any{
			"status":      models.CommandExecuting,
			"executed_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("store: mark executing %s: %w", commandID, res.Error)
	}
	if res.RowsAffected == 0 {
		return s.explainMiss(ctx, commandID, models.CommandPending)
	}
	return nil
}

// MarkCompleted records a successful execution. Completed is terminal.
func (s *CommandStore) MarkCompleted(ctx context.Context, commandID string) error {
	now := s.store.now()
	res := s.store.db(ctx).Model(&models.Command{}).
		Where("command_id = ? AND status IN ?", commandID, []models.CommandStatus{models.CommandPending, models.CommandExecuting}).
		Updates(map[string]any{
			"status":       models.CommandCompleted,
			"completed_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("store: mark completed %s: %w", commandID, res.Error)
	}
	if res.RowsAffected == 0 {
		return s.explainMiss(ctx, commandID, "")
	}
	return nil
}

// MarkFailed records a failed attempt. While attempts remain the command
// goes back to pending with an exponentially grown deadline
// (delay * 2^(retry_count-1)); once retries are exhausted it becomes failed,
// which is terminal.
func (s *CommandStore) MarkFailed(ctx context.Context, commandID, errMsg string, retryDelay time.Duration) (*models.Command, error) {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}

	cmd, err := s.GetByID(ctx, commandID)
	if err != nil {
		return nil, err
	}
	if cmd.Status.Terminal() {
		return nil, validationf("command %s is %s and cannot fail again", commandID, cmd.Status)
	}

	now := s.store.now()
	retryCount := cmd.RetryCount + 1
	backoff := time.Duration(float64(retryDelay) * math.Pow(2, float64(retryCount-1)))
	nextAttempt := now.Add(backoff)

	status := models.CommandPending
	updates := map[string]any{
		"status":          status,
		"retry_count":     retryCount,
		"next_attempt_at": nextAttempt,
		"last_error":      errMsg,
	}
	if retryCount >= cmd.MaxRetries {
		status = models.CommandFailed
		updates["status"] = status
		updates["completed_at"] = now
	}

	res := s.store.db(ctx).Model(&models.Command{}).
		Where("command_id = ? AND status IN ?", commandID, []models.CommandStatus{models.CommandPending, models.CommandExecuting}).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("store: mark failed %s: %w", commandID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, s.explainMiss(ctx, commandID, "")
	}
	return s.GetByID(ctx, commandID)
}

// Cancel terminates a single non-terminal command.
func (s *CommandStore) Cancel(ctx context.Context, commandID string) error {
	now := s.store.now()
	res := s.store.db(ctx).Model(&models.Command{}).
		Where("command_id = ? AND status IN ?", commandID, []models.CommandStatus{models.CommandPending, models.CommandExecuting}).
		Updates(map[string]any{
			"status":       models.CommandCancelled,
			"completed_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("store: cancel command %s: %w", commandID, res.Error)
	}
	if res.RowsAffected == 0 {
		return s.explainMiss(ctx, commandID, "")
	}
	return nil
}

// ClearPending bulk-cancels every pending and executing command of a kiosk.
// Called on kiosk restart: in-flight commands reference hardware state from
// before the restart and must never be replayed.
func (s *CommandStore) ClearPending(ctx context.Context, kioskID string) (int64, error) {
	now := s.store.now()
	res := s.store.db(ctx).Model(&models.Command{}).
		Where("kiosk_id = ? AND status IN ?", kioskID, []models.CommandStatus{models.CommandPending, models.CommandExecuting}).
		Updates(map[string]any{
			"status":       models.CommandCancelled,
			"completed_at": now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("store: clear pending commands for %s: %w", kioskID, res.Error)
	}
	return res.RowsAffected, nil
}

// CleanupOld purges terminal commands past the retention window.
func (s *CommandStore) CleanupOld(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.store.now().AddDate(0, 0, -retentionDays)
	res := s.store.db(ctx).
		Where("status IN ? AND created_at < ?",
			[]models.CommandStatus{models.CommandCompleted, models.CommandFailed, models.CommandCancelled}, cutoff).
		Delete(&models.Command{})
	if res.Error != nil {
		return 0, fmt.Errorf("store: cleanup old commands: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CountByStatus returns queue depths for one kiosk, or fleet-wide when
// kioskID is empty.
func (s *CommandStore) CountByStatus(ctx context.Context, kioskID string) (map[models.CommandStatus]int64, error) {
	q := s.store.db(ctx).Model(&models.Command{})
	if kioskID != "" {
		q = q.Where("kiosk_id = ?", kioskID)
	}
	var rows []struct {
		Status models.CommandStatus
		N      int64
	}
	if err := q.Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: count commands: %w", err)
	}
	counts := make(map[models.CommandStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.N
	}
	return counts, nil
}

// explainMiss turns a zero-row conditional update into the precise error:
// the command is either missing or already past the state the transition
// needed.
func (s *CommandStore) explainMiss(ctx context.Context, commandID string, wanted models.CommandStatus) error {
	cmd, err := s.GetByID(ctx, commandID)
	if err != nil {
		return err
	}
	if wanted != "" {
		return validationf("command %s is %s, not %s", commandID, cmd.Status, wanted)
	}
	return validationf("command %s is %s and cannot transition", commandID, cmd.Status)
}

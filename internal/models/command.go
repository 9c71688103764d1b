package models

import (
	"time"

	"gorm.io/datatypes"
)

// CommandStatus enumerates queue states for a hardware command.
type CommandStatus string

const (
	CommandPending   CommandStatus = "pending"
	CommandExecuting CommandStatus = "executing"
	CommandCompleted CommandStatus = "completed"
	CommandFailed    CommandStatus = "failed"
	CommandCancelled CommandStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s CommandStatus) Terminal() bool {
	return s == CommandCompleted || s == CommandFailed || s == CommandCancelled
}

// Command is an asynchronous instruction queued for a kiosk to pull and
// execute. Commands are served oldest-due-first and retried with exponential
// backoff until MaxRetries is exhausted.
type Command struct {
	CommandID string `gorm:"primaryKey;type:text;column:command_id"` // Globally unique id.

	KioskID     string `gorm:"type:text;not null;index"` // Target kiosk.
	CommandType string `gorm:"type:text;not null"`       // Instruction kind, e.g. open_locker.

	Payload datatypes.JSON `gorm:"type:jsonb"` // Opaque structured arguments, stored as-is.

	Status     CommandStatus `gorm:"type:text;not null;default:'pending';index"` // Queue state.
	RetryCount int           `gorm:"not null;default:0"`                         // Failed attempts so far.
	MaxRetries int           `gorm:"not null;default:3"`                         // Attempt ceiling.

	NextAttemptAt time.Time `gorm:"not null;index"` // Earliest time the command is due.
	LastError     *string   `gorm:"type:text"`      // Message from the most recent failure.

	CreatedAt   time.Time  `gorm:"not null;autoCreateTime"` // Enqueue timestamp.
	ExecutedAt  *time.Time // When a kiosk last picked the command up.
	CompletedAt *time.Time // When the command reached a terminal state.
}

// TableName overrides the default table name.
func (Command) TableName() string {
	return "command_queue"
}

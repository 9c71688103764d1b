package db

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultRetryAttempts bounds how often a busy operation is re-run.
	DefaultRetryAttempts = 3
	// DefaultRetryBackoff is the linear backoff step between attempts.
	DefaultRetryBackoff = 100 * time.Millisecond
)

// transientMarkers are the driver messages that identify lock contention.
// Only these are worth re-running; every other error class is a logic or
// fatal storage error and must propagate unchanged.
var transientMarkers = []string{
	"database is locked",
	"database table is locked",
	"sqlite_busy",
	"sqlite_locked",
	"busy_timeout",
	"deadlock detected",
}

// IsTransient reports whether the error is a busy/locked condition that a
// bounded retry can resolve.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// WithRetry runs fn up to attempts times, waiting backoff*n between tries,
// but only while the failure is transient. A nil or non-transient result is
// returned immediately.
func WithRetry(ctx context.Context, op string, attempts int, backoff time.Duration, fn func() error) error {
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !IsTransient(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		log.WithError(err).Warnf("db: %s busy, retrying (attempt %d/%d)", op, attempt, attempts)

		wait := time.Duration(attempt) * backoff
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

package store

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mredag/eformLockerRoom-sub012/internal/db"
)

// newTestStore opens an in-memory database with real migrations. The pool is
// pinned to one connection so every query sees the same in-memory file.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Migrate(conn))
	return New(conn)
}

// freezeNow pins the store clock to a fixed instant and returns it.
func freezeNow(s *Store) time.Time {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	return base
}

// advanceNow moves the frozen clock forward.
func advanceNow(s *Store, base time.Time, d time.Duration) time.Time {
	next := base.Add(d)
	s.now = func() time.Time { return next }
	return next
}

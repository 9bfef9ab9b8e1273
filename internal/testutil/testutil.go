// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sujalbistaa/drops/internal/db"
	"github.com/sujalbistaa/drops/internal/lifecycle"
	"github.com/sujalbistaa/drops/internal/models"
)

// Epoch is the creation time used by seeded Drops unless overridden.
var Epoch = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

// Logger discards output.
func Logger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// NewDB returns a migrated, private in-memory SQLite database.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "sqlite://file:" + uuid.NewString() + "?mode=memory&cache=shared"
	gdb, err := db.Init(dsn, Logger())
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return gdb
}

// SeedDrop inserts a LIVE Drop created at Epoch. mutate may adjust fields
// before insertion.
func SeedDrop(t *testing.T, gdb *gorm.DB, mutate func(*models.Drop)) *models.Drop {
	t.Helper()

	id := uuid.NewString()
	d := &models.Drop{
		ID:              id,
		PublicID:        id[:8],
		Content:         "the quiet library on the third floor is haunted",
		CommunityID:     "college-1",
		AuthorID:        "author-dev",
		Status:          models.StatusLive,
		UnlockThreshold: models.DefaultUnlockThreshold,
		CreatedAt:       Epoch,
	}
	if mutate != nil {
		mutate(d)
	}
	w := lifecycle.ComputeWindow(d.CreatedAt)
	d.ActiveAt, d.ExpiresAt = w.ActiveAt, w.ExpiresAt

	require.NoError(t, gdb.Create(d).Error)
	return d
}

// Fund sets identity's balance to coins.
func Fund(t *testing.T, gdb *gorm.DB, identity string, coins int64) {
	t.Helper()
	require.NoError(t, gdb.Save(&models.Balance{Identity: identity, Coins: coins}).Error)
}

// Coins reads identity's balance, zero when absent.
func Coins(t *testing.T, gdb *gorm.DB, identity string) int64 {
	t.Helper()
	var b models.Balance
	err := gdb.Where("identity = ?", identity).Limit(1).Find(&b).Error
	require.NoError(t, err)
	return b.Coins
}

// Package testutil provides in-memory backends for package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/newsroom/core/internal/database"
	"github.com/newsroom/core/internal/models"
	pkgredis "github.com/newsroom/core/internal/pkg/redis"
	sessionpkg "github.com/newsroom/core/internal/pkg/session"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns a migrated and seeded in-memory SQLite database private to t.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.SeedGroups(db))
	return db
}

// NewRedis starts a miniredis server and returns a client connected to it.
func NewRedis(t testing.TB) (*pkgredis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return pkgredis.New(rdb), mr
}

// CreateUser inserts a user with the given email who belongs to groups.
func CreateUser(t testing.TB, db *gorm.DB, username, email string, groups ...string) *models.UserModel {
	t.Helper()

	u := &models.UserModel{Username: username, Email: email, Password: "unused"}
	require.NoError(t, db.Create(u).Error)
	for _, name := range groups {
		var g models.GroupModel
		require.NoError(t, db.First(&g, "name = ?", name).Error)
		require.NoError(t, db.Model(u).Association("Groups").Append(&g))
	}
	return u
}

// Token opens a session for userID and returns its bearer token.
func Token(t testing.TB, db *gorm.DB, userID string) string {
	t.Helper()

	token, _, err := sessionpkg.Issue(db, userID, "127.0.0.1", "test", time.Hour)
	require.NoError(t, err)
	return token
}

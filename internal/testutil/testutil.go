// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"fmt"
	"testing"

	"quill/internal/database"
	"quill/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns a migrated in-memory SQLite database bound to one connection,
// so every query in a test sees the same schema and rows.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// NewRedis starts a miniredis server and returns it with a connected client.
func NewRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// CreateUser inserts a user with a unique email derived from username.
func CreateUser(t testing.TB, db *gorm.DB, username string, admin bool) *models.User {
	t.Helper()
	u := &models.User{
		Username: username,
		Email:    fmt.Sprintf("%s@example.com", username),
		Password: "x",
		IsAdmin:  admin,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

// CreatePost inserts a post by author with the given status.
func CreatePost(t testing.TB, db *gorm.DB, authorID uint, title string, status models.PostStatus) *models.Post {
	t.Helper()
	p := &models.Post{
		Title:   title,
		Content: "Body of " + title,
		Status:  status,
		UserID:  authorID,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create post %s: %v", title, err)
	}
	return p
}

// Package bootstrap wires the process-wide resources the server and tools share.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"quill/internal/cache"
	"quill/internal/config"
	"quill/internal/database"
	"quill/internal/middleware"
	"quill/internal/models"
	"quill/internal/validation"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	defaultRootUsername = "quill_root"
	defaultRootEmail    = "root@quill.local"
)

// InitRuntime connects to the database and Redis and ensures the configured
// root administrator exists. The Redis client is nil when Redis is unreachable.
func InitRuntime(ctx context.Context, cfg *config.Config) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	if err := EnsureRootAdmin(ctx, cfg, db); err != nil {
		return nil, nil, fmt.Errorf("failed to bootstrap root admin: %w", err)
	}

	return db, r, nil
}

// EnsureRootAdmin creates the ROOT_ADMIN_* account, or promotes it when the
// username already exists. Nothing happens unless a password is configured.
func EnsureRootAdmin(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil || cfg.RootAdminPassword == "" {
		return nil
	}

	username := strings.TrimSpace(cfg.RootAdminUsername)
	if username == "" {
		username = defaultRootUsername
	}
	email := strings.TrimSpace(strings.ToLower(cfg.RootAdminEmail))
	if email == "" {
		email = defaultRootEmail
	}
	if err := validation.ValidatePassword(cfg.RootAdminPassword); err != nil && cfg.IsProduction() {
		return fmt.Errorf("ROOT_ADMIN_PASSWORD: %w", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(cfg.RootAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash root password: %w", err)
	}

	created := false
	var promoted uint
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var root models.User
		findErr := tx.Where("username = ?", username).First(&root).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			created = true
			return tx.Create(&models.User{
				Username: username,
				Email:    email,
				Password: string(hashedPassword),
				IsAdmin:  true,
			}).Error
		case findErr != nil:
			return findErr
		case root.IsAdmin:
			return nil
		default:
			promoted = root.ID
			return tx.Model(&models.User{}).Where("id = ?", root.ID).Update("is_admin", true).Error
		}
	})
	if err != nil {
		return err
	}

	if promoted != 0 {
		cache.Invalidate(ctx, cache.UserKey(promoted))
	}
	middleware.Logger.Info("root admin ensured", "username", username, "created", created)
	return nil
}

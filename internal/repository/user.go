// Package repository is the gorm data access layer. Lookups return
// *models.AppError so handlers can map them straight to HTTP statuses.
package repository

import (
	"context"
	"errors"
	"strings"

	"quill/internal/cache"
	"quill/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// UserRepository stores accounts.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	SetAdmin(ctx context.Context, id uint, admin bool) error
	ListAdmins(ctx context.Context) ([]*models.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns the gorm-backed UserRepository. GetByID is
// served from the Redis cache when one is configured.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	load := func() error {
		return userLookupErr(r.db.WithContext(ctx).First(&user, id).Error, id)
	}
	if err := cache.Aside(ctx, cache.UserKey(id), &user, cache.UserTTL, load); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail matches case-insensitively; emails are stored lowercased.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, "username", strings.TrimSpace(username))
}

func (r *userRepository) findOne(ctx context.Context, column, value string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where(map[string]any{column: value}).Take(&user).Error
	if err != nil {
		return nil, userLookupErr(err, value)
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return models.NewConflictError("Username or email already in use")
	default:
		return models.NewInternalError(err)
	}
}

// SetAdmin flips the admin bit and evicts the cached copy.
func (r *userRepository) SetAdmin(ctx context.Context, id uint, admin bool) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("is_admin", admin)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	cache.Invalidate(ctx, cache.UserKey(id))
	return nil
}

// ListAdmins returns every administrator ordered by id.
func (r *userRepository) ListAdmins(ctx context.Context) ([]*models.User, error) {
	var admins []*models.User
	if err := r.db.WithContext(ctx).Where("is_admin = ?", true).Order("id").Find(&admins).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return admins, nil
}

func userLookupErr(err error, key any) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return models.NewNotFoundError("User", key)
	default:
		return models.NewInternalError(err)
	}
}

// isUniqueViolation recognizes duplicate keys from PostgreSQL (SQLSTATE
// 23505), gorm's translated error and SQLite's message.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr):
		return pgErr.Code == "23505"
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return true
	default:
		return strings.Contains(err.Error(), "UNIQUE constraint failed")
	}
}

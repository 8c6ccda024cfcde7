package bootstrap

import (
	"context"
	"testing"

	"quill/internal/config"
	"quill/internal/models"
	"quill/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestEnsureRootAdmin_CreatesAccount(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := &config.Config{
		RootAdminUsername: "chief",
		RootAdminEmail:    "Chief@Example.com",
		RootAdminPassword: "Root-Password-99",
	}

	require.NoError(t, EnsureRootAdmin(context.Background(), cfg, db))
	require.NoError(t, EnsureRootAdmin(context.Background(), cfg, db), "second run is a no-op")

	var users []models.User
	require.NoError(t, db.Where("username = ?", "chief").Find(&users).Error)
	require.Len(t, users, 1)
	assert.True(t, users[0].IsAdmin)
	assert.Equal(t, "chief@example.com", users[0].Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(users[0].Password), []byte("Root-Password-99")))
}

func TestEnsureRootAdmin_PromotesExistingUser(t *testing.T) {
	db := testutil.NewDB(t)
	existing := testutil.CreateUser(t, db, "chief", false)

	cfg := &config.Config{RootAdminUsername: "chief", RootAdminPassword: "Root-Password-99"}
	require.NoError(t, EnsureRootAdmin(context.Background(), cfg, db))

	var reloaded models.User
	require.NoError(t, db.First(&reloaded, existing.ID).Error)
	assert.True(t, reloaded.IsAdmin)
	assert.Equal(t, existing.Password, reloaded.Password, "credentials are left alone")
}

func TestEnsureRootAdmin_Skipped(t *testing.T) {
	db := testutil.NewDB(t)

	require.NoError(t, EnsureRootAdmin(context.Background(), &config.Config{}, db))
	require.NoError(t, EnsureRootAdmin(context.Background(), nil, db))

	var n int64
	require.NoError(t, db.Model(&models.User{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestEnsureRootAdmin_WeakPasswordInProduction(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := &config.Config{Env: "production", RootAdminPassword: "weak"}

	assert.Error(t, EnsureRootAdmin(context.Background(), cfg, db))

	cfg.Env = "development"
	assert.NoError(t, EnsureRootAdmin(context.Background(), cfg, db))
}

package service

import (
	"context"
	"testing"

	"quill/internal/models"
	"quill/internal/repository"
	"quill/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const strongPassword = "Correct-Horse-42"

func newUserService(t *testing.T) *UserService {
	t.Helper()
	svc := NewUserService(repository.NewUserRepository(testutil.NewDB(t)))
	svc.bcryptCost = bcrypt.MinCost
	return svc
}

func TestUserService_Signup_Validation(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input SignupInput
	}{
		{"missing username", SignupInput{Email: "a@example.com", Password: strongPassword}},
		{"bad username", SignupInput{Username: "no spaces", Email: "a@example.com", Password: strongPassword}},
		{"bad email", SignupInput{Username: "reader", Email: "not-an-email", Password: strongPassword}},
		{"weak password", SignupInput{Username: "reader", Email: "a@example.com", Password: "password"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Signup(ctx, tc.input)
			assertValidationError(t, err)
		})
	}
}

func TestUserService_SignupAndAuthenticate(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	user, err := svc.Signup(ctx, SignupInput{Username: "reader", Email: "  Reader@Example.com ", Password: strongPassword})
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.Equal(t, "reader@example.com", user.Email)
	assert.NotEqual(t, strongPassword, user.Password)

	_, err = svc.Signup(ctx, SignupInput{Username: "reader", Email: "other@example.com", Password: strongPassword})
	assertCode(t, err, models.CodeConflict)

	got, err := svc.Authenticate(ctx, "READER@example.com", strongPassword)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = svc.Authenticate(ctx, "reader@example.com", "Wrong-Password-1")
	assertCode(t, err, models.CodeUnauthorized)
	_, err = svc.Authenticate(ctx, "nobody@example.com", strongPassword)
	assertCode(t, err, models.CodeUnauthorized)
	_, err = svc.Authenticate(ctx, "", "")
	assertCode(t, err, models.CodeUnauthorized)
}

func TestUserService_SetAdminAndIsAdmin(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	user, err := svc.Signup(ctx, SignupInput{Username: "editor", Email: "editor@example.com", Password: strongPassword})
	require.NoError(t, err)

	admin, err := svc.IsAdmin(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, admin)

	promoted, err := svc.SetAdmin(ctx, user.ID, true)
	require.NoError(t, err)
	assert.True(t, promoted.IsAdmin)

	admin, err = svc.IsAdmin(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, admin)

	admin, err = svc.IsAdmin(ctx, 0)
	require.NoError(t, err)
	assert.False(t, admin)
	admin, err = svc.IsAdmin(ctx, 12345)
	require.NoError(t, err)
	assert.False(t, admin)

	_, err = svc.SetAdmin(ctx, 12345, true)
	assertCode(t, err, models.CodeNotFound)
}

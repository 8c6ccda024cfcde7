package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"quill/internal/cache"
	"quill/internal/config"
	"quill/internal/models"
	"quill/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "test-secret-that-is-long-enough-for-hs256"

type testEnv struct {
	srv *Server
	app *fiber.App
	db  *gorm.DB
	mr  *miniredis.Miniredis
	rdb *redis.Client
}

func newTestEnv(t *testing.T, flags ...string) *testEnv {
	t.Helper()

	db := testutil.NewDB(t)
	mr, rdb := testutil.NewRedis(t)
	cache.SetClient(rdb)
	t.Cleanup(func() { cache.SetClient(nil) })

	cfg := &config.Config{
		JWTSecret:     testSecret,
		Env:           "test",
		FeatureFlags:  "reaction_broadcast=on",
		PostsPageSize: 6,
	}
	if len(flags) > 0 {
		cfg.FeatureFlags = flags[0]
	}

	srv, err := NewServerWithDeps(cfg, db, rdb)
	require.NoError(t, err)
	return &testEnv{srv: srv, app: srv.App(), db: db, mr: mr, rdb: rdb}
}

func (e *testEnv) token(t *testing.T, u *models.User) string {
	t.Helper()
	tok, err := e.srv.issueToken(u.ID, u.Username)
	require.NoError(t, err)
	return tok
}

// do sends a request through the full middleware stack and returns the
// status and raw body.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func decode(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	return out
}

func signed(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestAuthRequired_RejectsBadCredentials(t *testing.T) {
	e := newTestEnv(t)
	author := testutil.CreateUser(t, e.db, "author", true)
	post := testutil.CreatePost(t, e.db, author.ID, "Guarded", models.PostStatusPublished)
	path := "/post/" + strconv.Itoa(int(post.ID)) + "/like/"

	valid := func() jwt.MapClaims {
		now := time.Now()
		return jwt.MapClaims{
			"sub": strconv.Itoa(int(author.ID)),
			"iss": tokenIssuer,
			"aud": tokenAudience,
			"exp": now.Add(time.Hour).Unix(),
			"iat": now.Unix(),
		}
	}
	expired := valid()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	wrongAudience := valid()
	wrongAudience["aud"] = "someone-else"
	wrongIssuer := valid()
	wrongIssuer["iss"] = "someone-else"
	noSubject := valid()
	delete(noSubject, "sub")

	tests := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"garbage token", "not.a.jwt"},
		{"foreign secret", signed(t, "another-secret-entirely-different", valid())},
		{"expired", signed(t, testSecret, expired)},
		{"wrong audience", signed(t, testSecret, wrongAudience)},
		{"wrong issuer", signed(t, testSecret, wrongIssuer)},
		{"no subject", signed(t, testSecret, noSubject)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, raw := e.do(t, http.MethodPost, path, tt.token, nil)
			assert.Equal(t, http.StatusUnauthorized, status)
			assert.Equal(t, models.CodeUnauthorized, decode(t, raw)["code"])
		})
	}

	var likes int64
	require.NoError(t, e.db.Model(&models.Like{}).Count(&likes).Error)
	assert.Zero(t, likes, "rejected callers must not reach the reaction engine")

	status, _ := e.do(t, http.MethodPost, path, signed(t, testSecret, valid()), nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestLogout_RevokesToken(t *testing.T) {
	e := newTestEnv(t)
	alice := testutil.CreateUser(t, e.db, "alice", false)
	tok := e.token(t, alice)

	status, _ := e.do(t, http.MethodGet, "/api/users/me", tok, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = e.do(t, http.MethodPost, "/api/auth/logout", tok, nil)
	require.Equal(t, http.StatusOK, status)

	status, raw := e.do(t, http.MethodGet, "/api/users/me", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Token has been revoked", decode(t, raw)["error"])

	keys := e.mr.Keys()
	var blacklisted []string
	for _, k := range keys {
		if strings.HasPrefix(k, "blacklist:") {
			blacklisted = append(blacklisted, k)
		}
	}
	require.Len(t, blacklisted, 1)
	assert.Greater(t, e.mr.TTL(blacklisted[0]), 7*24*time.Hour-time.Minute)
}

func TestAuthRequired_WSTicketIsSingleUse(t *testing.T) {
	e := newTestEnv(t)
	alice := testutil.CreateUser(t, e.db, "alice", false)

	status, raw := e.do(t, http.MethodPost, "/api/ws/ticket", e.token(t, alice), nil)
	require.Equal(t, http.StatusOK, status)
	body := decode(t, raw)
	ticket, _ := body["ticket"].(string)
	require.NotEmpty(t, ticket)
	assert.Equal(t, float64(30), body["expires_in"])
	assert.True(t, e.mr.Exists(cache.WSTicketKey(ticket)))

	status, raw = e.do(t, http.MethodGet, "/api/users/me?ticket="+ticket, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", decode(t, raw)["username"])
	assert.False(t, e.mr.Exists(cache.WSTicketKey(ticket)), "ticket is consumed on use")

	status, _ = e.do(t, http.MethodGet, "/api/users/me?ticket="+ticket, "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestWSTicket_IssuedForBearerButUpgradeNeedsTicket(t *testing.T) {
	e := newTestEnv(t)
	alice := testutil.CreateUser(t, e.db, "alice", false)
	tok := e.token(t, alice)

	for _, path := range []string{"/api/ws/ticket", "/api/ws/ticket/"} {
		status, raw := e.do(t, http.MethodPost, path, tok, nil)
		require.Equal(t, http.StatusOK, status, path)
		assert.NotEmpty(t, decode(t, raw)["ticket"])
	}

	status, _ := e.do(t, http.MethodPost, "/api/ws/ticket", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	for _, path := range []string{"/api/ws", "/api/ws/"} {
		status, _ = e.do(t, http.MethodGet, path, tok, nil)
		assert.Equal(t, http.StatusUnauthorized, status, "%s accepts tickets only", path)
	}
}

func TestSignupAndLogin(t *testing.T) {
	e := newTestEnv(t)
	signup := map[string]string{
		"username": "newcomer",
		"email":    "Newcomer@Example.com",
		"password": "Correct-Horse-42",
	}

	status, raw := e.do(t, http.MethodPost, "/api/auth/signup", "", signup)
	require.Equal(t, http.StatusCreated, status, "body: %s", raw)
	body := decode(t, raw)
	assert.NotEmpty(t, body["token"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "newcomer", user["username"])
	assert.NotContains(t, user, "password")

	status, _ = e.do(t, http.MethodPost, "/api/auth/signup", "", signup)
	assert.Equal(t, http.StatusConflict, status)

	weak := map[string]string{"username": "weakling", "email": "weak@example.com", "password": "short"}
	status, _ = e.do(t, http.MethodPost, "/api/auth/signup", "", weak)
	assert.Equal(t, http.StatusBadRequest, status)

	status, raw = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "newcomer@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid credentials", decode(t, raw)["error"])

	status, raw = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "newcomer@example.com", "password": "Correct-Horse-42",
	})
	require.Equal(t, http.StatusOK, status)
	tok, _ := decode(t, raw)["token"].(string)
	require.NotEmpty(t, tok)

	status, raw = e.do(t, http.MethodGet, "/api/users/me", tok, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "newcomer", decode(t, raw)["username"])
}

func TestPromoteToAdmin_RequiresAdmin(t *testing.T) {
	e := newTestEnv(t)
	root := testutil.CreateUser(t, e.db, "root", true)
	alice := testutil.CreateUser(t, e.db, "alice", false)
	path := "/api/users/" + strconv.Itoa(int(alice.ID)) + "/promote-admin"

	status, raw := e.do(t, http.MethodPost, path, e.token(t, alice), nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, models.CodeForbidden, decode(t, raw)["code"])

	status, raw = e.do(t, http.MethodPost, path, e.token(t, root), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, decode(t, raw)["user"].(map[string]any)["is_admin"])

	status, _ = e.do(t, http.MethodPost, "/api/users/9999/promote-admin", e.token(t, root), nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHealthChecks(t *testing.T) {
	e := newTestEnv(t)

	status, _ := e.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, raw := e.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, status)
	checks := decode(t, raw)["checks"].(map[string]any)
	assert.Equal(t, "healthy", checks["database"])
	assert.Equal(t, "healthy", checks["redis"])

	e.mr.SetError("LOADING")
	defer e.mr.SetError("")
	status, raw = e.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "unhealthy", decode(t, raw)["status"])
}

func TestGetFeatureFlags(t *testing.T) {
	e := newTestEnv(t, "reaction_broadcast=off,beta_feed=100%")

	status, raw := e.do(t, http.MethodGet, "/api/feature-flags", "", nil)
	require.Equal(t, http.StatusOK, status)

	var body struct {
		UserID uint              `json:"user_id"`
		Flags  []featureFlagView `json:"flags"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Zero(t, body.UserID)
	assert.Equal(t, []featureFlagView{
		{Name: "beta_feed", Value: "100%", Enabled: true},
		{Name: "reaction_broadcast", Value: "off", Enabled: false},
	}, body.Flags)
}

func TestGetFeatureFlags_PartialRolloutNeedsUser(t *testing.T) {
	e := newTestEnv(t, "half=50%")

	_, raw := e.do(t, http.MethodGet, "/api/feature-flags", "", nil)
	var body struct {
		Flags []featureFlagView `json:"flags"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	for _, f := range body.Flags {
		if f.Name == "half" {
			assert.False(t, f.Enabled)
			return
		}
	}
	t.Fatal("half flag missing from listing")
}

func TestNewServerWithDeps_RequiresDatabase(t *testing.T) {
	_, err := NewServerWithDeps(&config.Config{JWTSecret: testSecret}, nil, nil)
	assert.Error(t, err)
}

package server

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"quill/internal/cache"
	"quill/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenIssuer   = "quill-api"
	tokenAudience = "quill-client"
	tokenTTL      = 7 * 24 * time.Hour
)

var (
	errNoCredentials = models.NewUnauthorizedError("Authorization required")
	errBadToken      = models.NewUnauthorizedError("Invalid or expired token")
	errBadSubject    = models.NewUnauthorizedError("Invalid user ID in token")
	errRevoked       = models.NewUnauthorizedError("Token has been revoked")
	errBadTicket     = models.NewUnauthorizedError("Invalid or expired WebSocket ticket")
)

// sessionClaims is the payload of an access token. ID (jti) is what logout
// revokes.
type sessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// userID parses the numeric subject.
func (c *sessionClaims) userID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 32)
	if err != nil || id == 0 {
		return 0, errBadSubject
	}
	return uint(id), nil
}

// issueToken signs a fresh access token for the user.
func (s *Server) issueToken(userID uint, username string) (string, error) {
	if s.config.JWTSecret == "" {
		return "", errors.New("JWT secret not configured")
	}

	now := time.Now()
	claims := sessionClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.JWTSecret))
}

// verifyToken checks signature, issuer, audience, expiry and revocation and
// returns the claims with the caller's id.
func (s *Server) verifyToken(ctx context.Context, raw string) (*sessionClaims, uint, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(s.config.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, 0, errBadToken
	}

	userID, err := claims.userID()
	if err != nil {
		return nil, 0, err
	}
	if s.isRevoked(ctx, claims.ID) {
		return nil, 0, errRevoked
	}
	return claims, userID, nil
}

// isRevoked reports whether logout blacklisted jti. Without Redis nothing
// can be revoked.
func (s *Server) isRevoked(ctx context.Context, jti string) bool {
	if jti == "" || s.redis == nil {
		return false
	}
	n, err := s.redis.Exists(ctx, cache.BlacklistKey(jti)).Result()
	return err == nil && n > 0
}

// revoke blacklists the token until shortly after it would have expired.
func (s *Server) revoke(ctx context.Context, claims *sessionClaims) error {
	ttl := cache.BlacklistSlop
	if claims.ExpiresAt != nil {
		ttl += time.Until(claims.ExpiresAt.Time)
	}
	return s.redis.Set(ctx, cache.BlacklistKey(claims.ID), "1", ttl).Err()
}

// redeemTicket consumes a websocket ticket. Tickets work exactly once.
func (s *Server) redeemTicket(ctx context.Context, ticket string) (uint, bool) {
	if s.redis == nil {
		return 0, false
	}
	raw, err := s.redis.GetDel(ctx, cache.WSTicketKey(ticket)).Result()
	if err != nil {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func bearerToken(c *fiber.Ctx) string {
	scheme, token, ok := strings.Cut(c.Get(fiber.HeaderAuthorization), " ")
	if !ok || scheme != "Bearer" {
		return ""
	}
	return strings.TrimSpace(token)
}

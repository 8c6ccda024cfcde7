package server

import (
	"strings"

	"quill/internal/middleware"
	"quill/internal/models"

	"github.com/gofiber/fiber/v2"
)

// wsUpgradePath is the only route that authenticates by ticket alone.
const wsUpgradePath = "/api/ws"

// AuthRequired rejects anonymous requests with 401. The websocket upgrade at
// /api/ws must present a ticket; every other route, /api/ws/ticket included,
// also accepts a Bearer JWT.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := s.resolveCaller(c)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized, err)
		}
		s.authenticate(c, userID)
		return c.Next()
	}
}

func (s *Server) resolveCaller(c *fiber.Ctx) (uint, error) {
	wsUpgrade := strings.TrimSuffix(c.Path(), "/") == wsUpgradePath

	if ticket := c.Query("ticket"); ticket != "" && s.redis != nil {
		if userID, ok := s.redeemTicket(c.UserContext(), ticket); ok {
			return userID, nil
		}
		if wsUpgrade {
			return 0, errBadTicket
		}
	}
	if wsUpgrade {
		return 0, errNoCredentials
	}

	raw := bearerToken(c)
	if raw == "" {
		return 0, errNoCredentials
	}
	claims, userID, err := s.verifyToken(c.UserContext(), raw)
	if err != nil {
		return 0, err
	}
	c.Locals("claims", claims)
	return userID, nil
}

// authenticate records the caller in locals and in the user context so
// logs and services see it.
func (s *Server) authenticate(c *fiber.Ctx, userID uint) {
	c.Locals("userID", userID)
	c.SetUserContext(middleware.WithUserID(c.UserContext(), userID))
}

// optionalUserID identifies the caller on public routes. Missing, invalid and
// revoked tokens all read as anonymous (0).
func (s *Server) optionalUserID(c *fiber.Ctx) uint {
	raw := bearerToken(c)
	if raw == "" {
		return 0
	}
	_, userID, err := s.verifyToken(c.UserContext(), raw)
	if err != nil {
		return 0
	}
	return userID
}

// AdminRequired answers 403 unless the authenticated caller is an admin.
// It goes after AuthRequired.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		admin, err := s.userService.IsAdmin(c.UserContext(), currentUserID(c))
		if err != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError, err)
		}
		if !admin {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Admin access required"))
		}
		return c.Next()
	}
}

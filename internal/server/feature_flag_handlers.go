package server

import (
	"sort"

	"github.com/gofiber/fiber/v2"
)

type featureFlagView struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
}

// GetFeatureFlags lists every configured flag with its value and whether it
// is on for the caller. Anonymous callers never land in a partial rollout.
// @Summary Feature flags
// @Tags flags
// @Produce json
// @Success 200 {object} object{user_id=int,flags=[]featureFlagView}
// @Router /api/feature-flags [get]
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	userID := s.optionalUserID(c)

	raw := s.featureFlags.Raw()
	state := s.featureFlags.Snapshot(userID)
	flags := make([]featureFlagView, 0, len(raw))
	for name, value := range raw {
		flags = append(flags, featureFlagView{
			Name:    name,
			Value:   value,
			Enabled: state[name],
		})
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i].Name < flags[j].Name })

	return c.JSON(fiber.Map{"user_id": userID, "flags": flags})
}

package server

import (
	"encoding/json"
	"strconv"

	"quill/internal/cache"
	"quill/internal/middleware"
	"quill/internal/models"
	"quill/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// IssueWSTicket handles POST /api/ws/ticket. Browsers cannot set headers on
// websocket upgrades, so clients trade their token for a short-lived,
// single-use ticket passed as ?ticket=.
// @Summary Issue websocket ticket
// @Tags realtime
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{ticket=string,expires_in=int}
// @Failure 503 {object} models.ErrorResponse
// @Router /api/ws/ticket [post]
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	if s.redis == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
			Error: "Realtime updates are temporarily unavailable",
		})
	}

	ticket := uuid.NewString()
	userID := strconv.FormatUint(uint64(currentUserID(c)), 10)
	if err := s.redis.Set(c.UserContext(), cache.WSTicketKey(ticket), userID, cache.WSTicketTTL).Err(); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"ticket":     ticket,
		"expires_in": int(cache.WSTicketTTL.Seconds()),
	})
}

// WebsocketHandler returns a websocket handler that registers connections with the Hub.
// Authentication is handled by route middleware and userID is read from connection locals.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		uid, ok := conn.Locals("userID").(uint)
		if !ok || uid == 0 {
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(uid, conn)
		if err != nil {
			middleware.Logger.Warn("websocket registration rejected", "user_id", uid, "error", err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		if hello, err := (notifications.Event{
			Type:    "connected",
			Payload: fiber.Map{"user_id": uid},
		}).Encode(); err == nil {
			client.TrySend([]byte(hello))
		}

		client.Serve(handleClientFrame)
	})
}

// handleClientFrame answers {"type":"ping"} with a pong event so clients can
// probe the connection. Anything else is ignored.
func handleClientFrame(client *notifications.Client, frame []byte) {
	var msg struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(frame, &msg) != nil || msg.Type != "ping" {
		return
	}
	if pong, err := (notifications.Event{Type: "pong", Payload: nil}).Encode(); err == nil {
		client.TrySend([]byte(pong))
	}
}

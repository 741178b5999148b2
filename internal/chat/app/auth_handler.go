package app

import (
	"context"
	"time"

	"group_chat_service/pkg/logger"
	"group_chat_service/pkg/middlewares"
	"group_chat_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TokenRevoker token 黑名單寫入
type TokenRevoker interface {
	Revoke(ctx context.Context, token string, userID int64, ttl time.Duration) error
}

// AuthHandler logout
type AuthHandler struct {
	revoker TokenRevoker
	hub     *Hub
}

// NewAuthHandler create AuthHandler
func NewAuthHandler(revoker TokenRevoker, hub *Hub) *AuthHandler {
	return &AuthHandler{revoker: revoker, hub: hub}
}

// Logout 將目前 token 列入黑名單並關閉該使用者的即時連線
// @Summary Logout
// @Description Revoke the presented token and close the user's live sessions
// @Tags Shared
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /logout [post]
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	userID, ok := middlewares.UserID(c)
	raw, _ := c.Locals(middlewares.TokenRaw).(string)
	claims, _ := c.Locals(middlewares.TokenClaims).(*token.Claims)
	if !ok || raw == "" || claims == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	if err := h.revoker.Revoke(c.UserContext(), raw, userID, token.ExpiresIn(claims)); err != nil {
		logger.Log.Error("revoke token", zap.Int64("user_id", userID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to logout"})
	}

	closed := h.hub.CloseUser(userID)
	return c.JSON(fiber.Map{
		"message":         "Logged out",
		"closed_sessions": closed,
	})
}

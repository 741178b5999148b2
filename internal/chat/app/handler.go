package app

import (
	"fmt"
	"strconv"

	"group_chat_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// HealthHandler status endpoints
type HealthHandler struct {
	hub *Hub
}

// NewHealthHandler create HealthHandler
func NewHealthHandler(hub *Hub) *HealthHandler {
	return &HealthHandler{hub: hub}
}

// Health check chat service status
// @Summary Check chat service status
// @Description Returns live room count
// @Tags Shared
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"rooms":  h.hub.RoomCount(),
	})
}

// DebugLogFlag toggle debug log flag
// @Summary Toggle Debug Log Flag
// @Description Enable or disable debug logging
// @Tags Shared
// @Param status query bool true "Debug status"
// @Success 200 {string} string "debug mode updated"
// @Failure 400 {string} string "Invalid status value"
// @Failure 403 {object} map[string]string "admin role required"
// @Security BearerAuth
// @Router /debug [post]
func DebugLogFlag(c *fiber.Ctx) error {
	statusStr := c.Query("status")
	status, err := strconv.ParseBool(statusStr)
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	logger.Log.Info("debug", zap.Bool("status", status))
	logger.Log.SetDebugMode(status)
	return c.SendString(fmt.Sprintf("debug mode is : %t", status))
}

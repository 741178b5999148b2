package router

import (
	"context"
	"strconv"
	"time"

	"group_chat_service/internal/chat/app"
	"group_chat_service/pkg/middlewares"
	"group_chat_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/swagger"
	"github.com/gofiber/websocket/v2"
)

// Handlers chat service handlers
type Handlers struct {
	Websocket *app.ChatWebsocketHandler
	Message   *app.MessageHandler
	Health    *app.HealthHandler
	Auth      *app.AuthHandler
	// Revoked token blacklist, nil 時不檢查
	Revoked middlewares.RevokedChecker
	// PostLimit 每位使用者每分鐘可送出的訊息數, 0 不限制
	PostLimit int
}

// RegisterRoutes 注册聊天相关的路由
// @title Group Chat Service API
// @version 1.0
// @description Real-time group messaging: history, send, edit, delete and websocket fan-out
// @host localhost:8082
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func RegisterRoutes(r *fiber.App, h Handlers) {
	r.Get("/swagger/*", swagger.HandlerDefault)
	r.Get("/health", h.Health.Health)

	auth := r.Group("", middlewares.JWTMiddleware(h.Revoked))
	auth.Post("/debug", middlewares.RequireRole(token.RoleAdmin), app.DebugLogFlag)
	auth.Post("/logout", h.Auth.Logout)

	auth.Get("/ws", h.Websocket.Upgrade, websocket.New(func(c *websocket.Conn) {
		h.Websocket.HandleConnection(context.Background(), c)
	}))

	groups := auth.Group("/groups/:groupId/messages")
	groups.Get("/", h.Message.History)
	if h.PostLimit > 0 {
		groups.Post("/", postLimiter(h.PostLimit), h.Message.Send)
	} else {
		groups.Post("/", h.Message.Send)
	}
	groups.Patch("/:messageId", h.Message.Edit)
	groups.Delete("/:messageId", h.Message.Delete)
}

func postLimiter(max int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			if id, ok := middlewares.UserID(c); ok {
				return "user:" + strconv.FormatInt(id, 10)
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Too many messages"})
		},
	})
}

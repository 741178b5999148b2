package main

import (
	"group_chat_service/internal/chat/router"

	"github.com/gofiber/fiber/v2"
)

// 此程式僅供 swag 產生文件, 路由不接任何後端
// swag init -g main.go -o ./cmd/chat_service/docs
func main() {
	app := fiber.New()

	router.RegisterRoutes(app, router.Handlers{})
}

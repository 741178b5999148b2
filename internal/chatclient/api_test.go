package chatclient

import (
	"context"
	"net"
	"testing"
	"time"

	"group_chat_service/internal/chat/domain"
	"group_chat_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startFakeREST(t *testing.T, register func(app *fiber.App)) string {
	t.Helper()
	logger.SetNewNop()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	register(app)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "http://" + ln.Addr().String()
}

func TestAPI_HistoryAndSend(t *testing.T) {
	base := startFakeREST(t, func(app *fiber.App) {
		app.Get("/groups/:groupId/messages", func(c *fiber.Ctx) error {
			if c.Get(fiber.HeaderAuthorization) != "Bearer tok" {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "No token provided"})
			}
			return c.JSON([]fiber.Map{{"id": "a", "group_id": 5, "text": "hi", "sent_at": "2026-01-02T03:04:05Z"}})
		})
		app.Post("/groups/:groupId/messages", func(c *fiber.Ctx) error {
			var body sendBody
			if err := c.BodyParser(&body); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad"})
			}
			return c.JSON(fiber.Map{"id": "m1", "group_id": 5, "text": body.Text, "client_ref": body.ClientRef})
		})
		app.Delete("/groups/:groupId/messages/:messageId", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"message": "Message deleted"})
		})
	})
	api := NewAPI(base + "/")
	ctx := context.Background()

	history, err := api.History(ctx, "tok", 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].Text)

	_, err = api.History(ctx, "wrong", 5)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	msg, err := api.Send(ctx, "tok", 5, "hello", "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "ref-1", msg.ClientRef)

	assert.NoError(t, api.Delete(ctx, "tok", 5, "m1"))
}

func TestAPI_StatusMapping(t *testing.T) {
	statuses := map[string]int{
		"bad":       fiber.StatusBadRequest,
		"forbidden": fiber.StatusForbidden,
		"missing":   fiber.StatusNotFound,
		"limited":   fiber.StatusTooManyRequests,
		"broken":    fiber.StatusInternalServerError,
	}
	base := startFakeREST(t, func(app *fiber.App) {
		app.Patch("/groups/:groupId/messages/:messageId", func(c *fiber.Ctx) error {
			return c.Status(statuses[c.Params("messageId")]).JSON(fiber.Map{"error": c.Params("messageId")})
		})
	})
	api := NewAPI(base)
	ctx := context.Background()

	cases := map[string]error{
		"bad":       domain.ErrInvalidArgument,
		"forbidden": domain.ErrUnauthorized,
		"missing":   domain.ErrNotFound,
		"limited":   domain.ErrPersistenceFailure,
		"broken":    domain.ErrPersistenceFailure,
	}
	for id, want := range cases {
		_, err := api.Edit(ctx, "tok", 1, id, "x")
		assert.ErrorIs(t, err, want, id)
	}
}

func TestAPI_TransportFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	api := NewAPI("http://" + addr)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = api.History(ctx, "tok", 1)
	assert.ErrorIs(t, err, domain.ErrTransportFailure)

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	_, err = api.Send(cancelled, "tok", 1, "x", "")
	assert.ErrorIs(t, err, domain.ErrTransportFailure)
}

// ctx 取消時不等慢速 server 回應
func TestAPI_CancelAbortsSlowRequest(t *testing.T) {
	base := startFakeREST(t, func(app *fiber.App) {
		app.Post("/groups/:groupId/messages", func(c *fiber.Ctx) error {
			time.Sleep(2 * time.Second)
			return c.JSON(fiber.Map{"id": "late"})
		})
	})
	api := NewAPI(base)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := api.Send(ctx, "tok", 1, "hello", "ref")
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, err, domain.ErrTransportFailure)
	assert.ErrorIs(t, err, context.Canceled)
}

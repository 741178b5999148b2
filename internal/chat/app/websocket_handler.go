package app

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"group_chat_service/internal/chat/domain"
	"group_chat_service/internal/chat/repository"
	"group_chat_service/pkg"
	"group_chat_service/pkg/logger"
	"group_chat_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// localsIdentity upgrade 前解析好的 identity
const localsIdentity = "identity"

// WebsocketConfig connection tuning
type WebsocketConfig struct {
	SendBuffer     int
	PingInterval   time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	AllowedOrigins []string
}

// ChatWebsocketHandler realtime 連線入口
type ChatWebsocketHandler struct {
	hub      *Hub
	userRepo repository.UserRepository
	cfg      WebsocketConfig
}

// NewChatWebsocketHandler create ChatWebsocketHandler
func NewChatWebsocketHandler(hub *Hub, userRepo repository.UserRepository, cfg WebsocketConfig) *ChatWebsocketHandler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}
	return &ChatWebsocketHandler{hub: hub, userRepo: userRepo, cfg: cfg}
}

// Upgrade 握手: 檢查 origin 與 identity, 失敗在 upgrade 前就回 4xx
func (h *ChatWebsocketHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	if origin := c.Get(fiber.HeaderOrigin); !pkg.OriginAllowed(h.cfg.AllowedOrigins, origin) {
		logger.Log.Warn("reject websocket origin", zap.String("origin", origin))
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "origin not allowed"})
	}

	userID, ok := middlewares.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	identity, err := h.userRepo.FindByID(c.UserContext(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrAuthRejected) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unknown user"})
		}
		logger.Log.Error("resolve identity", zap.Int64("user_id", userID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to resolve user"})
	}

	c.Locals(localsIdentity, *identity)
	return c.Next()
}

// HandleConnection 是 WebSocket 連線的進入點
func (h *ChatWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	s := NewSession(conn.RemoteAddr().String(), h.cfg.SendBuffer)
	identity, _ := conn.Locals(localsIdentity).(domain.Identity)
	if err := s.Authenticate(identity); err != nil {
		logger.Log.Warn("websocket auth rejected", zap.String("remote", s.RemoteAddr), zap.Error(err))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication rejected"))
		conn.Close()
		return
	}
	if err := h.hub.Register(s); err != nil {
		conn.Close()
		return
	}
	logger.Log.Info("websocket open", zap.String("session", s.ID), zap.Int64("user_id", identity.ID))

	ctxClose, cancel := context.WithCancel(ctx)
	pumpDone := make(chan struct{})
	defer func() {
		h.hub.LeaveAll(s)
		s.Close()
		cancel()
		conn.Close()
		// conn 在 handler 回傳後會被 fiber 回收
		<-pumpDone
		logger.Log.Info("websocket close", zap.String("session", s.ID), zap.Int64("user_id", identity.ID))
	}()

	pongWait := h.cfg.PingInterval * 2
	conn.SetReadLimit(h.cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	//server發出ping之後client連線正常會回pong
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		defer close(pumpDone)
		h.writePump(ctxClose, conn, s)
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Warn("websocket read error", zap.String("session", s.ID), zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if mt != websocket.TextMessage {
			h.sendError(s, "unsupported message type")
			continue
		}
		h.textMessageAction(ctxClose, s, message)
	}
}

// writePump 唯一寫入 conn 的 goroutine
func (h *ChatWebsocketHandler) writePump(ctx context.Context, conn *websocket.Conn, s *Session) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-s.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if !ok {
				// session 被關閉 (踢出或 shutdown)
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				conn.Close()
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Log.Warn("websocket write error", zap.String("session", s.ID), zap.Error(err))
				conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteWait)); err != nil {
				logger.Log.Debug("ping failed", zap.String("session", s.ID), zap.Error(err))
				conn.Close()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *ChatWebsocketHandler) textMessageAction(ctx context.Context, s *Session, msg []byte) {
	var req domain.WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		h.sendError(s, "malformed request")
		return
	}

	resp := domain.WSResponse{Action: req.Action, Success: false, Payload: map[string]interface{}{}}
	switch domain.Action(req.Action) {
	case domain.JoinRoom:
		if err := h.hub.Join(ctx, req.GroupID, s); err != nil {
			resp.Error = wsError(err)
		} else {
			resp.Success = true
			resp.Payload["group_id"] = req.GroupID
		}

	case domain.LeaveRoom:
		h.hub.Leave(req.GroupID, s)
		resp.Success = true
		resp.Payload["group_id"] = req.GroupID

	case domain.Ping:
		resp.Action = "pong"
		resp.Success = true

	default:
		h.sendError(s, "unknown action")
		return
	}

	if resp.Error != "" {
		logger.Log.Info("websocket action failed",
			zap.String("session", s.ID),
			zap.String("action", req.Action),
			zap.String("err", resp.Error),
		)
	}
	h.sendResponse(s, resp)
}

func wsError(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return domain.ErrUnauthorized.Error()
	case errors.Is(err, domain.ErrSessionClosed):
		return domain.ErrSessionClosed.Error()
	default:
		logger.Log.Error("websocket internal error", zap.Error(err))
		return "internal error"
	}
}

// sendResponse 回覆走 session queue, 與廣播共用同一個 writer
func (h *ChatWebsocketHandler) sendResponse(s *Session, resp domain.WSResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		logger.Log.Errorf("marshal response error:", err)
		return
	}
	if !s.Enqueue(b) {
		logger.Log.Debug("reply dropped", zap.String("session", s.ID))
	}
}

func (h *ChatWebsocketHandler) sendError(s *Session, errorMsg string) {
	h.sendResponse(s, domain.WSResponse{
		Action:  string(domain.ErrorAction),
		Success: false,
		Error:   errorMsg,
	})
}

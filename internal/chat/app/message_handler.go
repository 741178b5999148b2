package app

import (
	"errors"
	"strconv"

	"group_chat_service/internal/chat/domain"
	errprocess "group_chat_service/pkg/err"
	"group_chat_service/pkg/logger"
	"group_chat_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// MessageHandler REST 訊息 API
type MessageHandler struct {
	uc *MessageUseCase
}

// NewMessageHandler create MessageHandler
func NewMessageHandler(uc *MessageUseCase) *MessageHandler {
	return &MessageHandler{uc: uc}
}

// SendMessageReq POST body
type SendMessageReq struct {
	Text      string `json:"text"`
	ClientRef string `json:"client_ref"`
}

// EditMessageReq PATCH body
type EditMessageReq struct {
	Text string `json:"text"`
}

// History 取得群組最近訊息
// @Summary Fetch recent group messages
// @Description Returns the most recent messages of a group, oldest first
// @Tags Messages
// @Security BearerAuth
// @Param groupId path int true "Group ID"
// @Success 200 {array} domain.Message
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Router /groups/{groupId}/messages [get]
func (h *MessageHandler) History(c *fiber.Ctx) error {
	groupID, userID, err := h.scope(c)
	if err != nil {
		return respondError(c, err)
	}

	messages, err := h.uc.History(c.UserContext(), groupID, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(messages)
}

// Send 新增訊息並廣播
// @Summary Send a group message
// @Description Persists the message then broadcasts new_message to the group room
// @Tags Messages
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param groupId path int true "Group ID"
// @Param body body SendMessageReq true "message"
// @Success 200 {object} domain.Message
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /groups/{groupId}/messages [post]
func (h *MessageHandler) Send(c *fiber.Ctx) error {
	groupID, userID, err := h.scope(c)
	if err != nil {
		return respondError(c, err)
	}

	var req SendMessageReq
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errprocess.Wrap(domain.ErrInvalidArgument, "malformed body"))
	}

	msg, err := h.uc.Send(c.UserContext(), groupID, userID, req.Text, req.ClientRef)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(msg)
}

// Edit 修改訊息
// @Summary Edit a group message
// @Description Sender, group owner or admin may edit; broadcasts update_message
// @Tags Messages
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param groupId path int true "Group ID"
// @Param messageId path string true "Message ID"
// @Param body body EditMessageReq true "new text"
// @Success 200 {object} domain.Message
// @Failure 404 {object} map[string]string
// @Router /groups/{groupId}/messages/{messageId} [patch]
func (h *MessageHandler) Edit(c *fiber.Ctx) error {
	groupID, userID, err := h.scope(c)
	if err != nil {
		return respondError(c, err)
	}

	var req EditMessageReq
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errprocess.Wrap(domain.ErrInvalidArgument, "malformed body"))
	}

	msg, err := h.uc.Edit(c.UserContext(), groupID, c.Params("messageId"), userID, req.Text)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(msg)
}

// Delete 刪除訊息
// @Summary Delete a group message
// @Description Sender, group owner or admin may delete; broadcasts delete_message
// @Tags Messages
// @Security BearerAuth
// @Param groupId path int true "Group ID"
// @Param messageId path string true "Message ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /groups/{groupId}/messages/{messageId} [delete]
func (h *MessageHandler) Delete(c *fiber.Ctx) error {
	groupID, userID, err := h.scope(c)
	if err != nil {
		return respondError(c, err)
	}

	if err := h.uc.Delete(c.UserContext(), groupID, c.Params("messageId"), userID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Message deleted"})
}

func (h *MessageHandler) scope(c *fiber.Ctx) (int64, int64, error) {
	userID, ok := middlewares.UserID(c)
	if !ok {
		return 0, 0, domain.ErrAuthRejected
	}
	groupID, err := strconv.ParseInt(c.Params("groupId"), 10, 64)
	if err != nil || groupID <= 0 {
		return 0, 0, errprocess.Wrap(domain.ErrInvalidArgument, "invalid group id")
	}
	return groupID, userID, nil
}

func respondError(c *fiber.Ctx, err error) error {
	status, msg := fiber.StatusInternalServerError, "Internal server error"
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		status, msg = fiber.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrAuthRejected):
		status, msg = fiber.StatusUnauthorized, "Invalid or expired token"
	case errors.Is(err, domain.ErrUnauthorized):
		status, msg = fiber.StatusForbidden, "Not authorized for this group"
	case errors.Is(err, domain.ErrNotFound):
		status, msg = fiber.StatusNotFound, "Message not found"
	case errors.Is(err, domain.ErrPersistenceFailure):
		msg = "Failed to store message"
	}

	if status >= fiber.StatusInternalServerError {
		logger.Log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

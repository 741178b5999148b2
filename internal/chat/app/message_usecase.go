package app

import (
	"context"
	"errors"
	"fmt"

	"group_chat_service/internal/chat/domain"
	"group_chat_service/internal/chat/repository"
	"group_chat_service/pkg/logger"

	"go.uber.org/zap"
)

const maxClientRefLen = 64

// MessageUseCase 負責處理聊天訊息: 驗證 -> 寫入 -> 廣播
type MessageUseCase struct {
	msgRepo      repository.MessageRepository
	membership   MembershipChecker
	userRepo     repository.UserRepository
	broadcaster  Broadcaster
	events       repository.EventPublisher
	historyLimit int
}

// NewMessageUseCase init message use case
func NewMessageUseCase(
	msgRepo repository.MessageRepository,
	membership MembershipChecker,
	userRepo repository.UserRepository,
	broadcaster Broadcaster,
	events repository.EventPublisher,
	historyLimit int,
) *MessageUseCase {
	if events == nil {
		events = repository.NewNopEventPublisher()
	}
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &MessageUseCase{
		msgRepo:      msgRepo,
		membership:   membership,
		userRepo:     userRepo,
		broadcaster:  broadcaster,
		events:       events,
		historyLimit: historyLimit,
	}
}

func (uc *MessageUseCase) role(ctx context.Context, groupID, userID int64) (domain.Role, error) {
	role, err := uc.membership.Role(ctx, groupID, userID)
	if err != nil {
		return domain.RoleNone, fmt.Errorf("membership lookup: %w", err)
	}
	return role, nil
}

func (uc *MessageUseCase) authorize(ctx context.Context, groupID, userID int64) error {
	role, err := uc.role(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !role.CanAccess() {
		return domain.ErrUnauthorized
	}
	return nil
}

// Send 新增訊息; 廣播失敗只記 log, 不影響回傳
func (uc *MessageUseCase) Send(ctx context.Context, groupID, senderID int64, text, clientRef string) (*domain.Message, error) {
	text = domain.NormalizeText(text)
	if text == "" {
		return nil, fmt.Errorf("%w: text is empty", domain.ErrInvalidArgument)
	}
	if len(clientRef) > maxClientRefLen {
		return nil, fmt.Errorf("%w: client_ref too long", domain.ErrInvalidArgument)
	}

	if err := uc.authorize(ctx, groupID, senderID); err != nil {
		return nil, err
	}

	sender, err := uc.userRepo.FindByID(ctx, senderID)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		GroupID:   groupID,
		SenderID:  senderID,
		Sender:    *sender,
		Text:      text,
		ClientRef: clientRef,
	}
	if err := uc.msgRepo.Create(ctx, msg); err != nil {
		if !errors.Is(err, domain.ErrPersistenceFailure) {
			err = fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
		}
		return nil, err
	}

	uc.fanout(ctx, domain.Event{Action: domain.NewMessage, GroupID: groupID, Message: msg}, msg)
	return msg, nil
}

// History 最近 historyLimit 筆, 依時間升冪
func (uc *MessageUseCase) History(ctx context.Context, groupID, userID int64) ([]domain.Message, error) {
	if err := uc.authorize(ctx, groupID, userID); err != nil {
		return nil, err
	}
	return uc.msgRepo.List(ctx, groupID, uc.historyLimit)
}

// Edit sender, owner 或 admin 可修改
func (uc *MessageUseCase) Edit(ctx context.Context, groupID int64, messageID string, userID int64, text string) (*domain.Message, error) {
	text = domain.NormalizeText(text)
	if text == "" {
		return nil, fmt.Errorf("%w: text is empty", domain.ErrInvalidArgument)
	}

	if _, err := uc.moderatable(ctx, groupID, messageID, userID); err != nil {
		return nil, err
	}

	updated, err := uc.msgRepo.UpdateText(ctx, messageID, text)
	if err != nil {
		return nil, err
	}

	uc.fanout(ctx, domain.Event{Action: domain.UpdateMessage, GroupID: groupID, Message: updated}, updated)
	return updated, nil
}

// Delete sender, owner 或 admin 可刪除
func (uc *MessageUseCase) Delete(ctx context.Context, groupID int64, messageID string, userID int64) error {
	msg, err := uc.moderatable(ctx, groupID, messageID, userID)
	if err != nil {
		return err
	}

	if err := uc.msgRepo.Delete(ctx, messageID); err != nil {
		return err
	}

	uc.fanout(ctx, domain.Event{Action: domain.DeleteMessage, GroupID: groupID, MessageID: messageID}, msg)
	return nil
}

func (uc *MessageUseCase) moderatable(ctx context.Context, groupID int64, messageID string, userID int64) (*domain.Message, error) {
	msg, err := uc.msgRepo.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.GroupID != groupID {
		return nil, domain.ErrNotFound
	}
	if msg.SenderID == userID {
		return msg, nil
	}

	role, err := uc.role(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if !role.CanModerate() {
		return nil, domain.ErrUnauthorized
	}
	return msg, nil
}

func (uc *MessageUseCase) fanout(ctx context.Context, event domain.Event, msg *domain.Message) {
	if uc.broadcaster != nil {
		if err := uc.broadcaster.Broadcast(ctx, event.GroupID, event); err != nil {
			logger.Log.Error("broadcast failed",
				zap.String("action", string(event.Action)),
				zap.Int64("group_id", event.GroupID),
				zap.Error(err),
			)
		}
	}
	if err := uc.events.PublishMessage(ctx, event.Action, msg); err != nil {
		logger.Log.Warn("activity event dropped", zap.String("message_id", msg.ID), zap.Error(err))
	}
}

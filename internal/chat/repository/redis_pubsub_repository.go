package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"group_chat_service/internal/chat/domain"
	"group_chat_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	roomChannelPrefix  = "chat:room:"
	roomChannelPattern = roomChannelPrefix + "*"
)

// RedisPubSub 跨節點廣播: 所有節點都訂閱 chat:room:*, 收到後交給本機 hub
type RedisPubSub struct {
	client *redis.Client
}

// NewRedisPubSub create RedisPubSub
func NewRedisPubSub(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{client: client}
}

// RoomChannel redis channel of a group
func RoomChannel(groupID int64) string {
	return roomChannelPrefix + strconv.FormatInt(groupID, 10)
}

// Publish 將 message 序列化後，發布到指定 channel
func (r *RedisPubSub) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, channel, data).Err()
}

// Broadcast publish an event to the room channel
func (r *RedisPubSub) Broadcast(ctx context.Context, groupID int64, event domain.Event) error {
	event.GroupID = groupID
	if err := r.Publish(ctx, RoomChannel(groupID), event); err != nil {
		return fmt.Errorf("%w: redis publish: %v", domain.ErrTransportFailure, err)
	}
	return nil
}

// Subscribe 訂閱所有 room channel, ctx 取消後關閉
func (r *RedisPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, event domain.Event)) error {
	sub := r.client.PSubscribe(ctx, roomChannelPattern)
	// 確認訂閱成功再回傳, 避免漏掉剛發布的事件
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("redis psubscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}
				event, err := decodeEvent(m.Channel, m.Payload)
				if err != nil {
					logger.Log.Error("drop relay event", zap.String("channel", m.Channel), zap.Error(err))
					continue
				}
				handler(ctx, event)
			case <-ctx.Done():
				logger.Log.Info("room relay closed", zap.String("pattern", roomChannelPattern))
				return
			}
		}
	}()
	return nil
}

func decodeEvent(channel, payload string) (domain.Event, error) {
	var event domain.Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return event, err
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(channel, roomChannelPrefix), 10, 64)
	if err != nil {
		return event, fmt.Errorf("bad channel %q", channel)
	}
	event.GroupID = id
	return event, nil
}

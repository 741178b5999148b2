package repository

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"group_chat_service/internal/chat/domain"

	"github.com/segmentio/kafka-go"
)

// EventPublisher 訊息活動事件 (給 challenge / streak 等下游服務)
type EventPublisher interface {
	PublishMessage(ctx context.Context, action domain.Action, msg *domain.Message) error
	Close() error
}

// MessageWriter kafka.Writer subset
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ActivityEvent kafka payload
type ActivityEvent struct {
	Action    domain.Action `json:"action"`
	MessageID string        `json:"message_id"`
	GroupID   int64         `json:"group_id"`
	SenderID  int64         `json:"sender_id"`
	At        time.Time     `json:"at"`
}

type kafkaEventPublisher struct {
	writer MessageWriter
}

// NewKafkaEventPublisher create EventPublisher on a kafka writer
func NewKafkaEventPublisher(writer MessageWriter) EventPublisher {
	return &kafkaEventPublisher{writer: writer}
}

// PublishMessage key 使用 group id, 同群組事件落在同 partition
func (p *kafkaEventPublisher) PublishMessage(ctx context.Context, action domain.Action, msg *domain.Message) error {
	value, err := json.Marshal(ActivityEvent{
		Action:    action,
		MessageID: msg.ID,
		GroupID:   msg.GroupID,
		SenderID:  msg.SenderID,
		At:        time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(msg.GroupID, 10)),
		Value: value,
	})
}

func (p *kafkaEventPublisher) Close() error {
	return p.writer.Close()
}

type nopEventPublisher struct{}

// NewNopEventPublisher used when kafka is disabled
func NewNopEventPublisher() EventPublisher {
	return nopEventPublisher{}
}

func (nopEventPublisher) PublishMessage(context.Context, domain.Action, *domain.Message) error {
	return nil
}

func (nopEventPublisher) Close() error { return nil }

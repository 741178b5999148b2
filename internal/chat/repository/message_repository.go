package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"group_chat_service/internal/chat/domain"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageRepository 群組訊息存取
type MessageRepository interface {
	// Create 寫入訊息, 由 repository 指派 ID 與 server 時間
	Create(ctx context.Context, msg *domain.Message) error
	// List 最近 limit 筆, 依 sent_at 升冪
	List(ctx context.Context, groupID int64, limit int) ([]domain.Message, error)
	FindByID(ctx context.Context, messageID string) (*domain.Message, error)
	UpdateText(ctx context.Context, messageID, text string) (*domain.Message, error)
	Delete(ctx context.Context, messageID string) error
}

type chatMessageRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoChatMessageRepository create a MessageRepository
func NewMongoChatMessageRepository(db *mongo.Database) MessageRepository {
	return &chatMessageRepository{
		coll: db.Collection("chat_messages"),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// EnsureMessageIndexes group_id + sent_at for the history window
func EnsureMessageIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("chat_messages").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "sent_at", Value: -1}},
	})
	return err
}

func (r *chatMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	// mongo 只存到毫秒
	msg.SentAt = r.now().Truncate(time.Millisecond)

	if _, err := r.coll.InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("%w: insert message: %v", domain.ErrPersistenceFailure, err)
	}
	return nil
}

func (r *chatMessageRepository) List(ctx context.Context, groupID int64, limit int) ([]domain.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "sent_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := r.coll.Find(ctx, bson.M{"group_id": groupID}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: find messages: %v", domain.ErrPersistenceFailure, err)
	}

	messages := make([]domain.Message, 0, limit)
	if err := cur.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("%w: decode messages: %v", domain.ErrPersistenceFailure, err)
	}

	// 取最新 limit 筆後反轉成升冪
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *chatMessageRepository) FindByID(ctx context.Context, messageID string) (*domain.Message, error) {
	var msg domain.Message
	err := r.coll.FindOne(ctx, bson.M{"_id": messageID}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find message: %v", domain.ErrPersistenceFailure, err)
	}
	return &msg, nil
}

func (r *chatMessageRepository) UpdateText(ctx context.Context, messageID, text string) (*domain.Message, error) {
	editedAt := r.now().Truncate(time.Millisecond)
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var msg domain.Message
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": messageID},
		bson.M{"$set": bson.M{"text": text, "edited_at": editedAt}},
		opts,
	).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: update message: %v", domain.ErrPersistenceFailure, err)
	}
	return &msg, nil
}

func (r *chatMessageRepository) Delete(ctx context.Context, messageID string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": messageID})
	if err != nil {
		return fmt.Errorf("%w: delete message: %v", domain.ErrPersistenceFailure, err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

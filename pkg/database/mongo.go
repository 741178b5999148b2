package database

import (
	"context"
	"fmt"
	"time"

	"group_chat_service/pkg/logger"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// 每次嘗試的 ping 上限, 避免 server selection 卡住整個 retry
const mongoPingTimeout = 5 * time.Second

// NewMongoDB create a new MongoDB connection
func NewMongoDB(ctx context.Context, c Connection, dbName string) (*MongoDB, error) {
	clientOpts := options.Client().
		ApplyURI(c.ConnectStr).
		SetAppName("group_chat_service").
		SetServerSelectionTimeout(mongoPingTimeout)

	var lastErr error
	for attempt := 1; attempt <= c.RetryCount+1; attempt++ {
		db, err := connectMongo(ctx, clientOpts, dbName)
		if err == nil {
			return db, nil
		}
		lastErr = err

		logger.Log.Warn("Failed to connect to mongoDB, retrying...",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt <= c.RetryCount {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.RetryInterval * time.Second):
			}
		}
	}

	return nil, fmt.Errorf("failed to connect to MongoDB after retries: %w", lastErr)
}

func connectMongo(ctx context.Context, opts *options.ClientOptions, dbName string) (*MongoDB, error) {
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, mongoPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoDB{Client: client, Database: client.Database(dbName)}, nil
}

// Close disconnect mongoDB connection
func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

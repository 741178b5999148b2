package database

import (
	"context"
	"fmt"
	"time"

	"group_chat_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// NewKafkaWriterWithRetry 建立 Kafka Writer, 以 dial leader 確認 broker 可用
func NewKafkaWriterWithRetry(ctx context.Context, k KafkaConnection) (*kafka.Writer, error) {
	if len(k.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no broker configured")
	}

	var err error
	for attempt := 1; attempt <= k.RetryCount+1; attempt++ {
		var conn *kafka.Conn
		conn, err = kafka.DialLeader(ctx, "tcp", k.Brokers[0], k.Topic, 0)
		if err == nil {
			conn.Close()
			logger.Log.Info("kafka writer ready", zap.String("topic", k.Topic), zap.Int("attempt", attempt))
			return &kafka.Writer{
				Addr:                   kafka.TCP(k.Brokers...),
				Topic:                  k.Topic,
				Balancer:               &kafka.Hash{},
				AllowAutoTopicCreation: true,
			}, nil
		}

		logger.Log.Warn("kafka dial failed, retrying...",
			zap.Int("attempt", attempt),
			zap.Strings("brokers", k.Brokers),
			zap.Error(err),
		)
		time.Sleep(k.RetryInterval * time.Second)
	}

	return nil, fmt.Errorf("kafka writer unavailable after %d attempts: %w", k.RetryCount+1, err)
}

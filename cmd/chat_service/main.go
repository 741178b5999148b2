package main

import (
	"context"
	"fmt"
	"os"
	"time"

	_ "group_chat_service/cmd/chat_service/docs"
	"group_chat_service/internal/chat/app"
	"group_chat_service/internal/chat/repository"
	"group_chat_service/internal/chat/router"
	"group_chat_service/pkg/config"
	"group_chat_service/pkg/database"
	"group_chat_service/pkg/logger"
	testtool "group_chat_service/pkg/test_tool"
	"group_chat_service/pkg/token"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatService, config.EnvConfig.ChatServiceLogPath)
	cfg := config.LoadConfig[config.Chat](config.EnvConfig.ChatService, config.EnvConfig.ChatServiceYAMLPath)
	cfg.Sanitize()
	if config.EnvConfig.ChatServicePort != "" {
		cfg.Port = config.EnvConfig.ChatServicePort
	}

	// .env 優先於 yaml
	secret := config.EnvConfig.JWTSecret
	if secret == "" {
		secret = cfg.JWTSecret
	}
	token.SetSecret(secret)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. 建立 Mongo 連線 (存訊息)
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.MongoSQL.User, cfg.MongoSQL.Password, cfg.MongoSQL.Host, cfg.MongoSQL.Port)
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    uri,
			RetryCount:    cfg.MongoSQL.RetryCount,
			RetryInterval: time.Duration(cfg.MongoSQL.RetryInterval),
		},
		cfg.MongoSQL.Database)
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to mongoDB database after retries",
			zap.String("address", fmt.Sprintf("[%s:%d]", cfg.MongoSQL.Host, cfg.MongoSQL.Port)),
			zap.Error(err),
		)
	}
	if err := repository.EnsureMessageIndexes(ctx, mongo.Database); err != nil {
		logger.Log.Fatal("create message indexes", zap.Error(err))
	}

	// 2. 建立 PostgreSQL 連線 (users / groups)
	pgConn := database.Connection{
		ConnectStr: fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.Database),
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	}
	gormDB, err := database.NewPGConnection(pgConn)
	if err != nil {
		logger.Log.Fatal("Unable to connect to postgres (gorm)", zap.Error(err))
	}
	pool, err := database.NewDatabaseConnection(ctx, pgConn)
	if err != nil {
		logger.Log.Fatal("Unable to connect to postgres (pgx)", zap.Error(err))
	}

	// 3. 建立 Redis 連線 (relay + token 黑名單)
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = database.NewRedisStandalone(ctx, cfg.Redis.Addr, cfg.Redis.RedisDB)
	} else {
		masterName, sentinel := config.GetRedisSetting()
		redisClient, err = database.NewRedisClient(ctx, masterName, sentinel, cfg.Redis.RedisDB)
	}
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}

	// 4. Kafka 活動事件 (optional)
	events := repository.NewNopEventPublisher()
	if cfg.Kafka.Enable {
		writer, err := database.NewKafkaWriterWithRetry(ctx, database.KafkaConnection{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			RetryCount:    cfg.Kafka.RetryCount,
			RetryInterval: time.Duration(cfg.Kafka.RetryInterval),
		})
		if err != nil {
			logger.Log.Fatal("connect kafka", zap.Error(err))
		}
		events = repository.NewKafkaEventPublisher(writer)
	}

	// 5. 初始化 Repository
	msgRepo := repository.NewMongoChatMessageRepository(mongo.Database)
	membership := repository.NewMembershipRepository(gormDB)
	if err := membership.AutoMigrate(); err != nil {
		logger.Log.Fatal("auto migrate membership tables", zap.Error(err))
	}
	userRepo := repository.NewUserRepository(pool)
	revoked := repository.NewRevokedTokenRepository(database.NewRedisRepository[repository.RevokedToken](redisClient))

	// 6. Hub + 跨節點 relay
	hub := app.NewHub(membership)
	var broadcaster app.Broadcaster = hub
	if cfg.Redis.Relay {
		relay := repository.NewRedisPubSub(redisClient)
		if err := relay.Subscribe(ctx, hub.Deliver); err != nil {
			logger.Log.Fatal("subscribe relay", zap.Error(err))
		}
		broadcaster = relay
	}

	// 7. 初始化 UseCases
	messageUC := app.NewMessageUseCase(msgRepo, membership, userRepo, broadcaster, events, cfg.HistoryLimit)

	// 8. 啟動 Fiber
	r := fiber.New(fiber.Config{DisableStartupMessage: config.IsProduction()})
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		logger.Log.Fatal("Failed to open access log file", zap.Error(err))
	}
	r.Use(recover.New())
	r.Use(fiber_log.New(fiber_log.Config{
		Output: file, // 将日志输出到文件
	}))

	router.RegisterRoutes(r, router.Handlers{
		Websocket: app.NewChatWebsocketHandler(hub, userRepo, app.WebsocketConfig{
			SendBuffer:     cfg.SendBuffer,
			PingInterval:   cfg.PingInterval,
			WriteWait:      cfg.WriteWait,
			MaxMessageSize: cfg.MaxMessageSize,
			AllowedOrigins: cfg.AllowedOrigins,
		}),
		Message:   app.NewMessageHandler(messageUC),
		Health:    app.NewHealthHandler(hub),
		Auth:      app.NewAuthHandler(revoked, hub),
		Revoked:   revoked,
		PostLimit: cfg.PostLimit,
	})

	testtool.StartPprof(os.Getenv("CHAT_PPROF_ADDR"))

	go func() {
		port := ":" + cfg.Port
		logger.Log.Info("Chat Service listening", zap.String("port", port))
		if err := r.Listen(port); err != nil {
			logger.Log.Fatal("Failed to start Fiber", zap.Error(err))
		}
	}()

	wait := gfshutdown.GracefulShutdown(ctx, shutdownTimeout, map[string]gfshutdown.Operation{
		"fiber": func(ctx context.Context) error {
			err := r.ShutdownWithContext(ctx)
			hub.Shutdown()
			_ = file.Close()
			return err
		},
		"relay": func(context.Context) error {
			cancel()
			return redisClient.Close()
		},
		"mongo": func(ctx context.Context) error {
			return mongo.Close(ctx)
		},
		"postgres": func(context.Context) error {
			pool.Close()
			return database.CloseGorm(gormDB)
		},
		"kafka": func(context.Context) error {
			return events.Close()
		},
	})

	exitCode := <-wait
	logger.Log.Info("Chat Service exited", zap.Int("code", exitCode))
	logger.Log.Sync()
	os.Exit(exitCode)
}

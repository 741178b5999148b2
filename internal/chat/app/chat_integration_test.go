//go:build integration

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"group_chat_service/internal/chat/domain"
	"group_chat_service/internal/chat/repository"
	"group_chat_service/pkg/database"
	"group_chat_service/pkg/logger"
	testtool "group_chat_service/pkg/test_tool"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
)

// **測試用的容器與連線**
var (
	containers  []testcontainers.Container
	mongoDB     *database.MongoDB
	pgPool      *pgxpool.Pool
	redisClient *redis.Client

	msgRepo    repository.MessageRepository
	membership repository.MembershipRepository
	userRepo   repository.UserRepository
)

func start(ctx context.Context, req testcontainers.ContainerRequest) (string, string) {
	c, host, port, err := testtool.SetupContainer(ctx, req)
	if err != nil {
		log.Fatalf("❌ Failed to start %s container: %v", req.Image, err)
	}
	containers = append(containers, c)
	fmt.Printf("✅ %s running at %s:%s\n", req.Image, host, port)
	return host, port
}

// **TestMain 初始化測試環境**
func TestMain(m *testing.M) {
	ctx := context.Background()
	logger.SetNewNop()

	mongoHost, mongoPort := start(ctx, testtool.MongoRequest())
	redisHost, redisPort := start(ctx, testtool.RedisRequest())
	pgHost, pgPort := start(ctx, testtool.PostgresRequest())

	var err error
	mongoDB, err = database.NewMongoDB(ctx, database.Connection{
		ConnectStr:    fmt.Sprintf("mongodb://%s:%s", mongoHost, mongoPort),
		RetryCount:    5,
		RetryInterval: 2,
	}, "test_chat_db")
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	if err := repository.EnsureMessageIndexes(ctx, mongoDB.Database); err != nil {
		log.Fatalf("❌ Failed to create indexes: %v", err)
	}

	pgDSN := fmt.Sprintf("postgres://chat:chat@%s:%s/chat?sslmode=disable", pgHost, pgPort)
	gormDB, err := database.NewPGConnection(database.Connection{ConnectStr: pgDSN, RetryCount: 5, RetryInterval: 2})
	if err != nil {
		log.Fatalf("❌ Failed to connect to Postgres (gorm): %v", err)
	}
	pgPool, err = database.NewDatabaseConnection(ctx, database.Connection{ConnectStr: pgDSN, RetryCount: 5, RetryInterval: 2})
	if err != nil {
		log.Fatalf("❌ Failed to connect to Postgres (pgx): %v", err)
	}

	redisClient, err = database.NewRedisStandalone(ctx, fmt.Sprintf("%s:%s", redisHost, redisPort), 0)
	if err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}

	msgRepo = repository.NewMongoChatMessageRepository(mongoDB.Database)
	membership = repository.NewMembershipRepository(gormDB)
	userRepo = repository.NewUserRepository(pgPool)
	if err := membership.AutoMigrate(); err != nil {
		log.Fatalf("❌ AutoMigrate: %v", err)
	}

	code := m.Run()

	// **清理測試環境**
	_ = redisClient.Close()
	pgPool.Close()
	_ = database.CloseGorm(gormDB)
	_ = mongoDB.Close(ctx)
	for _, c := range containers {
		_ = c.Terminate(ctx)
	}
	os.Exit(code)
}

func seedGroup(t *testing.T, ctx context.Context, users ...*repository.User) *repository.Group {
	t.Helper()
	for _, u := range users {
		require.NoError(t, membership.CreateUser(ctx, u))
	}
	group, err := membership.CreateGroup(ctx, "group-"+t.Name(), users[0].ID)
	require.NoError(t, err)
	for _, u := range users[1:] {
		require.NoError(t, membership.AddMember(ctx, group.ID, u.ID))
	}
	return group
}

func TestMembershipRoles(t *testing.T) {
	ctx := context.Background()
	owner := &repository.User{Name: "owner", Email: "owner@roles.test"}
	admin := &repository.User{Name: "admin", Email: "admin@roles.test"}
	member := &repository.User{Name: "member", Email: "member@roles.test"}
	group := seedGroup(t, ctx, owner, admin, member)
	require.NoError(t, membership.AddAdmin(ctx, group.ID, admin.ID))

	role, err := membership.Role(ctx, group.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, role)

	role, _ = membership.Role(ctx, group.ID, admin.ID)
	assert.Equal(t, domain.RoleAdmin, role)

	role, _ = membership.Role(ctx, group.ID, member.ID)
	assert.Equal(t, domain.RoleMember, role)

	role, _ = membership.Role(ctx, group.ID+1000, member.ID)
	assert.Equal(t, domain.RoleNone, role)

	identity, err := userRepo.FindByID(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, "member@roles.test", identity.Email)

	_, err = userRepo.FindByID(ctx, 987654)
	assert.ErrorIs(t, err, domain.ErrAuthRejected)
}

func TestMessageLifecycle(t *testing.T) {
	ctx := context.Background()
	alice := &repository.User{Name: "Alice", Email: "alice@life.test"}
	bob := &repository.User{Name: "Bob", Email: "bob@life.test"}
	group := seedGroup(t, ctx, alice, bob)

	hub := NewHub(membership)
	uc := NewMessageUseCase(msgRepo, membership, userRepo, hub, nil, 2)

	s := NewSession("bob", 8)
	require.NoError(t, s.Authenticate(domain.Identity{ID: bob.ID, Name: bob.Name}))
	require.NoError(t, hub.Join(ctx, group.ID, s))

	for _, text := range []string{"one", "two", "three"} {
		_, err := uc.Send(ctx, group.ID, alice.ID, text, "")
		require.NoError(t, err)
		// sent_at 只到毫秒
		time.Sleep(5 * time.Millisecond)
	}

	// 只回最近 2 筆, 依時間升冪
	history, err := uc.History(ctx, group.ID, bob.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "two", history[0].Text)
	assert.Equal(t, "three", history[1].Text)
	assert.Equal(t, "Alice", history[1].Sender.Name)

	edited, err := uc.Edit(ctx, group.ID, history[1].ID, alice.ID, "three!")
	require.NoError(t, err)
	assert.NotNil(t, edited.EditedAt)

	_, err = uc.Edit(ctx, group.ID, history[1].ID, bob.ID, "nope")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, uc.Delete(ctx, group.ID, history[0].ID, alice.ID))
	_, err = msgRepo.FindByID(ctx, history[0].ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var actions []string
	for len(s.Send()) > 0 {
		var resp domain.WSResponse
		require.NoError(t, json.Unmarshal(<-s.Send(), &resp))
		actions = append(actions, resp.Action)
	}
	assert.Equal(t, []string{"new_message", "new_message", "new_message", "update_message", "delete_message"}, actions)
}

// 兩個節點透過 redis 轉發, 送到 A 的訊息 B 的 session 也要收到
func TestRedisRelayAcrossNodes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice := &repository.User{Name: "Alice", Email: "alice@relay.test"}
	bob := &repository.User{Name: "Bob", Email: "bob@relay.test"}
	group := seedGroup(t, ctx, alice, bob)

	relay := repository.NewRedisPubSub(redisClient)
	nodeA, nodeB := NewHub(membership), NewHub(membership)
	require.NoError(t, relay.Subscribe(ctx, nodeA.Deliver))
	require.NoError(t, relay.Subscribe(ctx, nodeB.Deliver))

	s := NewSession("bob@nodeB", 8)
	require.NoError(t, s.Authenticate(domain.Identity{ID: bob.ID}))
	require.NoError(t, nodeB.Join(ctx, group.ID, s))

	uc := NewMessageUseCase(msgRepo, membership, userRepo, relay, nil, 50)
	sent, err := uc.Send(ctx, group.ID, alice.ID, "across nodes", "ref-relay")
	require.NoError(t, err)

	select {
	case b := <-s.Send():
		var resp domain.WSResponse
		require.NoError(t, json.Unmarshal(b, &resp))
		assert.Equal(t, "new_message", resp.Action)
		msg := resp.Payload["message"].(map[string]interface{})
		assert.Equal(t, sent.ID, msg["id"])
		assert.Equal(t, "ref-relay", msg["client_ref"])
	case <-time.After(5 * time.Second):
		t.Fatal("relay event not delivered")
	}
}

func TestRevokedTokens(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRevokedTokenRepository(database.NewRedisRepository[repository.RevokedToken](redisClient))

	revoked, err := repo.IsRevoked(ctx, "token-a")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, repo.Revoke(ctx, "token-a", 1, time.Minute))
	revoked, err = repo.IsRevoked(ctx, "token-a")
	require.NoError(t, err)
	assert.True(t, revoked)
}

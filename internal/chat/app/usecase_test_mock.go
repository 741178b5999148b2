package app

import (
	"context"
	"sync"

	"group_chat_service/internal/chat/domain"

	"github.com/stretchr/testify/mock"
)

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// Create mock create message, assigns id and time like the store
func (m *MockMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// List mock recent messages
func (m *MockMessageRepository) List(ctx context.Context, groupID int64, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, groupID, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindByID mock find message
func (m *MockMessageRepository) FindByID(ctx context.Context, messageID string) (*domain.Message, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// UpdateText mock edit message
func (m *MockMessageRepository) UpdateText(ctx context.Context, messageID, text string) (*domain.Message, error) {
	args := m.Called(ctx, messageID, text)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// Delete mock delete message
func (m *MockMessageRepository) Delete(ctx context.Context, messageID string) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

// MockMembership Mock MembershipChecker
type MockMembership struct {
	mock.Mock
}

// Role mock role lookup
func (m *MockMembership) Role(ctx context.Context, groupID, userID int64) (domain.Role, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Get(0).(domain.Role), args.Error(1)
}

// MockUserRepository Mock UserRepository
type MockUserRepository struct {
	mock.Mock
}

// FindByID mock identity lookup
func (m *MockUserRepository) FindByID(ctx context.Context, userID int64) (*domain.Identity, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Identity), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockBroadcaster Mock Broadcaster
type MockBroadcaster struct {
	mock.Mock
}

// Broadcast mock broadcast
func (m *MockBroadcaster) Broadcast(ctx context.Context, groupID int64, event domain.Event) error {
	args := m.Called(ctx, groupID, event)
	return args.Error(0)
}

// MockEventPublisher Mock EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

// PublishMessage mock publish
func (m *MockEventPublisher) PublishMessage(ctx context.Context, action domain.Action, msg *domain.Message) error {
	args := m.Called(ctx, action, msg)
	return args.Error(0)
}

// Close mock close
func (m *MockEventPublisher) Close() error {
	return m.Called().Error(0)
}

// staticMembership fixed roles, safe for concurrent use
type staticMembership struct {
	mu    sync.Mutex
	roles map[int64]map[int64]domain.Role
	err   error
}

func newStaticMembership() *staticMembership {
	return &staticMembership{roles: map[int64]map[int64]domain.Role{}}
}

func (s *staticMembership) set(groupID, userID int64, role domain.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roles[groupID] == nil {
		s.roles[groupID] = map[int64]domain.Role{}
	}
	s.roles[groupID][userID] = role
}

func (s *staticMembership) Role(_ context.Context, groupID, userID int64) (domain.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.RoleNone, s.err
	}
	if r, ok := s.roles[groupID][userID]; ok {
		return r, nil
	}
	return domain.RoleNone, nil
}

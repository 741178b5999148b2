package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"group_chat_service/internal/chat/domain"
	"group_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// MembershipChecker 群組身份查詢
type MembershipChecker interface {
	Role(ctx context.Context, groupID, userID int64) (domain.Role, error)
}

// Broadcaster 將事件送給 room 內所有 session
type Broadcaster interface {
	Broadcast(ctx context.Context, groupID int64, event domain.Event) error
}

type room struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
}

// Hub room registry + broadcast dispatcher
//
// lock order: Hub.mu -> room.mu, never the reverse
type Hub struct {
	mu      sync.RWMutex
	rooms   map[int64]*room
	users   map[int64]map[*Session]struct{}
	checker MembershipChecker
}

// NewHub create Hub
func NewHub(checker MembershipChecker) *Hub {
	return &Hub{
		rooms:   make(map[int64]*room),
		users:   make(map[int64]map[*Session]struct{}),
		checker: checker,
	}
}

// Register 記錄已驗證的 session, 讓 logout 可以找到同一使用者的所有連線
func (h *Hub) Register(s *Session) error {
	if s.State() == domain.SessionConnecting {
		return domain.ErrAuthRejected
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if s.State() == domain.SessionClosed {
		return domain.ErrSessionClosed
	}
	set, ok := h.users[s.UserID()]
	if !ok {
		set = make(map[*Session]struct{})
		h.users[s.UserID()] = set
	}
	set[s] = struct{}{}
	return nil
}

// CloseUser 關閉使用者在本節點的所有 session (logout), 回傳關閉數量
func (h *Hub) CloseUser(userID int64) int {
	h.mu.Lock()
	var sessions []*Session
	for s := range h.users[userID] {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.Close()
		h.LeaveAll(s)
	}
	if len(sessions) > 0 {
		logger.Log.Info("closed user sessions", zap.Int64("user_id", userID), zap.Int("count", len(sessions)))
	}
	return len(sessions)
}

// Join 加入 room, 每次都重新檢查身份; 已在其他 room 會先離開
func (h *Hub) Join(ctx context.Context, groupID int64, s *Session) error {
	switch s.State() {
	case domain.SessionClosed:
		return domain.ErrSessionClosed
	case domain.SessionConnecting:
		return domain.ErrAuthRejected
	}

	role, err := h.checker.Role(ctx, groupID, s.UserID())
	if err != nil {
		return fmt.Errorf("membership lookup: %w", err)
	}
	if !role.CanAccess() {
		return domain.ErrUnauthorized
	}

	if prev, ok := s.Room(); ok {
		if prev == groupID {
			return nil
		}
		h.Leave(prev, s)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[groupID]
	if !ok {
		r = &room{sessions: make(map[*Session]struct{})}
		h.rooms[groupID] = r
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !s.markJoined(groupID) {
		if len(r.sessions) == 0 {
			delete(h.rooms, groupID)
		}
		return domain.ErrSessionClosed
	}
	r.sessions[s] = struct{}{}

	logger.Log.Debug("session joined", zap.String("session", s.ID), zap.Int64("group_id", groupID))
	return nil
}

// Leave 離開 room, room 空了就移除
func (h *Hub) Leave(groupID int64, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[groupID]; ok {
		r.mu.Lock()
		delete(r.sessions, s)
		empty := len(r.sessions) == 0
		r.mu.Unlock()
		if empty {
			delete(h.rooms, groupID)
		}
	}
	s.markLeft(groupID)
}

// LeaveAll release the membership and registration of a closing session
func (h *Hub) LeaveAll(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.users[s.UserID()]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.users, s.UserID())
		}
	}

	for groupID, r := range h.rooms {
		r.mu.Lock()
		if _, ok := r.sessions[s]; ok {
			delete(r.sessions, s)
		}
		empty := len(r.sessions) == 0
		r.mu.Unlock()
		if empty {
			delete(h.rooms, groupID)
		}
	}
	if groupID, ok := s.Room(); ok {
		s.markLeft(groupID)
	}
}

// Broadcast 序列化一次後送給 room 內每個 session
//
// 同一 room 的事件在 room.mu 下依序送出; 送不進去 (已關閉或 buffer 滿) 的 session 會被踢出
func (h *Hub) Broadcast(_ context.Context, groupID int64, event domain.Event) error {
	event.GroupID = groupID
	data, err := json.Marshal(event.Response())
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var evicted []*Session
	h.mu.RLock()
	if r, ok := h.rooms[groupID]; ok {
		r.mu.Lock()
		for s := range r.sessions {
			if !s.Enqueue(data) {
				evicted = append(evicted, s)
			}
		}
		r.mu.Unlock()
	}
	h.mu.RUnlock()

	for _, s := range evicted {
		logger.Log.Warn("evict slow session", zap.String("session", s.ID), zap.Int64("group_id", groupID))
		s.Close()
		h.Leave(groupID, s)
	}
	return nil
}

// Deliver relay handler, redis 收到的事件送進本機 room
func (h *Hub) Deliver(ctx context.Context, event domain.Event) {
	if err := h.Broadcast(ctx, event.GroupID, event); err != nil {
		logger.Log.Error("deliver relay event", zap.Int64("group_id", event.GroupID), zap.Error(err))
	}
}

// RoomSize number of sessions in a room
func (h *Hub) RoomSize(groupID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[groupID]
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// RoomCount number of live rooms
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Shutdown close every session
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, set := range h.users {
		for s := range set {
			s.Close()
		}
		delete(h.users, userID)
	}
	for groupID, r := range h.rooms {
		r.mu.Lock()
		for s := range r.sessions {
			s.Close()
		}
		r.mu.Unlock()
		delete(h.rooms, groupID)
	}
}

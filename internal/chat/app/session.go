package app

import (
	"fmt"
	"sync"

	"group_chat_service/internal/chat/domain"

	"github.com/google/uuid"
)

// Session 一條 websocket 連線的狀態, 斷線後不保留任何待送訊息
type Session struct {
	ID         string
	RemoteAddr string

	mu       sync.Mutex
	state    domain.SessionState
	identity domain.Identity
	roomID   int64
	send     chan []byte
}

// NewSession create a session in Connecting state
func NewSession(remoteAddr string, sendBuffer int) *Session {
	if sendBuffer <= 0 {
		sendBuffer = 1
	}
	return &Session{
		ID:         uuid.New().String(),
		RemoteAddr: remoteAddr,
		state:      domain.SessionConnecting,
		send:       make(chan []byte, sendBuffer),
	}
}

// Authenticate bind identity once, Connecting -> Authenticated
func (s *Session) Authenticate(identity domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.SessionConnecting {
		return fmt.Errorf("%w: session is %s", domain.ErrAuthRejected, s.state)
	}
	if identity.ID == 0 {
		return domain.ErrAuthRejected
	}
	s.identity = identity
	s.state = domain.SessionAuthenticated
	return nil
}

// Identity bound identity
func (s *Session) Identity() domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// UserID bound user id, zero before Authenticate
func (s *Session) UserID() int64 {
	return s.Identity().ID
}

// State current state
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Room joined room id
func (s *Session) Room() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID, s.state == domain.SessionJoined
}

func (s *Session) markJoined(groupID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionClosed || s.state == domain.SessionConnecting {
		return false
	}
	s.state = domain.SessionJoined
	s.roomID = groupID
	return true
}

func (s *Session) markLeft(groupID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionJoined && s.roomID == groupID {
		s.state = domain.SessionAuthenticated
		s.roomID = 0
	}
}

// Enqueue non-blocking, false when closed or the buffer is full
func (s *Session) Enqueue(b []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionClosed {
		return false
	}
	select {
	case s.send <- b:
		return true
	default:
		return false
	}
}

// Send outbound queue, closed after Close
func (s *Session) Send() <-chan []byte {
	return s.send
}

// Close any state -> Closed, true on the first call
func (s *Session) Close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionClosed {
		return false
	}
	s.state = domain.SessionClosed
	close(s.send)
	return true
}

package domain

// SessionState 連線狀態
type SessionState int

const (
	// SessionConnecting upgraded, identity not bound yet
	SessionConnecting SessionState = iota
	// SessionAuthenticated identity bound, no room
	SessionAuthenticated
	// SessionJoined member of exactly one room
	SessionJoined
	// SessionClosed terminal
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionAuthenticated:
		return "authenticated"
	case SessionJoined:
		return "joined"
	case SessionClosed:
		return "closed"
	}
	return "unknown"
}

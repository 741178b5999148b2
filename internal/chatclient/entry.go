package chatclient

import (
	"time"

	"group_chat_service/internal/chat/domain"
)

// Status 畫面上一筆訊息的狀態
type Status string

const (
	// StatusPending 已送出, 等待 server 確認
	StatusPending Status = "pending"
	// StatusConfirmed server 已寫入 (canonical)
	StatusConfirmed Status = "confirmed"
	// StatusFailed 送出失敗, 不會自動重送
	StatusFailed Status = "failed"
)

// failedSuffix 失敗訊息的文字標記
const failedSuffix = " (failed to send)"

// WireMessage server 回傳的訊息 (REST body 與廣播 payload 同格式)
type WireMessage struct {
	ID        string          `json:"id"`
	GroupID   int64           `json:"group_id"`
	SenderID  int64           `json:"sender_id"`
	Sender    domain.Identity `json:"sender"`
	Text      string          `json:"text"`
	ClientRef string          `json:"client_ref,omitempty"`
	SentAt    string          `json:"sent_at"`
	EditedAt  *string         `json:"edited_at,omitempty"`
}

// Entry displayed timeline entry
type Entry struct {
	// ID canonical id, empty until the server confirms
	ID string
	// TempID local id of an optimistic entry, cleared once confirmed
	TempID     string
	GroupID    int64
	SenderID   int64
	SenderName string
	Text       string
	Status     Status
	Timestamp  time.Time
	Edited     bool
}

// Key canonical id, or the temp id while unconfirmed
func (e Entry) Key() string {
	if e.ID != "" {
		return e.ID
	}
	return e.TempID
}

// ServerEvent realtime event decoded from the websocket
type ServerEvent struct {
	Action    domain.Action
	GroupID   int64
	Message   *WireMessage
	MessageID string
}

// ConnState transport lifecycle
type ConnState string

const (
	// ConnConnected websocket handshake done
	ConnConnected ConnState = "connected"
	// ConnJoined server accepted join_room
	ConnJoined ConnState = "joined"
	// ConnError dial or join failed, Err is set
	ConnError ConnState = "error"
	// ConnDisconnected connection dropped, Err is set
	ConnDisconnected ConnState = "disconnected"
)

// ConnEvent transport state notification
type ConnEvent struct {
	State   ConnState
	GroupID int64
	Err     error
}

func parseTimestamp(raw string, fallback time.Time) time.Time {
	if raw == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return fallback
	}
	return t
}

package domain

import (
	"strings"
	"time"
)

// Identity 已驗證的使用者, 也是訊息的 sender
type Identity struct {
	ID    int64  `bson:"id" json:"id"`
	Name  string `bson:"name" json:"name"`
	Email string `bson:"email" json:"email"`
}

// Message 群組聊天訊息 (canonical record)
type Message struct {
	ID       string   `bson:"_id" json:"id"`
	GroupID  int64    `bson:"group_id" json:"group_id"`
	SenderID int64    `bson:"sender_id" json:"sender_id"`
	Sender   Identity `bson:"sender" json:"sender"`
	Text     string   `bson:"text" json:"text"`
	// ClientRef 送出端的 correlation token, 原樣回傳給廣播
	ClientRef string     `bson:"client_ref,omitempty" json:"client_ref,omitempty"`
	SentAt    time.Time  `bson:"sent_at" json:"sent_at"`
	EditedAt  *time.Time `bson:"edited_at,omitempty" json:"edited_at,omitempty"`
}

// NormalizeText trim text, empty result is rejected by callers
func NormalizeText(text string) string {
	return strings.TrimSpace(text)
}

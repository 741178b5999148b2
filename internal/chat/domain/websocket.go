package domain

// Action websocket request / event action
type Action string

const (
	// JoinRoom websocket action join_room
	JoinRoom Action = "join_room"
	// LeaveRoom websocket action leave_room
	LeaveRoom Action = "leave_room"
	// Ping websocket action ping (application level)
	Ping Action = "ping"

	// NewMessage broadcast a persisted message
	NewMessage Action = "new_message"
	// UpdateMessage broadcast an edited message
	UpdateMessage Action = "update_message"
	// DeleteMessage broadcast a removed message id
	DeleteMessage Action = "delete_message"

	// ErrorAction error reply
	ErrorAction Action = "error"
)

// WSRequest websocket Request
type WSRequest struct {
	Action  string `json:"action"`
	GroupID int64  `json:"group_id"`
}

// WSResponse websocket Response
type WSResponse struct {
	Action  string                 `json:"action"`
	Success bool                   `json:"success"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Event 廣播給 room 內所有 session 的事件
type Event struct {
	Action    Action   `json:"action"`
	GroupID   int64    `json:"group_id"`
	Message   *Message `json:"message,omitempty"`
	MessageID string   `json:"message_id,omitempty"`
}

// Response convert event to the wire envelope
func (e Event) Response() WSResponse {
	resp := WSResponse{
		Action:  string(e.Action),
		Success: true,
		Payload: map[string]interface{}{"group_id": e.GroupID},
	}
	switch e.Action {
	case DeleteMessage:
		resp.Payload["id"] = e.MessageID
	default:
		resp.Payload["message"] = e.Message
	}
	return resp
}

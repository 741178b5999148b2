package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"group_chat_service/internal/chat/domain"
	"group_chat_service/pkg/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 5 * time.Second
)

// Transporter live connection used by ChatView
type Transporter interface {
	Start(credential string, groupID int64)
	Update(credential string, groupID int64)
	Stop()
}

// TransportFactory build a Transporter bound to the view callbacks
type TransportFactory func(onEvent func(ServerEvent), onConn func(ConnEvent)) Transporter

// NewTransportFactory gorilla websocket transport for baseURL
func NewTransportFactory(baseURL string) TransportFactory {
	return func(onEvent func(ServerEvent), onConn func(ConnEvent)) Transporter {
		return NewTransport(baseURL, onEvent, onConn)
	}
}

type envelope struct {
	Action  string          `json:"action"`
	Success bool            `json:"success"`
	Payload json.RawMessage `json:"payload"`
	Error   string          `json:"error"`
}

type eventPayload struct {
	GroupID int64        `json:"group_id"`
	Message *WireMessage `json:"message"`
	ID      string       `json:"id"`
}

type liveConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}
}

func (c *liveConn) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *liveConn) close() {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.writeMu.Unlock()
	_ = c.conn.Close()
	<-c.done
}

// Transport 一條 websocket 連線只加入一個 room; 斷線後不自動重連
//
// callback 不可以在同一個 goroutine 內再呼叫 Transport 的方法
type Transport struct {
	baseURL string
	dialer  *websocket.Dialer
	onEvent func(ServerEvent)
	onConn  func(ConnEvent)

	mu         sync.Mutex
	gen        uint64
	active     bool
	credential string
	groupID    int64
	live       *liveConn
}

// NewTransport create Transport, nothing is dialed until Start
func NewTransport(baseURL string, onEvent func(ServerEvent), onConn func(ConnEvent)) *Transport {
	return &Transport{
		baseURL: baseURL,
		dialer:  &websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: handshakeTimeout},
		onEvent: onEvent,
		onConn:  onConn,
	}
}

// Start 關閉舊連線後重新連線並加入 groupID
func (t *Transport) Start(credential string, groupID int64) {
	t.reset(credential, groupID, true)
}

// Update 只有 credential 或 group 改變時才重連; credential 為空則只關閉
func (t *Transport) Update(credential string, groupID int64) {
	t.reset(credential, groupID, false)
}

// Stop 關閉連線, 回傳後不再送出任何事件
func (t *Transport) Stop() {
	t.mu.Lock()
	t.active = false
	prev := t.detachLocked()
	t.mu.Unlock()
	if prev != nil {
		prev.close()
	}
}

func (t *Transport) reset(credential string, groupID int64, force bool) {
	t.mu.Lock()
	if !force && t.active && t.credential == credential && t.groupID == groupID {
		t.mu.Unlock()
		return
	}
	t.credential, t.groupID = credential, groupID
	t.active = credential != ""
	prev := t.detachLocked()
	gen := t.gen
	t.mu.Unlock()

	if prev != nil {
		prev.close()
	}
	if credential == "" {
		return
	}
	t.connect(gen, credential, groupID)
}

func (t *Transport) detachLocked() *liveConn {
	t.gen++
	prev := t.live
	t.live = nil
	return prev
}

func (t *Transport) current(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen == gen
}

func (t *Transport) emitConn(gen uint64, ev ConnEvent) {
	if t.onConn != nil && t.current(gen) {
		t.onConn(ev)
	}
}

func (t *Transport) wsURL(credential string) (string, error) {
	u, err := url.Parse(t.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("auth", credential)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (t *Transport) connect(gen uint64, credential string, groupID int64) {
	target, err := t.wsURL(credential)
	if err != nil {
		t.emitConn(gen, ConnEvent{State: ConnError, GroupID: groupID, Err: fmt.Errorf("%w: %v", domain.ErrTransportFailure, err)})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	defer cancel()
	conn, resp, err := t.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			err = fmt.Errorf("%w: handshake rejected (%d)", domain.ErrUnauthorized, resp.StatusCode)
		} else {
			err = fmt.Errorf("%w: %v", domain.ErrTransportFailure, err)
		}
		logger.Log.Debug("websocket dial failed", zap.Error(err))
		t.emitConn(gen, ConnEvent{State: ConnError, GroupID: groupID, Err: err})
		return
	}

	live := &liveConn{conn: conn, done: make(chan struct{})}
	t.mu.Lock()
	if t.gen != gen {
		// Stop 或 Update 在 dial 期間發生
		t.mu.Unlock()
		close(live.done)
		_ = conn.Close()
		return
	}
	t.live = live
	t.mu.Unlock()

	go t.readLoop(gen, groupID, live)

	t.emitConn(gen, ConnEvent{State: ConnConnected, GroupID: groupID})
	if err := live.writeJSON(domain.WSRequest{Action: string(domain.JoinRoom), GroupID: groupID}); err != nil {
		t.emitConn(gen, ConnEvent{State: ConnError, GroupID: groupID, Err: fmt.Errorf("%w: join: %v", domain.ErrTransportFailure, err)})
	}
}

func (t *Transport) readLoop(gen uint64, groupID int64, live *liveConn) {
	defer close(live.done)

	for {
		_, data, err := live.conn.ReadMessage()
		if err != nil {
			if t.current(gen) {
				logger.Log.Debug("websocket read ended", zap.Error(err))
				t.emitConn(gen, ConnEvent{
					State:   ConnDisconnected,
					GroupID: groupID,
					Err:     fmt.Errorf("%w: %v", domain.ErrTransportFailure, err),
				})
			}
			return
		}
		t.dispatch(gen, groupID, data)
	}
}

func (t *Transport) dispatch(gen uint64, groupID int64, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logger.Log.Warn("malformed server frame", zap.Error(err))
		return
	}

	switch domain.Action(env.Action) {
	case domain.JoinRoom:
		if env.Success {
			t.emitConn(gen, ConnEvent{State: ConnJoined, GroupID: groupID})
			return
		}
		t.emitConn(gen, ConnEvent{State: ConnError, GroupID: groupID, Err: joinError(env.Error)})

	case domain.NewMessage, domain.UpdateMessage, domain.DeleteMessage:
		var p eventPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			logger.Log.Warn("malformed event payload", zap.String("action", env.Action), zap.Error(err))
			return
		}
		if t.onEvent != nil && t.current(gen) {
			t.onEvent(ServerEvent{
				Action:    domain.Action(env.Action),
				GroupID:   p.GroupID,
				Message:   p.Message,
				MessageID: p.ID,
			})
		}

	case domain.ErrorAction:
		logger.Log.Debug("server rejected frame", zap.String("error", env.Error))
	}
}

func joinError(msg string) error {
	if msg == domain.ErrUnauthorized.Error() {
		return domain.ErrUnauthorized
	}
	if msg == "" {
		msg = "join rejected"
	}
	return fmt.Errorf("%w: %s", domain.ErrTransportFailure, msg)
}

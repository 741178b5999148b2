package chatclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"group_chat_service/internal/chat/domain"
	"group_chat_service/pkg/logger"

	"go.uber.org/zap"
)

const sendTimeout = 15 * time.Second

// MessageAPI REST calls used by ChatView
type MessageAPI interface {
	History(ctx context.Context, credential string, groupID int64) ([]WireMessage, error)
	Send(ctx context.Context, credential string, groupID int64, text, clientRef string) (*WireMessage, error)
}

// Notifier render target of ChatView
type Notifier interface {
	// Changed timeline mutated, entries is a snapshot after the change
	Changed(change Change, entries []Entry)
	// Notice non-fatal problem: transport failure, unauthorized, send failure
	Notice(err error)
}

// Props 外部輸入, 改變時重新載入
type Props struct {
	Credential string
	GroupID    int64
}

// ChatView 一個群組聊天畫面的生命週期: 載入 history -> 連線 -> 即時更新
type ChatView struct {
	api       MessageAPI
	engine    *Engine
	transport Transporter
	notifier  Notifier

	mu      sync.Mutex
	props   Props
	gen     uint64
	loaded  bool
	stopped bool
	live    bool
	queue   []ServerEvent
	ctx     context.Context
	cancel  context.CancelFunc

	wg sync.WaitGroup
}

// NewChatView create ChatView, nothing happens until Start
func NewChatView(props Props, self domain.Identity, api MessageAPI, factory TransportFactory, notifier Notifier) (*ChatView, error) {
	engine, err := NewEngine(self)
	if err != nil {
		return nil, err
	}
	v := &ChatView{
		api:      api,
		engine:   engine,
		notifier: notifier,
		props:    props,
		stopped:  true,
	}
	v.transport = factory(v.onServerEvent, v.onConnEvent)
	return v, nil
}

// Engine underlying reconciliation engine
func (v *ChatView) Engine() *Engine {
	return v.engine
}

// Live join_room 成功且尚未斷線
func (v *ChatView) Live() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.live
}

// Start 先載入 history 再開啟即時連線
func (v *ChatView) Start(ctx context.Context) {
	v.mu.Lock()
	if v.cancel != nil {
		v.cancel()
	}
	v.ctx, v.cancel = context.WithCancel(ctx)
	v.stopped = false
	gen := v.bumpLocked()
	props := v.props
	v.mu.Unlock()

	if props.Credential == "" || props.GroupID == 0 {
		v.notice(fmt.Errorf("%w: missing group or authentication", domain.ErrUnauthorized))
		return
	}

	v.load(gen, props, false)
	if v.current(gen) {
		v.transport.Start(props.Credential, props.GroupID)
	}
}

// OnPropsChanged credential 或 group 改變: 丟棄舊狀態, 先換連線再重新載入 history
func (v *ChatView) OnPropsChanged(props Props) {
	v.mu.Lock()
	if v.stopped || props == v.props {
		v.props = props
		v.mu.Unlock()
		return
	}
	v.props = props
	gen := v.bumpLocked()
	v.live = false
	v.mu.Unlock()

	v.engine.Reset()
	v.changed(Change{Kind: ChangeReload, Scroll: true})

	v.transport.Update(props.Credential, props.GroupID)
	if props.Credential == "" || props.GroupID == 0 {
		v.notice(fmt.Errorf("%w: missing group or authentication", domain.ErrUnauthorized))
		return
	}
	v.load(gen, props, false)
}

// Reconnect 手動重連: 重新開啟連線後補齊斷線期間的訊息
func (v *ChatView) Reconnect() {
	v.mu.Lock()
	if v.stopped {
		v.mu.Unlock()
		return
	}
	gen := v.gen
	v.loaded = false
	props := v.props
	v.mu.Unlock()

	v.transport.Start(props.Credential, props.GroupID)
	v.load(gen, props, true)
}

// Stop 關閉連線; 之後回來的 send 結果與事件全部丟棄
func (v *ChatView) Stop() {
	v.mu.Lock()
	if v.stopped {
		v.mu.Unlock()
		return
	}
	v.stopped = true
	v.live = false
	v.bumpLocked()
	if v.cancel != nil {
		v.cancel()
	}
	v.mu.Unlock()

	v.transport.Stop()
	v.wg.Wait()
}

// Submit 立即加入 optimistic entry, 實際送出在背景進行
func (v *ChatView) Submit(text string) (Entry, error) {
	v.mu.Lock()
	if v.stopped {
		v.mu.Unlock()
		return Entry{}, fmt.Errorf("%w: view is not running", domain.ErrTransportFailure)
	}
	gen, props, ctx := v.gen, v.props, v.ctx
	// 與 stopped 檢查同一段臨界區, Stop 的 wg.Wait 一定看得到
	v.wg.Add(1)
	v.mu.Unlock()

	change, err := v.engine.BeginSubmit(text)
	if err != nil {
		v.wg.Done()
		return Entry{}, err
	}
	v.changed(change)

	entry := change.Entry
	go func() {
		defer v.wg.Done()
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()

		msg, err := v.api.Send(sendCtx, props.Credential, props.GroupID, entry.Text, entry.TempID)
		if !v.current(gen) {
			logger.Log.Debug("discard stale send result", zap.String("temp_id", entry.TempID))
			return
		}
		if err != nil {
			v.changed(v.engine.FailSubmit(entry.TempID, err))
			v.notice(fmt.Errorf("failed to send message: %w", err))
			return
		}
		v.changed(v.engine.ConfirmSubmit(entry.TempID, *msg))
	}()
	return entry, nil
}

func (v *ChatView) bumpLocked() uint64 {
	v.gen++
	v.loaded = false
	v.queue = nil
	return v.gen
}

func (v *ChatView) current(gen uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.gen == gen && !v.stopped
}

func (v *ChatView) load(gen uint64, props Props, merge bool) {
	v.mu.Lock()
	ctx := v.ctx
	v.mu.Unlock()

	history, err := v.api.History(ctx, props.Credential, props.GroupID)

	v.mu.Lock()
	if v.gen != gen || v.stopped {
		v.mu.Unlock()
		return
	}
	var changes []Change
	switch {
	case err != nil:
		// 仍然開啟連線, 畫面維持目前內容
	case merge:
		changes = append(changes, v.engine.MergeHistory(history))
	default:
		changes = append(changes, v.engine.LoadHistory(history))
	}
	// history 之前收到的事件依序套用
	for _, ev := range v.queue {
		changes = append(changes, v.engine.Apply(ev))
	}
	v.queue = nil
	v.loaded = true
	v.mu.Unlock()

	if err != nil {
		v.notice(fmt.Errorf("failed to load messages: %w", err))
	}
	for _, c := range changes {
		v.changed(c)
	}
}

func (v *ChatView) onServerEvent(ev ServerEvent) {
	v.mu.Lock()
	if v.stopped || ev.GroupID != v.props.GroupID {
		v.mu.Unlock()
		return
	}
	if !v.loaded {
		v.queue = append(v.queue, ev)
		v.mu.Unlock()
		return
	}
	change := v.engine.Apply(ev)
	v.mu.Unlock()

	v.changed(change)
}

func (v *ChatView) onConnEvent(ev ConnEvent) {
	v.mu.Lock()
	if v.stopped || ev.GroupID != v.props.GroupID {
		v.mu.Unlock()
		return
	}
	switch ev.State {
	case ConnJoined:
		v.live = true
	case ConnError, ConnDisconnected:
		v.live = false
	}
	v.mu.Unlock()

	logger.Log.Debug("transport state", zap.String("state", string(ev.State)), zap.Int64("group_id", ev.GroupID))
	if ev.Err != nil {
		v.notice(ev.Err)
	}
}

func (v *ChatView) changed(c Change) {
	if c.Kind == ChangeNone || v.notifier == nil {
		return
	}
	v.notifier.Changed(c, v.engine.Snapshot())
}

func (v *ChatView) notice(err error) {
	if v.notifier == nil || err == nil || errors.Is(err, context.Canceled) {
		return
	}
	v.notifier.Notice(err)
}

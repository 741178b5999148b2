package chatclient

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"group_chat_service/internal/chat/domain"

	nanoid "github.com/jaevor/go-nanoid"
)

// DefaultFollowThreshold 距離底部在此範圍內 (行數) 視為正在看最新訊息
const DefaultFollowThreshold = 3

// ChangeKind timeline mutation type
type ChangeKind int

const (
	// ChangeNone nothing changed, e.g. duplicate broadcast
	ChangeNone ChangeKind = iota
	// ChangeAppend new entry at the end
	ChangeAppend
	// ChangeReplace entry replaced in place (pending -> confirmed / failed)
	ChangeReplace
	// ChangeUpdate text edited
	ChangeUpdate
	// ChangeRemove entry removed
	ChangeRemove
	// ChangeReload whole timeline replaced
	ChangeReload
)

// Change result of one engine mutation
type Change struct {
	Kind  ChangeKind
	Entry Entry
	// Scroll view should follow to the newest entry
	Scroll bool
}

// Engine 合併 REST history, optimistic send 與廣播成一條不重複的 timeline
type Engine struct {
	mu sync.Mutex

	self            domain.Identity
	entries         []Entry
	// own 本機送出且已確認的 canonical id, history 還沒有時不能被 LoadHistory 洗掉
	own             map[string]struct{}
	distance        int
	followThreshold int

	now   func() time.Time
	newID func() string
}

// NewEngine create Engine for the signed-in user
func NewEngine(self domain.Identity) (*Engine, error) {
	gen, err := nanoid.Standard(21)
	if err != nil {
		return nil, fmt.Errorf("init nanoid: %w", err)
	}
	return &Engine{
		self:            self,
		own:             make(map[string]struct{}),
		followThreshold: DefaultFollowThreshold,
		now:             time.Now,
		newID:           gen,
	}, nil
}

// SetFollowThreshold change the scroll-follow distance
func (e *Engine) SetFollowThreshold(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.followThreshold = n
}

// SetViewport viewer distance from the bottom, 0 = at the newest entry
func (e *Engine) SetViewport(distanceFromBottom int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if distanceFromBottom < 0 {
		distanceFromBottom = 0
	}
	e.distance = distanceFromBottom
}

func (e *Engine) following() bool {
	return e.distance <= e.followThreshold
}

func (e *Engine) fromWire(w WireMessage) Entry {
	return Entry{
		ID:         w.ID,
		GroupID:    w.GroupID,
		SenderID:   w.SenderID,
		SenderName: w.Sender.Name,
		Text:       w.Text,
		Status:     StatusConfirmed,
		Timestamp:  parseTimestamp(w.SentAt, e.now()),
		Edited:     w.EditedAt != nil,
	}
}

func (e *Engine) indexByID(id string) int {
	if id == "" {
		return -1
	}
	for i := range e.entries {
		if e.entries[i].ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) indexByTempID(tempID string) int {
	if tempID == "" {
		return -1
	}
	for i := range e.entries {
		if e.entries[i].TempID == tempID {
			return i
		}
	}
	return -1
}

// LoadHistory 以 REST 結果整批取代 timeline
//
// 載入期間自己送出的訊息 (pending, failed 或剛確認但 history 還沒有) 保留在最後;
// history 內 client_ref 對得上的 pending entry 視為已確認
func (e *Engine) LoadHistory(history []WireMessage) Change {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries := make([]Entry, 0, len(history))
	seen := make(map[string]struct{}, len(history))
	refs := make(map[string]struct{})
	for _, w := range history {
		if _, dup := seen[w.ID]; dup {
			continue
		}
		seen[w.ID] = struct{}{}
		if w.ClientRef != "" {
			refs[w.ClientRef] = struct{}{}
		}
		entries = append(entries, e.fromWire(w))
	}

	for _, en := range e.entries {
		switch {
		case en.Status != StatusConfirmed:
			if _, ok := refs[en.TempID]; ok {
				continue
			}
		case en.ID != "":
			if _, ok := e.own[en.ID]; !ok {
				continue
			}
			if _, ok := seen[en.ID]; ok {
				continue
			}
		default:
			continue
		}
		entries = append(entries, en)
	}
	e.entries = entries
	e.distance = 0
	return Change{Kind: ChangeReload, Scroll: true}
}

// MergeHistory 重新連線後補齊缺漏: 只加入尚未存在的 canonical id, 保留 live entries
func (e *Engine) MergeHistory(history []WireMessage) Change {
	e.mu.Lock()
	defer e.mu.Unlock()

	follow := e.following()
	var confirmed, unconfirmed []Entry
	for _, en := range e.entries {
		if en.Status == StatusConfirmed {
			confirmed = append(confirmed, en)
		} else {
			unconfirmed = append(unconfirmed, en)
		}
	}

	seen := make(map[string]struct{}, len(e.entries))
	for _, en := range e.entries {
		if en.ID != "" {
			seen[en.ID] = struct{}{}
		}
	}

	added := 0
	for _, w := range history {
		if _, ok := seen[w.ID]; ok {
			continue
		}
		seen[w.ID] = struct{}{}
		confirmed = append(confirmed, e.fromWire(w))
		added++
	}
	if added == 0 {
		return Change{Kind: ChangeNone}
	}

	sort.SliceStable(confirmed, func(i, j int) bool {
		return confirmed[i].Timestamp.Before(confirmed[j].Timestamp)
	})
	e.entries = append(confirmed, unconfirmed...)
	return Change{Kind: ChangeReload, Scroll: follow}
}

// BeginSubmit 空白訊息直接拒絕; 否則加入一筆 pending entry, TempID 同時是送給 server 的 client_ref
func (e *Engine) BeginSubmit(text string) (Change, error) {
	text = domain.NormalizeText(text)
	if text == "" {
		return Change{}, fmt.Errorf("%w: cannot send an empty message", domain.ErrInvalidArgument)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	en := Entry{
		TempID:     e.newID(),
		SenderID:   e.self.ID,
		SenderName: e.self.Name,
		Text:       text,
		Status:     StatusPending,
		Timestamp:  e.now(),
	}
	e.entries = append(e.entries, en)
	// 自己送出的訊息一律捲到底
	e.distance = 0
	return Change{Kind: ChangeAppend, Entry: en, Scroll: true}, nil
}

// ConfirmSubmit server 回應成功, 以 canonical 訊息取代 pending entry
func (e *Engine) ConfirmSubmit(tempID string, canonical WireMessage) Change {
	e.mu.Lock()
	defer e.mu.Unlock()

	confirmed := e.fromWire(canonical)
	idx := e.indexByTempID(tempID)
	existing := e.indexByID(canonical.ID)

	switch {
	case idx < 0 && existing >= 0:
		// 廣播先到, 已經升級過
		return Change{Kind: ChangeNone, Entry: e.entries[existing]}
	case idx < 0:
		e.own[confirmed.ID] = struct{}{}
		e.entries = append(e.entries, confirmed)
		return Change{Kind: ChangeAppend, Entry: confirmed, Scroll: e.following()}
	case existing >= 0:
		removed := e.entries[idx]
		e.entries = append(e.entries[:idx], e.entries[idx+1:]...)
		return Change{Kind: ChangeRemove, Entry: removed}
	default:
		e.own[confirmed.ID] = struct{}{}
		e.entries[idx] = confirmed
		return Change{Kind: ChangeReplace, Entry: confirmed, Scroll: e.following()}
	}
}

// FailSubmit 標記失敗, 已確認的 entry 不受影響
func (e *Engine) FailSubmit(tempID string, _ error) Change {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexByTempID(tempID)
	if idx < 0 || e.entries[idx].Status != StatusPending {
		return Change{Kind: ChangeNone}
	}
	e.entries[idx].Status = StatusFailed
	e.entries[idx].Text += failedSuffix
	return Change{Kind: ChangeReplace, Entry: e.entries[idx]}
}

// ApplyBroadcast 廣播訊息: 已存在就略過, 對得上 pending entry 就原地升級, 否則加到最後
func (e *Engine) ApplyBroadcast(w WireMessage) Change {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.indexByID(w.ID) >= 0 {
		return Change{Kind: ChangeNone}
	}

	follow := e.following()
	if idx := e.matchOwn(w); idx >= 0 {
		e.own[w.ID] = struct{}{}
		e.entries[idx] = e.fromWire(w)
		return Change{Kind: ChangeReplace, Entry: e.entries[idx], Scroll: follow}
	}

	en := e.fromWire(w)
	e.entries = append(e.entries, en)
	return Change{Kind: ChangeAppend, Entry: en, Scroll: follow}
}

// matchOwn 優先用 client_ref 對應; 沒有 client_ref 時退回 sender + text 比對最舊的 pending
func (e *Engine) matchOwn(w WireMessage) int {
	if w.ClientRef != "" {
		return e.indexByTempID(w.ClientRef)
	}
	for i, en := range e.entries {
		if en.Status == StatusPending && en.SenderID == w.SenderID && en.Text == w.Text {
			return i
		}
	}
	return -1
}

// ApplyUpdate edited message, unknown id is ignored
func (e *Engine) ApplyUpdate(w WireMessage) Change {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexByID(w.ID)
	if idx < 0 {
		return Change{Kind: ChangeNone}
	}
	e.entries[idx].Text = w.Text
	e.entries[idx].Edited = true
	return Change{Kind: ChangeUpdate, Entry: e.entries[idx]}
}

// ApplyDelete removed message, unknown id is ignored
func (e *Engine) ApplyDelete(id string) Change {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexByID(id)
	if idx < 0 {
		return Change{Kind: ChangeNone}
	}
	removed := e.entries[idx]
	e.entries = append(e.entries[:idx], e.entries[idx+1:]...)
	return Change{Kind: ChangeRemove, Entry: removed}
}

// Apply route a realtime event
func (e *Engine) Apply(ev ServerEvent) Change {
	switch ev.Action {
	case domain.NewMessage:
		if ev.Message != nil {
			return e.ApplyBroadcast(*ev.Message)
		}
	case domain.UpdateMessage:
		if ev.Message != nil {
			return e.ApplyUpdate(*ev.Message)
		}
	case domain.DeleteMessage:
		return e.ApplyDelete(ev.MessageID)
	}
	return Change{Kind: ChangeNone}
}

// Reset drop every entry
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = nil
	e.own = make(map[string]struct{})
	e.distance = 0
}

// Snapshot copy of the timeline
func (e *Engine) Snapshot() []Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Entry, len(e.entries))
	copy(out, e.entries)
	return out
}

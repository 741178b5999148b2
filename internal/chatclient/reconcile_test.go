package chatclient

import (
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"group_chat_service/internal/chat/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = domain.Identity{ID: 1, Name: "Alice"}
	bob   = domain.Identity{ID: 2, Name: "Bob"}
	epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
)

func newTestEngine(t *testing.T, self domain.Identity) *Engine {
	t.Helper()
	e, err := NewEngine(self)
	require.NoError(t, err)
	n := 0
	e.now = func() time.Time { return epoch }
	e.newID = func() string {
		n++
		return "tmp-" + strconv.Itoa(n)
	}
	return e
}

func wire(id string, sender domain.Identity, text string, at time.Time) WireMessage {
	return WireMessage{
		ID:       id,
		GroupID:  9,
		SenderID: sender.ID,
		Sender:   sender,
		Text:     text,
		SentAt:   at.Format(time.RFC3339Nano),
	}
}

func texts(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Text)
	}
	return out
}

func TestEngine_LoadHistoryReplaces(t *testing.T) {
	e := newTestEngine(t, alice)
	e.ApplyBroadcast(wire("old", bob, "stale", epoch))

	c := e.LoadHistory([]WireMessage{
		wire("a", bob, "first", epoch),
		wire("b", alice, "second", epoch.Add(time.Second)),
		wire("b", alice, "second", epoch.Add(time.Second)),
	})
	assert.Equal(t, ChangeReload, c.Kind)
	assert.True(t, c.Scroll)
	assert.Equal(t, []string{"first", "second"}, texts(e.Snapshot()))
}

// history 載入期間自己送出的訊息保留, 已在 history 的不重複
func TestEngine_LoadHistoryKeepsOwnSubmissions(t *testing.T) {
	e := newTestEngine(t, alice)
	e.ApplyBroadcast(wire("stale", bob, "stale", epoch))

	_, err := e.BeginSubmit("a") // tmp-1, history 會帶 client_ref
	require.NoError(t, err)
	_, err = e.BeginSubmit("b") // tmp-2, 已確認但 history 還沒有
	require.NoError(t, err)
	_, err = e.BeginSubmit("c") // tmp-3, 仍在等待
	require.NoError(t, err)
	_, err = e.BeginSubmit("d") // tmp-4, 已確認且 history 有
	require.NoError(t, err)
	e.ConfirmSubmit("tmp-2", wire("m2", alice, "b", epoch))
	e.ConfirmSubmit("tmp-4", wire("m4", alice, "d", epoch))

	m1 := wire("m1", alice, "a", epoch)
	m1.ClientRef = "tmp-1"
	c := e.LoadHistory([]WireMessage{
		wire("old", bob, "old", epoch),
		m1,
		wire("m4", alice, "d", epoch),
	})
	assert.Equal(t, ChangeReload, c.Kind)
	assert.Equal(t, []string{"old", "a", "d", "b", "c"}, texts(e.Snapshot()))

	// tmp-1 已由 history 確認, 之後的回應不會再加一筆
	assert.Equal(t, ChangeNone, e.ConfirmSubmit("tmp-1", m1).Kind)
	assert.Equal(t, ChangeReplace, e.FailSubmit("tmp-3", errors.New("boom")).Kind)
	assert.Len(t, e.Snapshot(), 5)

	// Reset 之後不再保留
	e.Reset()
	e.LoadHistory(nil)
	assert.Empty(t, e.Snapshot())
}

func TestEngine_MalformedTimestampFallsBackToClock(t *testing.T) {
	e := newTestEngine(t, alice)
	w := wire("a", bob, "x", epoch)
	w.SentAt = "yesterday-ish"
	e.LoadHistory([]WireMessage{w})
	assert.Equal(t, epoch, e.Snapshot()[0].Timestamp)
}

func TestEngine_BeginSubmitRejectsEmpty(t *testing.T) {
	e := newTestEngine(t, alice)
	_, err := e.BeginSubmit("  \t\n")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Empty(t, e.Snapshot())
}

// 送出 "hello" 後收到同 sender 同內容的廣播 (沒有 client_ref), 只顯示一筆且不是 pending
func TestEngine_BroadcastHeuristicDedup(t *testing.T) {
	e := newTestEngine(t, alice)
	c, err := e.BeginSubmit("hello")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, c.Entry.Status)
	assert.True(t, c.Scroll)

	change := e.ApplyBroadcast(wire("m1", alice, "hello", epoch))
	assert.Equal(t, ChangeReplace, change.Kind)

	got := e.Snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, StatusConfirmed, got[0].Status)
	assert.Empty(t, got[0].TempID)

	// REST 回應晚到, 不可產生重複
	assert.Equal(t, ChangeNone, e.ConfirmSubmit(c.Entry.TempID, wire("m1", alice, "hello", epoch)).Kind)
	assert.Len(t, e.Snapshot(), 1)
}

// 同樣內容連送兩次, 用 client_ref 對應不會配錯
func TestEngine_CorrelationTokenBeatsHeuristic(t *testing.T) {
	e := newTestEngine(t, alice)
	first, _ := e.BeginSubmit("same")
	second, _ := e.BeginSubmit("same")

	w := wire("m2", alice, "same", epoch)
	w.ClientRef = second.Entry.TempID
	e.ApplyBroadcast(w)

	got := e.Snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, StatusPending, got[0].Status)
	assert.Equal(t, first.Entry.TempID, got[0].TempID)
	assert.Equal(t, "m2", got[1].ID)
}

func TestEngine_ConfirmThenBroadcast(t *testing.T) {
	e := newTestEngine(t, alice)
	c, _ := e.BeginSubmit("hi")

	change := e.ConfirmSubmit(c.Entry.TempID, wire("m1", alice, "hi", epoch.Add(time.Minute)))
	assert.Equal(t, ChangeReplace, change.Kind)
	got := e.Snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, epoch.Add(time.Minute), got[0].Timestamp)

	assert.Equal(t, ChangeNone, e.ApplyBroadcast(wire("m1", alice, "hi", epoch)).Kind)
	assert.Len(t, e.Snapshot(), 1)

	// temp id 不會再出現
	for _, en := range e.Snapshot() {
		assert.NotEqual(t, c.Entry.TempID, en.TempID)
	}
}

func TestEngine_ConfirmAfterUnmatchedBroadcastRemovesTemp(t *testing.T) {
	e := newTestEngine(t, alice)
	c, _ := e.BeginSubmit("hi")

	// 廣播帶了別的 client_ref, 先被當成另一筆加入
	w := wire("m1", alice, "hi", epoch)
	w.ClientRef = "other-tab"
	e.ApplyBroadcast(w)
	require.Len(t, e.Snapshot(), 2)

	change := e.ConfirmSubmit(c.Entry.TempID, wire("m1", alice, "hi", epoch))
	assert.Equal(t, ChangeRemove, change.Kind)
	got := e.Snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)
}

func TestEngine_FailSubmit(t *testing.T) {
	e := newTestEngine(t, alice)
	c, _ := e.BeginSubmit("doomed")

	change := e.FailSubmit(c.Entry.TempID, domain.ErrPersistenceFailure)
	assert.Equal(t, ChangeReplace, change.Kind)

	got := e.Snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, StatusFailed, got[0].Status)
	assert.Equal(t, "doomed (failed to send)", got[0].Text)
	assert.Empty(t, got[0].ID)

	// 失敗的 entry 不會被 heuristic 誤配
	e.ApplyBroadcast(wire("x", alice, "doomed", epoch))
	assert.Len(t, e.Snapshot(), 2)

	// 重複標記無效
	assert.Equal(t, ChangeNone, e.FailSubmit(c.Entry.TempID, errors.New("again")).Kind)
}

func TestEngine_FailAfterConfirmIgnored(t *testing.T) {
	e := newTestEngine(t, alice)
	c, _ := e.BeginSubmit("hi")
	e.ApplyBroadcast(wire("m1", alice, "hi", epoch))

	assert.Equal(t, ChangeNone, e.FailSubmit(c.Entry.TempID, domain.ErrTransportFailure).Kind)
	assert.Equal(t, StatusConfirmed, e.Snapshot()[0].Status)
}

func TestEngine_BroadcastFromOthersAppends(t *testing.T) {
	e := newTestEngine(t, alice)
	e.LoadHistory([]WireMessage{wire("a", bob, "first", epoch)})

	c := e.ApplyBroadcast(wire("b", bob, "second", epoch))
	assert.Equal(t, ChangeAppend, c.Kind)
	assert.Equal(t, ChangeNone, e.ApplyBroadcast(wire("b", bob, "second", epoch)).Kind)
	assert.Equal(t, []string{"first", "second"}, texts(e.Snapshot()))
}

func TestEngine_ScrollFollow(t *testing.T) {
	e := newTestEngine(t, alice)
	e.LoadHistory(nil)

	assert.True(t, e.ApplyBroadcast(wire("a", bob, "1", epoch)).Scroll)

	e.SetViewport(DefaultFollowThreshold)
	assert.True(t, e.ApplyBroadcast(wire("b", bob, "2", epoch)).Scroll)

	// 正在看舊訊息, 不要拉到底
	e.SetViewport(DefaultFollowThreshold + 10)
	assert.False(t, e.ApplyBroadcast(wire("c", bob, "3", epoch)).Scroll)

	// 自己送出的訊息一定捲到底
	c, _ := e.BeginSubmit("mine")
	assert.True(t, c.Scroll)
	assert.True(t, e.ApplyBroadcast(wire("d", bob, "4", epoch)).Scroll)
}

func TestEngine_UpdateAndDelete(t *testing.T) {
	e := newTestEngine(t, alice)
	e.LoadHistory([]WireMessage{wire("a", bob, "first", epoch), wire("b", bob, "second", epoch)})

	up := wire("a", bob, "first!", epoch)
	c := e.ApplyUpdate(up)
	assert.Equal(t, ChangeUpdate, c.Kind)
	assert.True(t, c.Entry.Edited)

	assert.Equal(t, ChangeRemove, e.ApplyDelete("b").Kind)
	assert.Equal(t, ChangeNone, e.ApplyDelete("b").Kind)
	assert.Equal(t, ChangeNone, e.ApplyUpdate(wire("zzz", bob, "?", epoch)).Kind)
	assert.Equal(t, []string{"first!"}, texts(e.Snapshot()))
}

func TestEngine_MergeHistoryFillsGap(t *testing.T) {
	e := newTestEngine(t, alice)
	e.LoadHistory([]WireMessage{wire("a", bob, "1", epoch)})
	e.ApplyBroadcast(wire("c", bob, "3", epoch.Add(3*time.Second)))
	e.BeginSubmit("pending")

	c := e.MergeHistory([]WireMessage{
		wire("a", bob, "1", epoch),
		wire("b", bob, "2", epoch.Add(2*time.Second)),
		wire("c", bob, "3", epoch.Add(3*time.Second)),
	})
	assert.Equal(t, ChangeReload, c.Kind)
	assert.Equal(t, []string{"1", "2", "3", "pending"}, texts(e.Snapshot()))

	assert.Equal(t, ChangeNone, e.MergeHistory([]WireMessage{wire("b", bob, "2", epoch)}).Kind)
}

// 廣播與 send 回應同時到達, 結果仍然只有一筆
func TestEngine_ConcurrentConfirmAndBroadcast(t *testing.T) {
	for i := 0; i < 50; i++ {
		e := newTestEngine(t, alice)
		c, _ := e.BeginSubmit("race")
		canonical := wire("m1", alice, "race", epoch)
		canonical.ClientRef = c.Entry.TempID

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); e.ConfirmSubmit(c.Entry.TempID, canonical) }()
		go func() { defer wg.Done(); e.ApplyBroadcast(canonical) }()
		wg.Wait()

		got := e.Snapshot()
		require.Len(t, got, 1)
		assert.Equal(t, StatusConfirmed, got[0].Status)
	}
}

func TestEngine_ApplyRoutesEvents(t *testing.T) {
	e := newTestEngine(t, alice)
	m := wire("a", bob, "x", epoch)
	assert.Equal(t, ChangeAppend, e.Apply(ServerEvent{Action: domain.NewMessage, Message: &m}).Kind)
	assert.Equal(t, ChangeRemove, e.Apply(ServerEvent{Action: domain.DeleteMessage, MessageID: "a"}).Kind)
	assert.Equal(t, ChangeNone, e.Apply(ServerEvent{Action: domain.NewMessage}).Kind)
}

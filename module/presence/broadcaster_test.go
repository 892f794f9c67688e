package presence

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	mu        sync.Mutex
	published []fakeMsg
	delivered []fakeMsg
	failNext  bool
}

type fakeMsg struct {
	User    string // 点对点目标；Publish 留空
	Topic   string
	Payload []byte
}

func (f *fakeBus) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errFake
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.published = append(f.published, fakeMsg{Topic: topic, Payload: cp})
	return nil
}

func (f *fakeBus) DeliverToUser(user, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errFake
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.delivered = append(f.delivered, fakeMsg{User: user, Topic: topic, Payload: cp})
	return nil
}

func (f *fakeBus) deliveriesTo(user string) []fakeMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeMsg
	for _, m := range f.delivered {
		if m.User == user {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeBus) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func (f *fakeBus) statusEvents(t *testing.T, user string) []StatusEvent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []StatusEvent
	for _, m := range f.published {
		var ev StatusEvent
		require.NoError(t, json.Unmarshal(m.Payload, &ev))
		if ev.Type == EventTypeStatusUpdate && (user == "" || ev.Username == user) {
			out = append(out, ev)
		}
	}
	return out
}

var errFake = &fakeErr{}

type fakeErr struct{}

func (*fakeErr) Error() string { return "bus down" }

func TestBroadcasterDedup(t *testing.T) {
	bus := &fakeBus{}
	b := NewBroadcaster(bus, "user.events")

	r := ClassifyResult{State: StateActive, Online: true, LastSeenText: "online"}

	sent, err := b.PublishStatus("alice", r, 1, false)
	require.NoError(t, err)
	require.True(t, sent)

	// 同样内容再发（sweep 路径）：吞掉
	sent, err = b.PublishStatus("alice", r, 1, false)
	require.NoError(t, err)
	require.False(t, sent)
	require.Equal(t, 1, bus.count())

	// 内容变了就放行
	r2 := ClassifyResult{State: StateInactive, LastSeenText: "3 minutes ago"}
	sent, err = b.PublishStatus("alice", r2, 1, false)
	require.NoError(t, err)
	require.True(t, sent)
	require.Equal(t, 2, bus.count())
}

func TestBroadcasterForceBypassesDedup(t *testing.T) {
	bus := &fakeBus{}
	b := NewBroadcaster(bus, "user.events")

	r := ClassifyResult{State: StateActive, Online: true, LastSeenText: "online"}
	sent, err := b.PublishStatus("alice", r, 1, true)
	require.NoError(t, err)
	require.True(t, sent)
	// connect/disconnect 即时路径永远要发出去
	sent, err = b.PublishStatus("alice", r, 1, true)
	require.NoError(t, err)
	require.True(t, sent)
	require.Equal(t, 2, bus.count())
}

func TestBroadcasterDedupPerUser(t *testing.T) {
	bus := &fakeBus{}
	b := NewBroadcaster(bus, "user.events")

	r := ClassifyResult{State: StateActive, Online: true, LastSeenText: "online"}
	_, err := b.PublishStatus("alice", r, 1, false)
	require.NoError(t, err)
	_, err = b.PublishStatus("bob", r, 1, false)
	require.NoError(t, err)
	require.Equal(t, 2, bus.count())
}

func TestBroadcasterWireShape(t *testing.T) {
	bus := &fakeBus{}
	b := NewBroadcaster(bus, "user.events")

	r := ClassifyResult{State: StateOffline, LastSeenText: "Last seen at 14:20"}
	_, err := b.PublishStatus("alice", r, 0, true)
	require.NoError(t, err)

	evs := bus.statusEvents(t, "alice")
	require.Len(t, evs, 1)
	require.Equal(t, "USER_STATUS_UPDATE", evs[0].Type)
	require.Equal(t, "alice", evs[0].Username)
	require.False(t, evs[0].Online)
	require.Equal(t, StateOffline, evs[0].Status)
	require.Equal(t, "Last seen at 14:20", evs[0].LastSeenText)

	// devices==0 时线格式里不出现该字段
	var raw map[string]any
	require.NoError(t, json.Unmarshal(bus.published[0].Payload, &raw))
	_, has := raw["devices"]
	require.False(t, has)
}

func TestBroadcasterDeliverOnlineUsersTargeted(t *testing.T) {
	bus := &fakeBus{}
	b := NewBroadcaster(bus, "user.events")

	require.NoError(t, b.DeliverOnlineUsers("alice", []string{"alice", "bob"}))

	// 点对点直投，不走全局 topic
	require.Equal(t, 0, bus.count())
	msgs := bus.deliveriesTo("alice")
	require.Len(t, msgs, 1)

	var ev OnlineUsersEvent
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &ev))
	require.Equal(t, EventTypeOnlineUsers, ev.Type)
	require.Equal(t, []string{"alice", "bob"}, ev.Users)
}

func TestBroadcasterDeliveryErrorDoesNotPoisonDedup(t *testing.T) {
	bus := &fakeBus{failNext: true}
	b := NewBroadcaster(bus, "user.events")

	r := ClassifyResult{State: StateActive, Online: true, LastSeenText: "online"}
	sent, err := b.PublishStatus("alice", r, 1, false)
	require.Error(t, err)
	require.False(t, sent)

	// 投递失败不进去重缓存，下一次 sweep 补发同样内容
	sent, err = b.PublishStatus("alice", r, 1, false)
	require.NoError(t, err)
	require.True(t, sent)
	require.Equal(t, 1, bus.count())
}

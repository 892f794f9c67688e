package presence

import (
	"bytes"
	"encoding/json"
	"sync"

	"MProject/logger"
	"MProject/tools/errs"
)

// Bus 广播总线抽象。publish 进全局状态 topic，
// deliver 点对点投给某个用户的所有端。只追加，不回读。
type Bus interface {
	Publish(topic string, payload []byte) error
	DeliverToUser(user, topic string, payload []byte) error
}

// Broadcaster 把展示态编码成线事件发出去。
// sweep 路径带去重：和上一次发出的字节完全一致就跳过，
// 压住周期对账的广播量；connect/disconnect 的即时路径不去重。
type Broadcaster struct {
	bus   Bus
	topic string

	mu   sync.Mutex
	last map[string][]byte // user -> 上次发出的payload
}

func NewBroadcaster(bus Bus, topic string) *Broadcaster {
	return &Broadcaster{
		bus:   bus,
		topic: topic,
		last:  make(map[string][]byte),
	}
}

// PublishStatus 发布一条状态事件。force=true 绕过去重（即时触发路径）。
// 返回是否真的发出去了：false 表示被去重吞掉。
// 错误只用于记日志，投递失败由下一次 sweep 自愈。
func (b *Broadcaster) PublishStatus(user string, r ClassifyResult, devices int, force bool) (bool, error) {
	ev := StatusEvent{
		Type:         EventTypeStatusUpdate,
		Username:     user,
		Online:       r.Online,
		Status:       r.State,
		LastSeenText: r.LastSeenText,
		Devices:      devices,
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !force && bytes.Equal(b.last[user], payload) {
		return false, nil
	}
	if err := b.bus.Publish(b.topic, payload); err != nil {
		// 发失败不进去重缓存，下一次 sweep 才能补发同样内容
		return false, errs.ErrBroadcastDelivery.WrapMsg("status publish", "user", user, "err", err)
	}
	b.last[user] = payload
	logger.Debugf("[presence] status %s -> %s (%s)", user, r.State, r.LastSeenText)
	return true, nil
}

// Forget 丢掉该用户的去重缓存。长期 offline 的用户被 sweep
// 踢出遍历集时一起清，两张表才不会一直涨。
func (b *Broadcaster) Forget(user string) {
	b.mu.Lock()
	delete(b.last, user)
	b.mu.Unlock()
}

// PublishOnlineUsers 推在线用户列表（connect/disconnect 之后）
func (b *Broadcaster) PublishOnlineUsers(users []string) error {
	payload, err := json.Marshal(OnlineUsersEvent{Type: EventTypeOnlineUsers, Users: users})
	if err != nil {
		return err
	}
	if err := b.bus.Publish(b.topic, payload); err != nil {
		return errs.ErrBroadcastDelivery.WrapMsg("online users publish", "err", err)
	}
	return nil
}

// DeliverOnlineUsers 给单个用户的所有端直投在线列表（新端上线的首包）
func (b *Broadcaster) DeliverOnlineUsers(user string, users []string) error {
	payload, err := json.Marshal(OnlineUsersEvent{Type: EventTypeOnlineUsers, Users: users})
	if err != nil {
		return err
	}
	if err := b.bus.DeliverToUser(user, b.topic, payload); err != nil {
		return errs.ErrBroadcastDelivery.WrapMsg("online users deliver", "user", user, "err", err)
	}
	return nil
}

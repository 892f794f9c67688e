package chat

import (
	"MProject/service/natsx"
)

// StatusBus 广播总线实现：NATS 跨节点 + 本节点 ws 直投。
// producer 可以为 nil（单节点/本地跑），这时只做本地扇出。
type StatusBus struct {
	producer *natsx.Producer
	mgr      *ConnManager
	prefix   string // 点对点 subject 前缀，如 "user.deliver."
}

func NewStatusBus(producer *natsx.Producer, mgr *ConnManager, userPrefix string) *StatusBus {
	return &StatusBus{producer: producer, mgr: mgr, prefix: userPrefix}
}

// Publish 全局状态 topic：发 NATS，同时给本节点所有连接直投
func (b *StatusBus) Publish(topic string, payload []byte) error {
	b.mgr.FanoutAll(payload)
	if b.producer == nil {
		return nil
	}
	return b.producer.Publish(topic, payload, nil)
}

// DeliverToUser 点对点：本节点命中就直投，另发 NATS 让其他节点接力
func (b *StatusBus) DeliverToUser(user, topic string, payload []byte) error {
	b.mgr.SendToUser(user, payload)
	if b.producer == nil {
		return nil
	}
	return b.producer.Publish(b.prefix+user, payload, map[string]string{"topic": topic})
}

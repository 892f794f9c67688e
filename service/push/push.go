package push

import (
	"context"
	"time"

	"MProject/logger"
	"MProject/service/natsx"
)

// Sender 重连提示推送。fire-and-forget，尽力而为：
// 移动端网关订阅 subject 后转成真正的厂商推送。
type Sender interface {
	SendReconnectHint(ctx context.Context, user string) error
	SendReconnectHintBatch(ctx context.Context, users []string) error
}

type hint struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Ts       int64  `json:"ts"`
}

// NatsSender 把提示发到 push subject
type NatsSender struct {
	producer *natsx.Producer
	subject  string
	delay    time.Duration // 批量发送的间隔，别把推送通道打爆
}

var _ Sender = (*NatsSender)(nil)

func NewNatsSender(producer *natsx.Producer, subject string, delay time.Duration) *NatsSender {
	return &NatsSender{producer: producer, subject: subject, delay: delay}
}

func (s *NatsSender) SendReconnectHint(_ context.Context, user string) error {
	return s.producer.PublishJSON(s.subject, hint{
		Type:     "RECONNECT",
		Username: user,
		Ts:       time.Now().UnixMilli(),
	})
}

func (s *NatsSender) SendReconnectHintBatch(ctx context.Context, users []string) error {
	for i, u := range users {
		if err := s.SendReconnectHint(ctx, u); err != nil {
			// 尽力而为：失败只记日志，继续发剩下的
			logger.Warnf("[push] reconnect hint failed user=%s: %v", u, err)
		}
		if s.delay > 0 && i != len(users)-1 {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// NopSender 没接推送通道时的占位实现，只记日志
type NopSender struct{}

var _ Sender = (*NopSender)(nil)

func (NopSender) SendReconnectHint(_ context.Context, user string) error {
	logger.Infof("[push] (nop) reconnect hint user=%s", user)
	return nil
}

func (NopSender) SendReconnectHintBatch(ctx context.Context, users []string) error {
	for _, u := range users {
		_ = NopSender{}.SendReconnectHint(ctx, u)
	}
	return nil
}

package presence

import (
	"context"

	"MProject/logger"
	"MProject/service/push"
)

// Recovery 重启恢复：关机时把在线用户落盘，
// 开机时给他们发重连提示。不恢复 registry：
// 重启后所有会话定义上已经死了，只能让客户端自己重连。
type Recovery struct {
	store Store
	snap  SnapshotStore
	push  push.Sender
}

func NewRecovery(store Store, snap SnapshotStore, sender push.Sender) *Recovery {
	return &Recovery{store: store, snap: snap, push: sender}
}

// Shutdown 进程退出前调用
func (r *Recovery) Shutdown(ctx context.Context) {
	users, err := r.store.OnlineUsers(ctx)
	if err != nil {
		logger.Errorf("[recovery] online users snapshot failed: %v", err)
		return
	}
	if len(users) == 0 {
		return
	}
	if err := r.snap.SaveOnlineUsers(users); err != nil {
		logger.Errorf("[recovery] save snapshot failed: %v", err)
		return
	}
	logger.Infof("[recovery] saved %d online users for restart wakeup", len(users))
}

// Startup 进程起来后调用。快照读后即删，恰好消费一次。
func (r *Recovery) Startup(ctx context.Context) {
	users, err := r.snap.LoadAndClearOnlineUsers()
	if err != nil {
		logger.Errorf("[recovery] load snapshot failed: %v", err)
		return
	}
	if len(users) == 0 {
		return
	}
	logger.Infof("[recovery] waking up %d previously online users", len(users))
	if err := r.push.SendReconnectHintBatch(ctx, users); err != nil {
		logger.Warnf("[recovery] reconnect hint batch ended early: %v", err)
	}
}

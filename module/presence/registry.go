package presence

import (
	"context"
	"time"
)

// StaleRemove 是 Remove 的哨兵返回值：会话本来就不在，
// 调用方的视图已经过期（并发断开常见），不是错误。
const StaleRemove = -1

// Store 会话注册表的存储契约。
//
// 并发约束：Add/Remove 必须对"单个 user+session"原子，
// 且返回值里的 count 必须与本次变更同一原子操作得到：
// 0↔1 的迁移检测只能用返回值，禁止再查一次 Count（会被并发事件夹击）。
type Store interface {
	// Add 幂等加入会话并（重）设过期时间，返回该用户当前活跃会话数
	Add(ctx context.Context, user, sessionID string, ttl time.Duration) (int, error)

	// Remove 移除会话，返回剩余活跃会话数；
	// 会话不存在时返回 StaleRemove（不报错）
	Remove(ctx context.Context, user, sessionID string) (int, error)

	// RemoveAll 强制清掉该用户全部会话（显式登出）
	RemoveAll(ctx context.Context, user string) error

	// Refresh 只续期已存在的会话；不存在返回 false，绝不复活
	Refresh(ctx context.Context, user, sessionID string, ttl time.Duration) (bool, error)

	// Count 当前未过期会话数
	Count(ctx context.Context, user string) (int, error)

	// OnlineUsers 所有 count>0 用户的快照
	OnlineUsers(ctx context.Context) ([]string, error)

	// last-seen：仅在会话数跌到 0 那一刻写入，0→1 时清除
	SetLastSeen(ctx context.Context, user string, t time.Time) error
	ClearLastSeen(ctx context.Context, user string) error
	LastSeen(ctx context.Context, user string) (time.Time, bool, error)

	// last-activity：客户端显式心跳，只增不减，永不清除
	SetLastActivity(ctx context.Context, user string, t time.Time) error
	LastActivity(ctx context.Context, user string) (time.Time, bool, error)
}

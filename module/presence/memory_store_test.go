package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestMemoryStoreAddRemoveCounts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	n, err := s.Add(ctx, "alice", "s1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.Add(ctx, "alice", "s2", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// 幂等：同一个会话再加不涨数
	n, err = s.Add(ctx, "alice", "s2", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = s.Remove(ctx, "alice", "s1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.Remove(ctx, "alice", "s2")
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestMemoryStoreRemoveStale(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, _ = s.Add(ctx, "alice", "s1", time.Minute)
	n, err := s.Remove(ctx, "alice", "s1")
	require.NoError(t, err)
	require.Equal(t, 0, n)

	// 二次移除：返回哨兵值，不是错误
	n, err = s.Remove(ctx, "alice", "s1")
	require.NoError(t, err)
	require.Equal(t, StaleRemove, n)

	n, err = s.Remove(ctx, "nobody", "sX")
	require.NoError(t, err)
	require.Equal(t, StaleRemove, n)
}

func TestMemoryStoreCountOnlineInvariant(t *testing.T) {
	// count==0 ⇔ 不在 onlineUsers 里
	ctx := context.Background()
	s := NewMemoryStore()

	check := func(user string) {
		n, err := s.Count(ctx, user)
		require.NoError(t, err)
		users, err := s.OnlineUsers(ctx)
		require.NoError(t, err)
		found := false
		for _, u := range users {
			if u == user {
				found = true
			}
		}
		require.Equal(t, n > 0, found)
	}

	check("alice")
	_, _ = s.Add(ctx, "alice", "s1", time.Minute)
	check("alice")
	_, _ = s.Add(ctx, "alice", "s2", time.Minute)
	check("alice")
	_, _ = s.Remove(ctx, "alice", "s1")
	check("alice")
	_, _ = s.Remove(ctx, "alice", "s2")
	check("alice")
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
	s := NewMemoryStore(WithClock(clock.Now))

	_, _ = s.Add(ctx, "alice", "s1", 30*time.Minute)

	clock.Advance(29 * time.Minute)
	n, err := s.Count(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// 没有任何断开事件，TTL 过了就自动蒸发
	clock.Advance(2 * time.Minute)
	n, err = s.Count(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 0, n)

	users, err := s.OnlineUsers(ctx)
	require.NoError(t, err)
	require.Empty(t, users)
}

func TestMemoryStoreRefreshNeverResurrects(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
	s := NewMemoryStore(WithClock(clock.Now))

	// 不存在的会话
	ok, err := s.Refresh(ctx, "alice", "ghost", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	// 已过期的会话同样不给续
	_, _ = s.Add(ctx, "alice", "s1", time.Minute)
	clock.Advance(2 * time.Minute)
	ok, err = s.Refresh(ctx, "alice", "s1", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	n, _ := s.Count(ctx, "alice")
	require.Equal(t, 0, n)
}

func TestMemoryStoreRefreshExtends(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
	s := NewMemoryStore(WithClock(clock.Now))

	_, _ = s.Add(ctx, "alice", "s1", 10*time.Minute)
	clock.Advance(8 * time.Minute)

	ok, err := s.Refresh(ctx, "alice", "s1", 10*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(8 * time.Minute)
	n, _ := s.Count(ctx, "alice")
	require.Equal(t, 1, n)
}

func TestMemoryStoreLastActivityMonotonic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetLastActivity(ctx, "alice", base))
	// 乱序到达的旧心跳不能把时间拉回去
	require.NoError(t, s.SetLastActivity(ctx, "alice", base.Add(-time.Minute)))

	got, ok, err := s.LastActivity(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, base, got)
}

func TestMemoryStoreConcurrentAddRemove(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		sid := "s" + string(rune('a'+i%26)) + string(rune('0'+i/26))
		go func(sid string) {
			defer wg.Done()
			_, _ = s.Add(ctx, "alice", sid, time.Minute)
		}(sid)
		go func(sid string) {
			defer wg.Done()
			_, _ = s.Remove(ctx, "alice", sid)
		}(sid)
	}
	wg.Wait()

	// 不管交错成什么样，收尾全部移除后必须归零
	users, _ := s.OnlineUsers(ctx)
	for _, u := range users {
		require.Equal(t, "alice", u)
	}
	for i := 0; i < 50; i++ {
		sid := "s" + string(rune('a'+i%26)) + string(rune('0'+i/26))
		_, _ = s.Remove(ctx, "alice", sid)
	}
	n, _ := s.Count(ctx, "alice")
	require.Equal(t, 0, n)
	users, _ = s.OnlineUsers(ctx)
	require.Empty(t, users)
}

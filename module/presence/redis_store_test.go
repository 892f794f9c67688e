package presence

import (
	"context"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// 依赖本地 redis，连不上就跳过
func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb)
}

func testUser(t *testing.T) string {
	return fmt.Sprintf("t_%s_%d", t.Name(), time.Now().UnixNano())
}

func TestRedisStoreAddRemoveCounts(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	user := testUser(t)

	n, err := store.Add(ctx, user, "s1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = store.Add(ctx, user, "s2", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// 重复加同一个会话只是续期，计数不变
	n, err = store.Add(ctx, user, "s2", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = store.Remove(ctx, user, "s1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = store.Remove(ctx, user, "s2")
	require.NoError(t, err)
	require.Equal(t, 0, n)

	// 会话不存在：哨兵值，不是错误
	n, err = store.Remove(ctx, user, "s2")
	require.NoError(t, err)
	require.Equal(t, StaleRemove, n)
}

func TestRedisStoreSessionExpiry(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	user := testUser(t)

	_, err := store.Add(ctx, user, "s1", 50*time.Millisecond)
	require.NoError(t, err)

	n, err := store.Count(ctx, user)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	time.Sleep(80 * time.Millisecond)
	n, err = store.Count(ctx, user)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestRedisStoreRefreshNeverResurrects(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	user := testUser(t)

	ok, err := store.Refresh(ctx, user, "ghost", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	n, err := store.Count(ctx, user)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestRedisStoreOnlineUsersTracksMembership(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	user := testUser(t)

	_, err := store.Add(ctx, user, "s1", time.Minute)
	require.NoError(t, err)
	users, err := store.OnlineUsers(ctx)
	require.NoError(t, err)
	require.Contains(t, users, user)

	_, err = store.Remove(ctx, user, "s1")
	require.NoError(t, err)
	users, err = store.OnlineUsers(ctx)
	require.NoError(t, err)
	require.NotContains(t, users, user)
}

func TestRedisStoreLastSeenLifecycle(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	user := testUser(t)

	_, ok, err := store.LastSeen(ctx, user)
	require.NoError(t, err)
	require.False(t, ok)

	ts := time.Now().Truncate(time.Millisecond)
	require.NoError(t, store.SetLastSeen(ctx, user, ts))
	got, ok, err := store.LastSeen(ctx, user)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ts.UnixMilli(), got.UnixMilli())

	require.NoError(t, store.ClearLastSeen(ctx, user))
	_, ok, err = store.LastSeen(ctx, user)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisStoreLastActivityMonotonic(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	user := testUser(t)

	later := time.Now()
	earlier := later.Add(-time.Minute)

	require.NoError(t, store.SetLastActivity(ctx, user, later))
	// 乱序到达的旧信号不能把 lastActivity 往回拉
	require.NoError(t, store.SetLastActivity(ctx, user, earlier))

	got, ok, err := store.LastActivity(ctx, user)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, later.UnixMilli(), got.UnixMilli())
}

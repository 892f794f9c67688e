package presence

import (
	"context"
	"strconv"
	"time"

	"MProject/tools/errs"

	goredis "github.com/redis/go-redis/v9"
)

// Redis key 布局（沿用线上既有命名）：
//
//	presence:sessions:<user>  ZSET  member=sessionID score=过期时间(ms)
//	presence:online           SET   count>0 的用户
//	presence:lastseen:<user>  STRING unix ms
//	presence:lastactive:<user> STRING unix ms
//
// Add/Remove 用 Lua 保证"变更+计数"单条原子执行，
// 0↔1 迁移判断只信这里的返回值。
const (
	keySessionsPrefix = "presence:sessions:"
	keyOnlineUsers    = "presence:online"
	keyLastSeenPrefix = "presence:lastseen:"
	keyLastActPrefix  = "presence:lastactive:"
)

var addScript = goredis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
redis.call('SADD', KEYS[2], ARGV[5])
return redis.call('ZCARD', KEYS[1])
`)

var removeScript = goredis.NewScript(`
local removed = redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
local n = redis.call('ZCARD', KEYS[1])
if n == 0 then
  redis.call('DEL', KEYS[1])
  redis.call('SREM', KEYS[2], ARGV[3])
end
if removed == 0 then
  return -1
end
return n
`)

var refreshScript = goredis.NewScript(`
local score = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not score then return 0 end
if tonumber(score) <= tonumber(ARGV[2]) then return 0 end
redis.call('ZADD', KEYS[1], 'XX', ARGV[3], ARGV[1])
return 1
`)

var maxTSScript = goredis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur and tonumber(cur) >= tonumber(ARGV[1]) then return 0 end
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

// RedisStore 分布式实现，多网关节点共享同一份在线视图。
type RedisStore struct {
	rdb   *goredis.Client
	clock func() time.Time
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(rdb *goredis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, clock: time.Now}
}

func (s *RedisStore) sessionsKey(user string) string { return keySessionsPrefix + user }

// wrapStore 所有传输层错误归为瞬时错误（上层最多重试一次）
func wrapStore(err error, op string) error {
	if err == nil {
		return nil
	}
	return errs.ErrTransientStore.WrapMsg(op, "err", err)
}

func (s *RedisStore) Add(ctx context.Context, user, sessionID string, ttl time.Duration) (int, error) {
	now := s.clock()
	n, err := addScript.Run(ctx, s.rdb,
		[]string{s.sessionsKey(user), keyOnlineUsers},
		sessionID,
		now.UnixMilli(),
		now.Add(ttl).UnixMilli(),
		ttl.Milliseconds(),
		user,
	).Int()
	if err != nil {
		return 0, wrapStore(err, "registry add")
	}
	return n, nil
}

func (s *RedisStore) Remove(ctx context.Context, user, sessionID string) (int, error) {
	now := s.clock()
	n, err := removeScript.Run(ctx, s.rdb,
		[]string{s.sessionsKey(user), keyOnlineUsers},
		sessionID,
		now.UnixMilli(),
		user,
	).Int()
	if err != nil {
		return 0, wrapStore(err, "registry remove")
	}
	return n, nil
}

func (s *RedisStore) RemoveAll(ctx context.Context, user string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.sessionsKey(user))
	pipe.SRem(ctx, keyOnlineUsers, user)
	_, err := pipe.Exec(ctx)
	return wrapStore(err, "registry remove all")
}

func (s *RedisStore) Refresh(ctx context.Context, user, sessionID string, ttl time.Duration) (bool, error) {
	now := s.clock()
	ok, err := refreshScript.Run(ctx, s.rdb,
		[]string{s.sessionsKey(user)},
		sessionID,
		now.UnixMilli(),
		now.Add(ttl).UnixMilli(),
	).Int()
	if err != nil {
		return false, wrapStore(err, "registry refresh")
	}
	return ok == 1, nil
}

func (s *RedisStore) Count(ctx context.Context, user string) (int, error) {
	now := strconv.FormatInt(s.clock().UnixMilli(), 10)
	n, err := s.rdb.ZCount(ctx, s.sessionsKey(user), "("+now, "+inf").Result()
	if err != nil {
		return 0, wrapStore(err, "registry count")
	}
	return int(n), nil
}

// OnlineUsers 返回快照，同时把 TTL 已过期的成员惰性清掉
func (s *RedisStore) OnlineUsers(ctx context.Context) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, keyOnlineUsers).Result()
	if err != nil {
		return nil, wrapStore(err, "registry online users")
	}
	out := make([]string, 0, len(members))
	for _, user := range members {
		n, err := s.Count(ctx, user)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			out = append(out, user)
			continue
		}
		// 会话全过期但没收到断开事件：清理，交给 sweep 广播 offline
		_ = s.rdb.SRem(ctx, keyOnlineUsers, user).Err()
	}
	return out, nil
}

func (s *RedisStore) SetLastSeen(ctx context.Context, user string, t time.Time) error {
	err := s.rdb.Set(ctx, keyLastSeenPrefix+user, t.UnixMilli(), 0).Err()
	return wrapStore(err, "set last seen")
}

func (s *RedisStore) ClearLastSeen(ctx context.Context, user string) error {
	err := s.rdb.Del(ctx, keyLastSeenPrefix+user).Err()
	return wrapStore(err, "clear last seen")
}

func (s *RedisStore) LastSeen(ctx context.Context, user string) (time.Time, bool, error) {
	return s.getTS(ctx, keyLastSeenPrefix+user, "get last seen")
}

func (s *RedisStore) SetLastActivity(ctx context.Context, user string, t time.Time) error {
	// Lua 里做 max 合并，乱序心跳不回退
	err := maxTSScript.Run(ctx, s.rdb, []string{keyLastActPrefix + user}, t.UnixMilli()).Err()
	return wrapStore(err, "set last activity")
}

func (s *RedisStore) LastActivity(ctx context.Context, user string) (time.Time, bool, error) {
	return s.getTS(ctx, keyLastActPrefix+user, "get last activity")
}

func (s *RedisStore) getTS(ctx context.Context, key, op string) (time.Time, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if err == goredis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, wrapStore(err, op)
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

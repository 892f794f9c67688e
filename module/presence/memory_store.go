package presence

import (
	"context"
	"sync"
	"time"
)

// MemoryStore 内存实现：单节点运行与单测用。
// 结构参考网关连接管理器：RWMutex + 双层 map，过期惰性清理。
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]map[string]time.Time // user -> (sessionID -> expireAt)
	lastSeen map[string]time.Time
	lastAct  map[string]time.Time

	clock func() time.Time // 可注入时钟（单测用）；nil => time.Now
}

var _ Store = (*MemoryStore)(nil)

type MemoryOption func(*MemoryStore)

func WithClock(clock func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.clock = clock }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		sessions: make(map[string]map[string]time.Time),
		lastSeen: make(map[string]time.Time),
		lastAct:  make(map[string]time.Time),
		clock:    time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// pruneLocked 清掉过期会话，调用方持写锁
func (m *MemoryStore) pruneLocked(user string, now time.Time) int {
	set := m.sessions[user]
	for sid, exp := range set {
		if !exp.After(now) {
			delete(set, sid)
		}
	}
	if len(set) == 0 {
		delete(m.sessions, user)
		return 0
	}
	return len(set)
}

func (m *MemoryStore) Add(_ context.Context, user, sessionID string, ttl time.Duration) (int, error) {
	now := m.clock()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessions[user] == nil {
		m.sessions[user] = make(map[string]time.Time)
	}
	m.sessions[user][sessionID] = now.Add(ttl)
	return m.pruneLocked(user, now), nil
}

func (m *MemoryStore) Remove(_ context.Context, user, sessionID string) (int, error) {
	now := m.clock()
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.sessions[user]
	if _, ok := set[sessionID]; !ok {
		return StaleRemove, nil
	}
	delete(set, sessionID)
	return m.pruneLocked(user, now), nil
}

func (m *MemoryStore) RemoveAll(_ context.Context, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, user)
	return nil
}

func (m *MemoryStore) Refresh(_ context.Context, user, sessionID string, ttl time.Duration) (bool, error) {
	now := m.clock()
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.sessions[user]
	exp, ok := set[sessionID]
	if !ok || !exp.After(now) {
		// 过期的会话不续命
		return false, nil
	}
	set[sessionID] = now.Add(ttl)
	return true, nil
}

func (m *MemoryStore) Count(_ context.Context, user string) (int, error) {
	now := m.clock()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pruneLocked(user, now), nil
}

func (m *MemoryStore) OnlineUsers(_ context.Context) ([]string, error) {
	now := m.clock()
	m.mu.Lock()
	defer m.mu.Unlock()

	users := make([]string, 0, len(m.sessions))
	for user := range m.sessions {
		if m.pruneLocked(user, now) > 0 {
			users = append(users, user)
		}
	}
	return users, nil
}

func (m *MemoryStore) SetLastSeen(_ context.Context, user string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSeen[user] = t
	return nil
}

func (m *MemoryStore) ClearLastSeen(_ context.Context, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lastSeen, user)
	return nil
}

func (m *MemoryStore) LastSeen(_ context.Context, user string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.lastSeen[user]
	return t, ok, nil
}

func (m *MemoryStore) SetLastActivity(_ context.Context, user string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// 单调不回退
	if old, ok := m.lastAct[user]; ok && old.After(t) {
		return nil
	}
	m.lastAct[user] = t
	return nil
}

func (m *MemoryStore) LastActivity(_ context.Context, user string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.lastAct[user]
	return t, ok, nil
}

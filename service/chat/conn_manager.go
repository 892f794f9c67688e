package chat

import (
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ===== 配置 =====

type ManagerConf struct {
	IdleTTL    time.Duration    // 心跳静默多久算死连接（如 90s）
	SweepEvery time.Duration    // 清理周期（如 30s）
	Clock      func() time.Time // 可注入时钟（单测用）；nil => time.Now
}

func (c *ManagerConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 30 * time.Second
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 90 * time.Second
	}
}

// ===== 数据结构 =====

// WsConn 一条 websocket 连接。SessionID 是 registry 里的会话键，
// SnowID 只是节点内索引。
type WsConn struct {
	SnowID    string
	SessionID string
	UserID    string

	Conn   *websocket.Conn
	Remote net.Addr

	CreatedAt time.Time
	Heartbeat time.Time     // 最近心跳时间
	SendChan  chan []byte   // 每连接独立发送队列
	Done      chan struct{} // 收尾信号；SendChan 永不 close，避免和扇出竞争
}

// ConnManager 节点本地连接索引。
// registry 管的是"谁在线"，这里管的是"字节发到哪条 socket"。
type ConnManager struct {
	mu     sync.RWMutex
	bySnow map[string]*WsConn            // 主索引：snowID -> conn
	byUser map[string]map[string]*WsConn // 辅助索引：userID -> (snowID -> conn)

	conf     ManagerConf
	stopOnce sync.Once
	stopCh   chan struct{}
	gwID     string // 节点ID
}

func NewConnManager(conf ManagerConf, gwID string) *ConnManager {
	conf.norm()
	m := &ConnManager{
		bySnow: make(map[string]*WsConn),
		byUser: make(map[string]map[string]*WsConn),
		conf:   conf,
		gwID:   gwID,
		stopCh: make(chan struct{}),
	}
	go m.sweeper()
	return m
}

func (m *ConnManager) GwID() string { return m.gwID }

func (m *ConnManager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.bySnow {
		closeQuiet(w.Conn)
	}
	m.bySnow = map[string]*WsConn{}
	m.byUser = map[string]map[string]*WsConn{}
}

// Add 登记一条已鉴权连接
func (m *ConnManager) Add(w *WsConn) {
	if w == nil || w.UserID == "" {
		return
	}
	now := m.conf.Clock()
	w.CreatedAt = now
	w.Heartbeat = now

	m.mu.Lock()
	defer m.mu.Unlock()
	m.bySnow[w.SnowID] = w
	if m.byUser[w.UserID] == nil {
		m.byUser[w.UserID] = make(map[string]*WsConn)
	}
	m.byUser[w.UserID][w.SnowID] = w
}

// Remove 摘除连接（不关 socket，调用方决定）
func (m *ConnManager) Remove(snowID string) *WsConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.bySnow[snowID]
	if !ok {
		return nil
	}
	delete(m.bySnow, snowID)
	if mm := m.byUser[w.UserID]; mm != nil {
		delete(mm, snowID)
		if len(mm) == 0 {
			delete(m.byUser, w.UserID)
		}
	}
	return w
}

// RemoveUser 摘掉该用户所有连接并返回（显式登出踢全端）
func (m *ConnManager) RemoveUser(user string) []*WsConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	mm := m.byUser[user]
	if mm == nil {
		return nil
	}
	out := make([]*WsConn, 0, len(mm))
	for snowID, w := range mm {
		delete(m.bySnow, snowID)
		out = append(out, w)
	}
	delete(m.byUser, user)
	return out
}

// Touch 心跳续命
func (m *ConnManager) Touch(snowID string) {
	now := m.conf.Clock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.bySnow[snowID]; ok {
		w.Heartbeat = now
	}
}

// FanoutAll 给本节点所有连接投递
func (m *ConnManager) FanoutAll(payload []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, w := range m.bySnow {
		trySend(w, payload)
	}
}

// SendToUser 给该用户本节点上的所有端投递，返回命中条数
func (m *ConnManager) SendToUser(user string, payload []byte) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, w := range m.byUser[user] {
		if trySend(w, payload) {
			n++
		}
	}
	return n
}

// trySend 非阻塞投递，队列满了就丢（状态事件可丢，sweep 会补）
func trySend(w *WsConn, payload []byte) bool {
	if w.SendChan == nil {
		return false
	}
	select {
	case w.SendChan <- payload:
		return true
	default:
		return false
	}
}

// sweeper 周期清理心跳静默的死连接
func (m *ConnManager) sweeper() {
	t := time.NewTicker(m.conf.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			m.sweepOnce()
		case <-m.stopCh:
			return
		}
	}
}

func (m *ConnManager) sweepOnce() {
	now := m.conf.Clock()
	m.mu.Lock()
	var dead []*WsConn
	for snowID, w := range m.bySnow {
		if now.Sub(w.Heartbeat) > m.conf.IdleTTL {
			delete(m.bySnow, snowID)
			if mm := m.byUser[w.UserID]; mm != nil {
				delete(mm, snowID)
				if len(mm) == 0 {
					delete(m.byUser, w.UserID)
				}
			}
			dead = append(dead, w)
		}
	}
	m.mu.Unlock()

	// 关 socket 放到锁外面
	for _, w := range dead {
		closeQuiet(w.Conn)
	}
}

func closeQuiet(c *websocket.Conn) {
	if c != nil {
		_ = c.Close()
	}
}

package presence

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"MProject/logger"
	"MProject/tools/errs"
	"MProject/tools/safe"
)

// Config 协调器配置，全部可注入
type Config struct {
	SessionTTL      time.Duration // 会话 TTL（崩溃兜底，默认 30m）
	SweepEvery      time.Duration // 周期对账间隔（默认 30s）
	DisconnectDelay time.Duration // 断开广播缓冲，吸收页面刷新（默认 75ms）
	Thresholds      Thresholds
	Clock           func() time.Time // 单测注入；nil => time.Now
}

func (c *Config) norm() {
	if c.SessionTTL <= 0 {
		c.SessionTTL = 30 * time.Minute
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 30 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	c.Thresholds = c.Thresholds.norm()
}

// Coordinator 在线状态协调器：连接生命周期事件进来，
// 改 registry，问分类器，发广播。错误就地消化，
// presence 出问题不能影响消息链路。
type Coordinator struct {
	store Store
	bc    *Broadcaster
	cfg   Config

	mu    sync.Mutex
	known map[string]struct{} // 见过的用户，sweep 的遍历范围

	sweeping atomic.Bool // 对账单飞
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewCoordinator(store Store, bc *Broadcaster, cfg Config) *Coordinator {
	cfg.norm()
	return &Coordinator{
		store:  store,
		bc:     bc,
		cfg:    cfg,
		known:  make(map[string]struct{}),
		stopCh: make(chan struct{}),
	}
}

// Start 启动周期对账
func (c *Coordinator) Start() {
	safe.SafeGo(func() {
		t := time.NewTicker(c.cfg.SweepEvery)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				c.Reconcile(context.Background())
			case <-c.stopCh:
				return
			}
		}
	})
}

func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// retryOnce 瞬时存储错误最多重试一次，再失败就放弃本次更新
func retryOnce(op func() error) error {
	err := op()
	if err != nil && errs.IsTransient(err) {
		err = op()
	}
	return err
}

func (c *Coordinator) remember(user string) {
	c.mu.Lock()
	c.known[user] = struct{}{}
	c.mu.Unlock()
}

// OnConnect 连接握手成功。0→1 时清 lastSeen，立即分类并广播。
// 活跃信号是独立事件，这里不动 lastActivity。
func (c *Coordinator) OnConnect(ctx context.Context, user, sessionID string) {
	if user == "" {
		logger.Warnf("[presence] %v", errs.ErrUnknownUser.WrapMsg("connect dropped", "session", sessionID))
		return
	}
	var count int
	err := retryOnce(func() error {
		n, e := c.store.Add(ctx, user, sessionID, c.cfg.SessionTTL)
		count = n
		return e
	})
	if err != nil {
		logger.Errorf("[presence] connect add failed user=%s: %v", user, err)
		return
	}
	if count == 1 {
		// 离线→在线：lastSeen 必须清掉，它只在 count==0 时有意义
		if err := retryOnce(func() error { return c.store.ClearLastSeen(ctx, user) }); err != nil {
			logger.Errorf("[presence] clear last seen failed user=%s: %v", user, err)
		}
	}
	c.remember(user)
	c.broadcast(ctx, user, true)
}

// OnDisconnect 某个会话断开。恰好降到 0 时写 lastSeen。
// 广播走延迟任务：registry 变更不等，只有广播延迟。
// 广播在触发时重读当前状态，期间若同一用户重连，
// 发出去的自然是在线态，不会闪一下 offline。
func (c *Coordinator) OnDisconnect(ctx context.Context, user, sessionID string) {
	if user == "" {
		logger.Warnf("[presence] %v", errs.ErrUnknownUser.WrapMsg("disconnect dropped", "session", sessionID))
		return
	}
	var count int
	err := retryOnce(func() error {
		n, e := c.store.Remove(ctx, user, sessionID)
		count = n
		return e
	})
	if err != nil {
		logger.Errorf("[presence] disconnect remove failed user=%s: %v", user, err)
		return
	}
	if count == 0 {
		// 迁移判断只用原子 Remove 的返回值，绝不再查一次 Count
		if err := retryOnce(func() error { return c.store.SetLastSeen(ctx, user, c.cfg.Clock()) }); err != nil {
			logger.Errorf("[presence] set last seen failed user=%s: %v", user, err)
		}
	}
	// count == StaleRemove：别人已经清过了，照样补一次广播，幂等
	c.remember(user)

	if c.cfg.DisconnectDelay <= 0 {
		c.broadcast(ctx, user, true)
		return
	}
	time.AfterFunc(c.cfg.DisconnectDelay, func() {
		safe.Run(func() {
			c.broadcast(context.Background(), user, true)
		})
	})
}

// OnHeartbeat 显式活跃信号：续 TTL + 推进 lastActivity。
// 不强制广播，脏读窗口由 sweep 间隔兜底。
func (c *Coordinator) OnHeartbeat(ctx context.Context, user, sessionID string) {
	if user == "" {
		return
	}
	err := retryOnce(func() error {
		_, e := c.store.Refresh(ctx, user, sessionID, c.cfg.SessionTTL)
		return e
	})
	if err != nil {
		logger.Errorf("[presence] heartbeat refresh failed user=%s: %v", user, err)
	}
	if err := retryOnce(func() error { return c.store.SetLastActivity(ctx, user, c.cfg.Clock()) }); err != nil {
		logger.Errorf("[presence] set last activity failed user=%s: %v", user, err)
	}
	c.remember(user)
}

// OnLogout 显式登出：该账号全部端一起踢，唯一允许清别人会话的操作。
func (c *Coordinator) OnLogout(ctx context.Context, user string) {
	if user == "" {
		return
	}
	if err := retryOnce(func() error { return c.store.RemoveAll(ctx, user) }); err != nil {
		logger.Errorf("[presence] logout remove all failed user=%s: %v", user, err)
		return
	}
	if err := retryOnce(func() error { return c.store.SetLastSeen(ctx, user, c.cfg.Clock()) }); err != nil {
		logger.Errorf("[presence] logout set last seen failed user=%s: %v", user, err)
	}
	c.remember(user)
	c.broadcast(ctx, user, true)
}

// Reconcile 周期对账：全量重算重发（去重路径）。
// 自愈机制：漏掉的即时广播、崩掉的客户端、TTL 过期，都在这里补正。
// 单飞，上一轮没跑完不会叠加。
func (c *Coordinator) Reconcile(ctx context.Context) {
	if !c.sweeping.CompareAndSwap(false, true) {
		return
	}
	defer c.sweeping.Store(false)

	online, err := c.store.OnlineUsers(ctx)
	if err != nil {
		logger.Errorf("[presence] reconcile online users failed: %v", err)
		return
	}
	for _, u := range online {
		c.remember(u)
	}

	c.mu.Lock()
	users := make([]string, 0, len(c.known))
	for u := range c.known {
		users = append(users, u)
	}
	c.mu.Unlock()

	for _, u := range users {
		state, sent := c.broadcast(ctx, u, false)
		if state == StateOffline && !sent {
			// offline 已经播过且没再变：踢出遍历集，去重缓存一起清。
			// 重新上线会走 OnConnect 再进来。
			c.mu.Lock()
			delete(c.known, u)
			c.mu.Unlock()
			c.bc.Forget(u)
		}
	}
}

// Status 当前展示态（REST 查询用）
func (c *Coordinator) Status(ctx context.Context, user string) (ClassifyResult, int, error) {
	count, err := c.store.Count(ctx, user)
	if err != nil {
		return ClassifyResult{}, 0, err
	}
	lastAct, _, err := c.store.LastActivity(ctx, user)
	if err != nil {
		return ClassifyResult{}, 0, err
	}
	lastSeen, _, err := c.store.LastSeen(ctx, user)
	if err != nil {
		return ClassifyResult{}, 0, err
	}
	r := Classify(ClassifyInput{
		HasLiveSession: count > 0,
		LastActivity:   lastAct,
		LastSeen:       lastSeen,
		Now:            c.cfg.Clock(),
	}, c.cfg.Thresholds)
	return r, count, nil
}

// OnlineUsers registry 快照透出
func (c *Coordinator) OnlineUsers(ctx context.Context) ([]string, error) {
	return c.store.OnlineUsers(ctx)
}

// BroadcastOnlineUsers 连接/断开后推一次在线列表
func (c *Coordinator) BroadcastOnlineUsers(ctx context.Context) {
	users, err := c.store.OnlineUsers(ctx)
	if err != nil {
		logger.Errorf("[presence] online users snapshot failed: %v", err)
		return
	}
	if err := c.bc.PublishOnlineUsers(users); err != nil {
		logger.Errorf("[presence] online users publish failed: %v", err)
	}
}

// SendOnlineUsersTo 给刚上线的端直投一份全量在线列表，
// 不用等下一次全局广播就有初始状态
func (c *Coordinator) SendOnlineUsersTo(ctx context.Context, user string) {
	users, err := c.store.OnlineUsers(ctx)
	if err != nil {
		logger.Errorf("[presence] online users snapshot failed: %v", err)
		return
	}
	if err := c.bc.DeliverOnlineUsers(user, users); err != nil {
		logger.Errorf("[presence] online users deliver failed user=%s: %v", user, err)
	}
}

// broadcast 重读当前状态、分类、发布。失败只记日志。
// 返回 (展示态, 是否真的发了)；任何一步失败都返回空态，
// 调用方不会把失败误判成"稳定不用再发"。
func (c *Coordinator) broadcast(ctx context.Context, user string, force bool) (DisplayState, bool) {
	r, count, err := c.Status(ctx, user)
	if err != nil {
		logger.Errorf("[presence] classify failed user=%s: %v", user, err)
		return "", false
	}
	sent, err := c.bc.PublishStatus(user, r, count, force)
	if err != nil {
		logger.Errorf("[presence] broadcast failed user=%s: %v", user, err)
		return "", false
	}
	return r.State, sent
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MProject/global/config"
	"MProject/logger"
	"MProject/middleware"
	security "MProject/middleware/security"
	"MProject/module/presence"
	"MProject/service/chat"
	"MProject/service/natsx"
	"MProject/service/push"
	redismgr "MProject/service/storage/redis"
	jwtlib "MProject/tools/security"

	"github.com/gin-gonic/gin"
)

func main() {
	config.ConfigAll()
	defer logger.Sync()

	cfg := config.Global
	pcfg := cfg.Presence

	// ---- registry 存储：优先 redis（多节点共享），降级内存 ----
	var store presence.Store
	if redismgr.Ready() {
		store = presence.NewRedisStore(redismgr.GetRedis())
		logger.Infof("presence registry: redis (%s)", cfg.Redis.Addr)
	} else {
		store = presence.NewMemoryStore()
		logger.Warnf("presence registry: in-memory (single node only)")
	}

	// ---- NATS：连不上只降级为本地扇出，不致命 ----
	var producer *natsx.Producer
	var natsClient *natsx.Client
	if nc, err := natsx.NewClient(natsx.Config{Servers: cfg.Nats.Servers, Name: cfg.Nats.Name}); err != nil {
		logger.Warnf("nats connect failed, status events stay node-local: %v", err)
	} else {
		natsClient = nc
		producer = natsx.NewProducer(nc)
	}

	// ---- 网关连接管理 + 广播总线 ----
	mgr := chat.NewConnManager(chat.ManagerConf{}, cfg.NodeId)
	bus := chat.NewStatusBus(producer, mgr, pcfg.UserTopicPrefix)
	bc := presence.NewBroadcaster(bus, pcfg.StatusTopic)

	coord := presence.NewCoordinator(store, bc, presence.Config{
		SessionTTL:      pcfg.SessionTTL,
		SweepEvery:      pcfg.SweepEvery,
		DisconnectDelay: pcfg.DisconnectDelay,
		Thresholds: presence.Thresholds{
			ActiveWindow: pcfg.ActiveWindow,
			RecentWindow: pcfg.RecentWindow,
		},
	})
	coord.Start()

	// ---- 重启恢复：起来先唤醒上次在线的客户端 ----
	var sender push.Sender = push.NopSender{}
	if producer != nil {
		sender = push.NewNatsSender(producer, pcfg.PushSubject, pcfg.PushBatchDelay)
	}
	recovery := presence.NewRecovery(store, presence.NewFileSnapshot(pcfg.SnapshotPath), sender)
	go recovery.Startup(context.Background())

	// ---- HTTP / WS 路由 ----
	jwtOpts := jwtlib.DefaultOptions(config.GetJwtSecret())
	authed := security.Middleware(security.DefaultOptions(jwtOpts))

	r := gin.Default()
	r.Use(middleware.Origin())

	server := chat.NewServer(mgr, coord)
	r.GET("/ws", authed, server.HandleWS)

	api := r.Group("/api/users", authed)
	presence.NewHandler(coord).Register(api)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logger.Infof("gateway %s listening on :%d", cfg.NodeId, cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("http server: %v", err)
		}
	}()

	// ---- 优雅退出：快照在线用户，再放进程走 ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	recovery.Shutdown(shutdownCtx)
	coord.Stop()
	mgr.Close()
	_ = httpSrv.Shutdown(shutdownCtx)
	if natsClient != nil {
		_ = natsClient.Close()
	}
	_ = redismgr.CloseRedis()
}

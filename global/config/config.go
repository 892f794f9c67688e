package config

import (
	"os"
	"strconv"
	"time"

	"MProject/logger"
	redis "MProject/service/storage/redis"
	"MProject/tools/ids"
)

const NodeTypeMsgGateWay = "msgGateWay" // 网关节点

// PresenceConfig 在线状态引擎的全部阈值。
// 注意：窗口值不是硬编码常量，历史版本在 1/2/5 分钟之间摇摆过，
// 这里统一走配置，四态顺序才是不变量。
type PresenceConfig struct {
	ActiveWindow    time.Duration // 活跃窗口（默认 1m）
	RecentWindow    time.Duration // 后台可见窗口（默认 5m）
	SessionTTL      time.Duration // 会话 TTL（默认 30m，崩溃兜底）
	SweepEvery      time.Duration // 周期对账间隔（默认 30s）
	DisconnectDelay time.Duration // 断开后的广播缓冲，吸收页面刷新抖动
	PushBatchDelay  time.Duration // 重启唤醒推送的发送间隔
	SnapshotPath    string        // 在线用户快照文件
	StatusTopic     string        // 全局状态 topic
	UserTopicPrefix string        // 点对点投递 subject 前缀
	PushSubject     string        // 重连提示推送 subject
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

type NatsConfig struct {
	Servers []string
	Name    string
}

type AppConfig struct {
	NodeType string
	NodeId   string
	Port     int

	Redis    RedisConfig
	Nats     NatsConfig
	Presence PresenceConfig

	JwtSecret string
}

var Global = AppConfig{
	NodeType: NodeTypeMsgGateWay,
	NodeId:   "presence_gateway_1",
	Port:     8080,
	Redis: RedisConfig{
		Addr: "127.0.0.1:6379", DB: 0, PoolSize: 32,
	},
	Nats: NatsConfig{
		Servers: []string{"nats://127.0.0.1:4222"},
		Name:    "presence-gateway",
	},
	Presence: PresenceConfig{
		ActiveWindow:    time.Minute,
		RecentWindow:    5 * time.Minute,
		SessionTTL:      30 * time.Minute,
		SweepEvery:      30 * time.Second,
		DisconnectDelay: 75 * time.Millisecond,
		PushBatchDelay:  200 * time.Millisecond,
		SnapshotPath:    "online_users.txt",
		StatusTopic:     "user.events",
		UserTopicPrefix: "user.deliver.",
		PushSubject:     "push.reconnect",
	},
	JwtSecret: "mN9b1f8zPq+W2xjX/45sKcVd0TfyoG+3Hp5Z8q9Rj1o=",
}

func ConfigAll() {
	loadEnv()
	ConfigIds()
	ConfigRedis()
}

func ConfigIds() {
	logger.Infof("配置id生成")
	ids.SetNodeID(100)
}

func GetJwtSecret() []byte {
	return []byte(Global.JwtSecret)
}

// ConfigRedis 连不上不致命：registry 会降级到内存实现
func ConfigRedis() {
	cfg := redis.Config{
		Addr:     Global.Redis.Addr,
		Password: Global.Redis.Password,
		DB:       Global.Redis.DB,
		PoolSize: Global.Redis.PoolSize,
	}
	if err := redis.InitRedis(cfg); err != nil {
		logger.Warnf("redis init failed, presence falls back to memory store: %v", err)
	}
}

// loadEnv 少量环境变量覆盖，部署时用
func loadEnv() {
	if v := os.Getenv("MP_REDIS_ADDR"); v != "" {
		Global.Redis.Addr = v
	}
	if v := os.Getenv("MP_REDIS_PASSWORD"); v != "" {
		Global.Redis.Password = v
	}
	if v := os.Getenv("MP_NATS_URL"); v != "" {
		Global.Nats.Servers = []string{v}
	}
	if v := os.Getenv("MP_JWT_SECRET"); v != "" {
		Global.JwtSecret = v
	}
	if v := os.Getenv("MP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			Global.Port = p
		}
	}
	if v := os.Getenv("MP_NODE_ID"); v != "" {
		Global.NodeId = v
	}
	if v := os.Getenv("MP_SNAPSHOT_PATH"); v != "" {
		Global.Presence.SnapshotPath = v
	}
}

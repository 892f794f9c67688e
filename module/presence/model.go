package presence

import "time"

// DisplayState 对外展示的四态。顺序是产品语义的一部分：
// 有连接不等于 online，前台活跃才算。
type DisplayState string

const (
	StateActive        DisplayState = "active"
	StateInactive      DisplayState = "inactive"
	StateOfflineRecent DisplayState = "offline_recent"
	StateOffline       DisplayState = "offline"
)

const (
	EventTypeStatusUpdate = "USER_STATUS_UPDATE"
	EventTypeOnlineUsers  = "ONLINE_USERS"
)

// StatusEvent 状态 topic 的线格式，字段稳定，勿随意增删
type StatusEvent struct {
	Type         string       `json:"type"`
	Username     string       `json:"username"`
	Online       bool         `json:"online"`
	Status       DisplayState `json:"status"`
	LastSeenText string       `json:"lastSeenText"`
	Devices      int          `json:"devices,omitempty"`
}

// OnlineUsersEvent 连接/断开后推给前端的在线列表
type OnlineUsersEvent struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

// Session 一条活跃连接。由 registry 独占管理，
// 其他组件只读快照，不直接改。
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	RefreshAt time.Time `json:"refresh_at"`
	ExpireAt  time.Time `json:"expire_at"`
}

package chat

import (
	"encoding/json"
	"time"
)

// 客户端上行帧都是小 JSON。消息收发不在这个服务里，
// 这里只有在线状态相关的控制帧。
const (
	FramePing     = "ping"     // 保活 + 显式活跃信号
	FrameActivity = "activity" // 前台活跃信号（等价 ping，移动端习惯分开发）
	FrameLogout   = "logout"   // 显式登出，踢全端
)

type ClientFrame struct {
	Type string `json:"type"`
	Ts   int64  `json:"ts,omitempty"`
}

func ParseClientFrame(raw []byte) (*ClientFrame, error) {
	f := &ClientFrame{}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, err
	}
	return f, nil
}

// ---- 服务端回执 ----

type ConnAck struct {
	Type      string `json:"type"` // "conn_ack"
	SessionID string `json:"sessionId"`
	GatewayID string `json:"gatewayId"`
	Ts        int64  `json:"ts"`
}

func BuildConnAck(sessionID, gatewayID string) []byte {
	b, _ := json.Marshal(ConnAck{
		Type:      "conn_ack",
		SessionID: sessionID,
		GatewayID: gatewayID,
		Ts:        time.Now().UnixMilli(),
	})
	return b
}

type Pong struct {
	Type string `json:"type"` // "pong"
	Ts   int64  `json:"ts"`
}

func BuildPong() []byte {
	b, _ := json.Marshal(Pong{Type: "pong", Ts: time.Now().UnixMilli()})
	return b
}

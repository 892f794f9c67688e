package presence

import "time"

// Thresholds 分类窗口。历史版本这两个值在 1/2/5 分钟间摇摆过，
// 所以走配置；固定的是四态的判定顺序。
type Thresholds struct {
	ActiveWindow time.Duration // 前台活跃窗口
	RecentWindow time.Duration // 后台可见窗口
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		ActiveWindow: time.Minute,
		RecentWindow: 5 * time.Minute,
	}
}

func (t Thresholds) norm() Thresholds {
	if t.ActiveWindow <= 0 {
		t.ActiveWindow = time.Minute
	}
	if t.RecentWindow <= 0 {
		t.RecentWindow = 5 * time.Minute
	}
	return t
}

// ClassifyInput 全部输入显式传入，函数纯确定无副作用
type ClassifyInput struct {
	HasLiveSession bool
	LastActivity   time.Time // 零值 = 从未有过显式活跃信号
	LastSeen       time.Time // 零值 = 从未下线过（或从未上线过）
	Now            time.Time
}

// ClassifyResult 展示态 + 展示文案
type ClassifyResult struct {
	State        DisplayState
	Online       bool // 只有 active 才算 online
	LastSeenText string
}

// Classify 判定表，从上往下第一条命中生效：
//
//  1. 无活跃会话                     → offline，文案 = last seen 绝对时间
//  2. 有会话且活跃 < ActiveWindow    → active，"online"
//  3. 有会话且活跃 < RecentWindow    → inactive，相对时间（"3 minutes ago"）
//  4. 有会话但活跃过期/缺失          → offline_recent，绝对时间
//
// 活连接不等于 online：后台挂着的 app 要逐级降档。
func Classify(in ClassifyInput, t Thresholds) ClassifyResult {
	t = t.norm()

	if !in.HasLiveSession {
		return ClassifyResult{
			State:        StateOffline,
			Online:       false,
			LastSeenText: FormatLastSeen(in.LastSeen, in.Now),
		}
	}

	if !in.LastActivity.IsZero() {
		since := in.Now.Sub(in.LastActivity)
		if since < t.ActiveWindow {
			return ClassifyResult{State: StateActive, Online: true, LastSeenText: "online"}
		}
		if since < t.RecentWindow {
			return ClassifyResult{
				State:        StateInactive,
				Online:       false,
				LastSeenText: FormatRelative(in.LastActivity, in.Now),
			}
		}
	}

	// 活跃信号过期或者压根没有：降到 offline_recent，
	// 文案用最近一次已知时刻的绝对时间
	ref := in.LastActivity
	if ref.IsZero() {
		ref = in.LastSeen
	}
	return ClassifyResult{
		State:        StateOfflineRecent,
		Online:       false,
		LastSeenText: FormatLastSeen(ref, in.Now),
	}
}

package presence

import (
	"fmt"
	"time"
)

// FormatLastSeen 绝对时间文案，按日历分桶：
//
//	当天       "Last seen at 14:30"
//	昨天       "Last seen yesterday at 14:30"
//	7天内/当年 "Last seen 02.01 at 14:30"
//	更早       "Last seen 02.01.06 at 14:30"
//
// 零值 → "never"。
func FormatLastSeen(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "never"
	}

	hm := t.Format("15:04")
	ty, tm, td := t.Date()
	ny, nm, nd := now.Date()

	switch {
	case ty == ny && tm == nm && td == nd:
		return "Last seen at " + hm
	case sameDay(t, now.AddDate(0, 0, -1)):
		return "Last seen yesterday at " + hm
	case t.After(now.AddDate(0, 0, -7)):
		// 7天窗口先于年份判断，跨年也是 日.月
		return "Last seen " + t.Format("02.01") + " at " + hm
	case ty == ny:
		return "Last seen " + t.Format("02.01") + " at " + hm
	default:
		return "Last seen " + t.Format("02.01.06") + " at " + hm
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// FormatRelative 相对时间文案，inactive 态用
func FormatRelative(t time.Time, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < 2*time.Minute:
		return "1 minute ago"
	case d < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(d.Minutes()))
	case d < 2*time.Hour:
		return "1 hour ago"
	default:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	}
}

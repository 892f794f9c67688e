package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatLastSeenBuckets(t *testing.T) {
	now := time.Date(2025, 6, 15, 14, 30, 0, 0, time.Local)

	cases := []struct {
		name string
		t    time.Time
		want string
	}{
		{"zero", time.Time{}, "never"},
		{"same day", time.Date(2025, 6, 15, 9, 5, 0, 0, time.Local), "Last seen at 09:05"},
		{"yesterday", time.Date(2025, 6, 14, 23, 59, 0, 0, time.Local), "Last seen yesterday at 23:59"},
		{"this week", time.Date(2025, 6, 10, 8, 0, 0, 0, time.Local), "Last seen 10.06 at 08:00"},
		{"same year", time.Date(2025, 1, 2, 18, 45, 0, 0, time.Local), "Last seen 02.01 at 18:45"},
		{"older year", time.Date(2023, 12, 31, 10, 15, 0, 0, time.Local), "Last seen 31.12.23 at 10:15"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, FormatLastSeen(tc.t, now))
		})
	}
}

func TestFormatLastSeenWeekWindowAcrossYear(t *testing.T) {
	// 跨年但还在 7 天窗口内：走 日.月，不带年份
	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.Local)
	ts := time.Date(2025, 12, 30, 9, 15, 0, 0, time.Local)
	require.Equal(t, "Last seen 30.12 at 09:15", FormatLastSeen(ts, now))

	// 窗口外的去年时间照旧带年份
	old := time.Date(2025, 12, 20, 9, 15, 0, 0, time.Local)
	require.Equal(t, "Last seen 20.12.25 at 09:15", FormatLastSeen(old, now))
}

func TestFormatLastSeenYesterdayAcrossMonth(t *testing.T) {
	// 月初的"昨天"跨月，日历比较不能用简单减一天的日期字段比对
	now := time.Date(2025, 7, 1, 10, 0, 0, 0, time.Local)
	ts := time.Date(2025, 6, 30, 22, 0, 0, 0, time.Local)
	require.Equal(t, "Last seen yesterday at 22:00", FormatLastSeen(ts, now))
}

func TestFormatRelative(t *testing.T) {
	now := time.Date(2025, 6, 15, 14, 30, 0, 0, time.Local)

	require.Equal(t, "just now", FormatRelative(now.Add(-20*time.Second), now))
	require.Equal(t, "1 minute ago", FormatRelative(now.Add(-90*time.Second), now))
	require.Equal(t, "3 minutes ago", FormatRelative(now.Add(-3*time.Minute), now))
	require.Equal(t, "1 hour ago", FormatRelative(now.Add(-70*time.Minute), now))
	require.Equal(t, "5 hours ago", FormatRelative(now.Add(-5*time.Hour), now))
}

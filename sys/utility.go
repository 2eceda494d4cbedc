package sys

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// Truncate shortens s to at most maxLen runes, ending in an ellipsis when cut.
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// FormatRelativeTime renders the gap between from and to as a coarse
// human-readable span ("3 hours", "2 weeks").
func FormatRelativeTime(from, to time.Time) string {
	duration := to.Sub(from)
	if duration < 0 {
		duration = -duration
	}

	if duration < time.Minute {
		return MsgRelLessMinute
	}

	if duration < time.Hour {
		return plural(int(duration.Minutes()), "minute")
	}

	if duration < 24*time.Hour {
		return plural(int(duration.Hours()), "hour")
	}

	days := int(duration.Hours() / 24)
	if days < 7 {
		return plural(days, "day")
	}
	if weeks := days / 7; weeks < 4 {
		return plural(weeks, "week")
	}
	if months := days / 30; months < 12 {
		return plural(max(months, 1), "month")
	}
	return plural(days/365, "year")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf(MsgRelOne, unit)
	}
	return fmt.Sprintf(MsgRelMany, n, unit)
}

package ops

import (
	"fmt"
	"time"

	"github.com/jc-systemslogiq/agent-mail-cli/internal/db"
)

// Countdown renders the time until expires as [-]HH:MM:SS. A missing
// expiry renders as "?".
func Countdown(expires *time.Time, now time.Time) string {
	if expires == nil {
		return "?"
	}
	total := int(expires.Sub(now).Seconds())
	sign := ""
	if total < 0 {
		sign = "-"
		total = -total
	}
	h, rem := total/3600, total%3600
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, h, rem/60, rem%60)
}

// TimeAgo renders ts relative to now: "just now", "5m ago", "3h ago",
// "2d ago". Unparseable input is echoed back (truncated), or "?" if empty.
func TimeAgo(ts string, now time.Time) string {
	t, ok := db.ParseTimestamp(ts)
	if !ok {
		if ts == "" {
			return "?"
		}
		if len(ts) > 19 {
			return ts[:19]
		}
		return ts
	}
	return Ago(t, now)
}

// Ago is TimeAgo for a parsed time.
func Ago(t time.Time, now time.Time) string {
	seconds := int(now.Sub(t).Seconds())
	switch {
	case seconds < 60:
		return "just now"
	case seconds < 3600:
		return fmt.Sprintf("%dm ago", seconds/60)
	case seconds < 86400:
		return fmt.Sprintf("%dh ago", seconds/3600)
	default:
		return fmt.Sprintf("%dd ago", seconds/86400)
	}
}

// plural picks word or its plural for n.
func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

package lifecycle

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Countdown renders the time left until expiresAt as HH:MM:SS.
func Countdown(now, expiresAt time.Time) string {
	left := expiresAt.Sub(now)
	if left <= 0 {
		return "00:00:00"
	}
	secs := int64(left / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}

// Ago renders t relative to now, e.g. "3 hours ago".
func Ago(now, t time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}

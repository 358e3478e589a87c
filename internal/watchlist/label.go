package watchlist

import (
	"time"

	"github.com/dustin/go-humanize"
)

const justNowThreshold = 10 * time.Second

// SinceLabel renders how long ago the watchlist was last refreshed, for the
// "last updated" indicator shown next to a possibly stale list.
func SinceLabel(last, now time.Time) string {
	if last.IsZero() {
		return "Never"
	}
	if now.Sub(last) < justNowThreshold {
		return "Just now"
	}
	return humanize.RelTime(last, now, "ago", "from now")
}

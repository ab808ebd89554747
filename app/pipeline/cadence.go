package pipeline

import (
	"strings"
	"time"

	"github.com/lysyi3m/opp-comb/app/database"
)

var cadences = map[string]time.Duration{
	"hourly": time.Hour,
	"daily":  24 * time.Hour,
	"weekly": 7 * 24 * time.Hour,
}

// Cadence returns the minimum time between fetches for a frequency tag.
// Unknown tags return 0, meaning every tick.
func Cadence(frequency string) time.Duration {
	return cadences[strings.ToLower(strings.TrimSpace(frequency))]
}

// Due reports whether the target should be fetched at now.
func Due(target database.CrawlTarget, now time.Time) bool {
	if target.LastScrapedAt == nil {
		return true
	}
	interval := Cadence(target.Frequency)
	if interval == 0 {
		return true
	}
	return !now.Before(target.LastScrapedAt.Add(interval))
}
